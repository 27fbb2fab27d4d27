package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/crosswalk-io/crosswalk/pkg/models"
)

// Handler runs the mapping workflow for one dispatch message. A nil return
// consumes the message; an error leaves it on the queue for redelivery.
type Handler interface {
	Start(ctx context.Context, msg models.DispatchMessage) error
}

// Consumer long-polls the mapping request queue and feeds messages to the
// handler. Delivery is at-least-once: the handler must tolerate replays.
type Consumer struct {
	client    SQSAPI
	queueURL  string
	handler   Handler
	batchSize int32
	waitTime  time.Duration
}

// NewConsumer creates a Consumer. batchSize is clamped to the SQS limit of 10.
func NewConsumer(client SQSAPI, queueURL string, handler Handler, batchSize int, waitTime time.Duration) *Consumer {
	if batchSize < 1 || batchSize > 10 {
		batchSize = 10
	}
	return &Consumer{
		client:    client,
		queueURL:  queueURL,
		handler:   handler,
		batchSize: int32(batchSize),
		waitTime:  waitTime,
	}
}

// Run polls until the context is cancelled. Receive errors are logged and
// retried after a short pause so a transient SQS outage does not kill the
// worker.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("consumer started", "queue_url", c.queueURL, "batch_size", c.batchSize)
	for {
		if err := ctx.Err(); err != nil {
			slog.Info("consumer stopping")
			return nil
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &c.queueURL,
			MaxNumberOfMessages: c.batchSize,
			WaitTimeSeconds:     int32(c.waitTime / time.Second),
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			slog.Error("receive failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, m := range out.Messages {
			c.handleMessage(ctx, m)
		}
	}
}

// handleMessage processes one delivery. Malformed messages are deleted
// immediately: redelivering them can never succeed and would only cycle them
// into the DLQ. Processing failures leave the message for the visibility
// timeout to redeliver.
func (c *Consumer) handleMessage(ctx context.Context, m types.Message) {
	var msg models.DispatchMessage
	if err := json.Unmarshal([]byte(deref(m.Body)), &msg); err != nil {
		slog.Error("dropping malformed message", "message_id", deref(m.MessageId), "error", err)
		c.delete(ctx, m)
		return
	}
	if err := msg.Validate(); err != nil {
		slog.Error("dropping invalid message", "message_id", deref(m.MessageId), "error", err)
		c.delete(ctx, m)
		return
	}

	if err := c.handler.Start(ctx, msg); err != nil {
		slog.Error("processing failed, message left for redelivery",
			"job_id", msg.JobID, "message_id", deref(m.MessageId), "error", err)
		return
	}
	c.delete(ctx, m)
}

func (c *Consumer) delete(ctx context.Context, m types.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.queueURL,
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		// The message will be redelivered; the handler's idempotency absorbs it.
		slog.Warn("delete failed", "message_id", deref(m.MessageId), "error", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
