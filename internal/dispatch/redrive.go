package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// defaultRedriveMax bounds how many messages one redrive request moves.
const defaultRedriveMax = 100

// Redriver moves dead-lettered messages back onto the main queue.
type Redriver struct {
	client      SQSAPI
	dlqURL      string
	queueURL    string
	maxMessages int
}

// NewRedriver creates a Redriver from the DLQ to the main queue. maxMessages
// caps how many messages any single run may move; values <= 0 fall back to
// defaultRedriveMax.
func NewRedriver(client SQSAPI, dlqURL, queueURL string, maxMessages int) *Redriver {
	if maxMessages <= 0 {
		maxMessages = defaultRedriveMax
	}
	return &Redriver{client: client, dlqURL: dlqURL, queueURL: queueURL, maxMessages: maxMessages}
}

// RedriveRequest controls one redrive run.
type RedriveRequest struct {
	MaxMessages int  `json:"max_messages"`
	DryRun      bool `json:"dry_run"`
}

// RedriveResult reports what the run did. StatusCode doubles as the HTTP
// status: 200 on full success, 207 when some messages could not be moved.
type RedriveResult struct {
	StatusCode       int      `json:"statusCode"`
	Message          string   `json:"message"`
	DLQMessageCount  int      `json:"dlq_message_count"`
	MessagesRedriven int      `json:"messages_redriven"`
	Errors           []string `json:"errors,omitempty"`
	DryRun           bool     `json:"dry_run"`
}

// Run executes one redrive pass. A dry run only reports the approximate DLQ
// depth. Otherwise messages are received in batches of up to 10, re-sent to
// the main queue, and deleted from the DLQ only after a successful send, so a
// crash mid-run duplicates rather than loses messages.
func (r *Redriver) Run(ctx context.Context, req RedriveRequest) (*RedriveResult, error) {
	if r.dlqURL == "" {
		return nil, fmt.Errorf("no dead-letter queue configured")
	}
	max := req.MaxMessages
	if max <= 0 || max > r.maxMessages {
		max = r.maxMessages
	}

	depth, err := r.queueDepth(ctx)
	if err != nil {
		return nil, fmt.Errorf("get dlq depth: %w", err)
	}

	if req.DryRun {
		return &RedriveResult{
			StatusCode:      200,
			Message:         fmt.Sprintf("dry run: %d message(s) in the dead-letter queue", depth),
			DLQMessageCount: depth,
			DryRun:          true,
		}, nil
	}

	result := &RedriveResult{StatusCode: 200, DLQMessageCount: depth}
	for result.MessagesRedriven < max {
		remaining := max - result.MessagesRedriven
		batch := int32(remaining)
		if batch > 10 {
			batch = 10
		}

		out, err := r.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            &r.dlqURL,
			MaxNumberOfMessages: batch,
			WaitTimeSeconds:     1,
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("receive: %v", err))
			break
		}
		if len(out.Messages) == 0 {
			break
		}

		moved := 0
		for _, m := range out.Messages {
			if err := r.moveMessage(ctx, m); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			moved++
		}
		result.MessagesRedriven += moved
		// A batch that moved nothing will not start moving on retry within
		// this run; stop instead of spinning against a broken queue.
		if moved == 0 {
			break
		}
	}

	if len(result.Errors) > 0 {
		result.StatusCode = 207
		result.Message = fmt.Sprintf("redrove %d message(s) with %d error(s)", result.MessagesRedriven, len(result.Errors))
	} else {
		result.Message = fmt.Sprintf("redrove %d message(s)", result.MessagesRedriven)
	}
	slog.Info("redrive finished",
		"redriven", result.MessagesRedriven, "errors", len(result.Errors), "dlq_depth", depth)
	return result, nil
}

// moveMessage re-sends one DLQ message to the main queue and deletes it from
// the DLQ. Send-before-delete keeps the operation at-least-once.
func (r *Redriver) moveMessage(ctx context.Context, m types.Message) error {
	if _, err := r.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &r.queueURL,
		MessageBody: m.Body,
	}); err != nil {
		return fmt.Errorf("resend %s: %w", deref(m.MessageId), err)
	}
	if _, err := r.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &r.dlqURL,
		ReceiptHandle: m.ReceiptHandle,
	}); err != nil {
		return fmt.Errorf("delete %s after resend: %w", deref(m.MessageId), err)
	}
	return nil
}

func (r *Redriver) queueDepth(ctx context.Context) (int, error) {
	out, err := r.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       &r.dlqURL,
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return 0, err
	}
	raw := out.Attributes[string(types.QueueAttributeNameApproximateNumberOfMessages)]
	depth, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse queue depth %q: %w", raw, err)
	}
	return depth, nil
}
