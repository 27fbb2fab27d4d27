// Package dispatch moves mapping jobs through SQS: the API publishes dispatch
// messages, the worker consumes them, and the redriver moves dead-lettered
// messages back onto the main queue.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/crosswalk-io/crosswalk/internal/config"
	"github.com/crosswalk-io/crosswalk/pkg/models"
)

// SQSAPI is the subset of the SQS client the dispatch layer uses. Tests
// substitute an in-memory fake.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// NewSQSClient builds an SQS client from the shared AWS configuration,
// honoring a custom endpoint for local development.
func NewSQSClient(ctx context.Context, cfg config.AWSConfig) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = &cfg.EndpointURL
		}
	}), nil
}

// Publisher enqueues dispatch messages onto the mapping request queue.
type Publisher struct {
	client   SQSAPI
	queueURL string
}

// NewPublisher creates a Publisher for the given queue URL.
func NewPublisher(client SQSAPI, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

// Enqueue serializes the message and sends it. On FIFO queues the job id
// doubles as the deduplication id, so a retried send of the same job cannot
// double-dispatch it.
func (p *Publisher) Enqueue(ctx context.Context, msg models.DispatchMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal dispatch message: %w", err)
	}

	bodyStr := string(body)
	input := &sqs.SendMessageInput{
		QueueUrl:    &p.queueURL,
		MessageBody: &bodyStr,
	}
	if strings.HasSuffix(p.queueURL, ".fifo") {
		// Group by source control so jobs for the same control stay ordered.
		input.MessageGroupId = &msg.ControlKey
		input.MessageDeduplicationId = &msg.JobID
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send dispatch message for job %s: %w", msg.JobID, err)
	}
	slog.Info("dispatch message enqueued", "job_id", msg.JobID, "control_key", msg.ControlKey)
	return nil
}

// Ping checks queue reachability.
func (p *Publisher) Ping(ctx context.Context) error {
	_, err := p.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl: &p.queueURL,
	})
	return err
}
