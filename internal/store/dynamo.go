package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/crosswalk-io/crosswalk/pkg/models"
)

// DynamoStore implements JobStore and Catalog against DynamoDB.
//
// The jobs table is keyed by job_id alone (no sort key). Every status
// mutation goes through a conditional update so duplicate deliveries cannot
// regress the one-directional status lifecycle.
type DynamoStore struct {
	client     *dynamodb.Client
	jobsTable  string
	jobTTLDays int
}

// NewDynamoStore creates a DynamoStore over the given client.
func NewDynamoStore(client *dynamodb.Client, jobsTable string, jobTTLDays int) *DynamoStore {
	return &DynamoStore{
		client:     client,
		jobsTable:  jobsTable,
		jobTTLDays: jobTTLDays,
	}
}

// Ping checks table reachability.
func (s *DynamoStore) Ping(ctx context.Context) error {
	_, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: awsv2.String(s.jobsTable),
	})
	return err
}

// CreateJob writes a new PENDING job, conditioned on the generated id not
// already existing. On the practically-impossible UUID collision the existing
// record is returned instead of an error, keeping creation idempotent.
func (s *DynamoStore) CreateJob(ctx context.Context, controlKey, targetFrameworkKey string, targetControlIDs []string) (*models.Job, error) {
	now := time.Now().UTC()
	job := &models.Job{
		JobID:              uuid.NewString(),
		Status:             models.JobStatusPending,
		ControlKey:         controlKey,
		TargetFrameworkKey: targetFrameworkKey,
		TargetControlIDs:   targetControlIDs,
		CreatedAt:          now,
		UpdatedAt:          now,
		TTL:                now.AddDate(0, 0, s.jobTTLDays).Unix(),
	}

	item, err := attributevalue.MarshalMap(job)
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           awsv2.String(s.jobsTable),
		Item:                item,
		ConditionExpression: awsv2.String("attribute_not_exists(job_id)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return s.GetJob(ctx, job.JobID)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// GetJob fetches a job record by id, returning ErrNotFound when absent.
func (s *DynamoStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: awsv2.String(s.jobsTable),
		Key:       jobKey(jobID),
	})
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var job models.Job
	if err := attributevalue.UnmarshalMap(out.Item, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	return &job, nil
}

// UpdateStatus sets the job's status and updated_at timestamp. With
// WithExpectedStatus the write is conditioned on the current status; a lost
// condition surfaces as ErrConditionFailed, never as a retryable failure.
func (s *DynamoStore) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, opts ...UpdateOption) error {
	var p updateParams
	for _, opt := range opts {
		opt(&p)
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                awsv2.String(s.jobsTable),
		Key:                      jobKey(jobID),
		UpdateExpression:         awsv2.String("SET #status = :status, updated_at = :updated_at"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: string(status)},
			":updated_at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
	}
	if p.ExpectedStatus != nil {
		input.ConditionExpression = awsv2.String("#status = :expected")
		input.ExpressionAttributeValues[":expected"] = &types.AttributeValueMemberS{Value: string(*p.ExpectedStatus)}
	}

	if _, err := s.client.UpdateItem(ctx, input); err != nil {
		if isConditionalCheckFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update job %s status: %w", jobID, err)
	}
	return nil
}

// CompleteJob writes the terminal COMPLETED state with the merged mappings.
// Re-invocation with the same mappings is a no-op in effect.
func (s *DynamoStore) CompleteJob(ctx context.Context, jobID string, mappings []models.MappingCandidate) error {
	mapped, err := attributevalue.Marshal(mappings)
	if err != nil {
		return fmt.Errorf("marshal mappings: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: awsv2.String(s.jobsTable),
		Key:       jobKey(jobID),
		UpdateExpression: awsv2.String(
			"SET #status = :status, updated_at = :now, mappings = :mappings, completed_at = :now"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: string(models.JobStatusCompleted)},
			":now":      &types.AttributeValueMemberS{Value: now},
			":mappings": mapped,
		},
	})
	if err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// FailJob writes the terminal FAILED state with a human-readable error message.
func (s *DynamoStore) FailJob(ctx context.Context, jobID string, errorMessage string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: awsv2.String(s.jobsTable),
		Key:       jobKey(jobID),
		UpdateExpression: awsv2.String(
			"SET #status = :status, updated_at = :now, error_message = :error_message, failed_at = :now"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":        &types.AttributeValueMemberS{Value: string(models.JobStatusFailed)},
			":now":           &types.AttributeValueMemberS{Value: now},
			":error_message": &types.AttributeValueMemberS{Value: errorMessage},
		},
	})
	if err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	return nil
}

func jobKey(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"job_id": &types.AttributeValueMemberS{Value: jobID},
	}
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

var _ JobStore = (*DynamoStore)(nil)
