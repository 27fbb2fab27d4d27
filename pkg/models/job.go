package models

import "time"

// JobStatus is the lifecycle state of a mapping job. Transitions are
// one-directional: PENDING → IN_PROGRESS → {COMPLETED | FAILED}. A job never
// re-enters an earlier state once it has left it.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job is the lifecycle record of one asynchronous mapping request.
// The client receives the job id on POST /api/v1/mappings and polls
// GET /api/v1/mappings/{id} until the status is COMPLETED or FAILED.
// Jobs are never deleted explicitly; they expire via the ttl attribute.
type Job struct {
	JobID              string             `dynamodbav:"job_id"                         json:"job_id"`
	Status             JobStatus          `dynamodbav:"status"                         json:"status"`
	ControlKey         string             `dynamodbav:"control_key"                    json:"control_key"`
	TargetFrameworkKey string             `dynamodbav:"target_framework_key"           json:"target_framework_key"`
	TargetControlIDs   []string           `dynamodbav:"target_control_ids,omitempty"   json:"target_control_ids,omitempty"`
	Mappings           []MappingCandidate `dynamodbav:"mappings,omitempty"             json:"mappings,omitempty"`
	ErrorMessage       string             `dynamodbav:"error_message,omitempty"        json:"error_message,omitempty"`
	CreatedAt          time.Time          `dynamodbav:"created_at"                     json:"created_at"`
	UpdatedAt          time.Time          `dynamodbav:"updated_at"                     json:"updated_at"`
	CompletedAt        *time.Time         `dynamodbav:"completed_at,omitempty"         json:"completed_at,omitempty"`
	FailedAt           *time.Time         `dynamodbav:"failed_at,omitempty"            json:"failed_at,omitempty"`
	TTL                int64              `dynamodbav:"ttl"                            json:"ttl"`
}
