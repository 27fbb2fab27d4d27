// Package mapping implements the accept path for mapping requests: validate,
// persist the job, enqueue the dispatch message.
package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crosswalk-io/crosswalk/internal/store"
	"github.com/crosswalk-io/crosswalk/pkg/keys"
	"github.com/crosswalk-io/crosswalk/pkg/models"
)

// ValidationError rejects a request field before any state is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError rejects a request referencing a control or framework the
// catalog does not have. Suggestion carries a best-effort hint for the caller.
type NotFoundError struct {
	Resource   string
	Key        string
	Suggestion string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.Key)
}

// Enqueuer publishes dispatch messages. Satisfied by dispatch.Publisher.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg models.DispatchMessage) error
}

// Request is an accepted-for-processing mapping request.
type Request struct {
	ControlKey         string
	TargetFrameworkKey string
	TargetControlIDs   []string
}

// Accepted is the response body for a 202.
type Accepted struct {
	MappingID          string `json:"mappingId"`
	Status             string `json:"status"`
	StatusURL          string `json:"statusUrl"`
	ControlKey         string `json:"controlKey"`
	TargetFrameworkKey string `json:"targetFrameworkKey"`
}

// Service validates mapping requests, creates the job record and enqueues the
// dispatch message.
type Service struct {
	jobs    store.JobStore
	catalog store.Catalog
	queue   Enqueuer
}

// NewService creates a Service.
func NewService(jobs store.JobStore, catalog store.Catalog, queue Enqueuer) *Service {
	return &Service{jobs: jobs, catalog: catalog, queue: queue}
}

// Accept runs the synchronous half of a mapping request. The job is durable
// before the dispatch message is sent: if the enqueue fails the caller gets an
// error, the job stays PENDING, and a retried request creates a fresh job.
func (s *Service) Accept(ctx context.Context, req Request) (*Accepted, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	exists, suggestion, err := s.catalog.ControlExists(ctx, req.ControlKey)
	if err != nil {
		return nil, fmt.Errorf("check control %s: %w", req.ControlKey, err)
	}
	if !exists {
		return nil, &NotFoundError{Resource: "control", Key: req.ControlKey, Suggestion: suggestion}
	}

	fwExists, samples, err := s.catalog.FrameworkExists(ctx, req.TargetFrameworkKey)
	if err != nil {
		return nil, fmt.Errorf("check framework %s: %w", req.TargetFrameworkKey, err)
	}
	if !fwExists {
		return nil, &NotFoundError{
			Resource:   "framework",
			Key:        req.TargetFrameworkKey,
			Suggestion: frameworkSuggestion(samples),
		}
	}

	job, err := s.jobs.CreateJob(ctx, req.ControlKey, req.TargetFrameworkKey, req.TargetControlIDs)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	msg := models.DispatchMessage{
		JobID:              job.JobID,
		ControlKey:         job.ControlKey,
		TargetFrameworkKey: job.TargetFrameworkKey,
		TargetControlIDs:   job.TargetControlIDs,
	}
	if err := s.queue.Enqueue(ctx, msg); err != nil {
		// The PENDING job record remains; it expires via TTL. Surfacing the
		// error tells the caller the request was not accepted.
		return nil, fmt.Errorf("enqueue job %s: %w", job.JobID, err)
	}

	slog.Info("mapping request accepted",
		"job_id", job.JobID,
		"control_key", job.ControlKey,
		"target_framework_key", job.TargetFrameworkKey,
		"target_control_ids", len(job.TargetControlIDs))

	return &Accepted{
		MappingID:          job.JobID,
		Status:             "ACCEPTED",
		StatusURL:          fmt.Sprintf("/api/v1/mappings/%s", job.JobID),
		ControlKey:         job.ControlKey,
		TargetFrameworkKey: job.TargetFrameworkKey,
	}, nil
}

// Status returns the stored job. Callers map store.ErrNotFound to a 404.
func (s *Service) Status(ctx context.Context, mappingID string) (*models.Job, error) {
	if mappingID == "" {
		return nil, &ValidationError{Field: "mappingId", Message: "must not be empty"}
	}
	return s.jobs.GetJob(ctx, mappingID)
}

func validate(req Request) error {
	if msg := keys.ValidateControlKey(req.ControlKey); msg != "" {
		return &ValidationError{Field: "control_key", Message: msg}
	}
	if msg := keys.ValidateFrameworkKey(req.TargetFrameworkKey); msg != "" {
		return &ValidationError{Field: "target_framework_key", Message: msg}
	}
	if msg := keys.ValidateTargetControlIDs(req.TargetControlIDs); msg != "" {
		return &ValidationError{Field: "target_control_ids", Message: msg}
	}
	return nil
}

func frameworkSuggestion(samples []string) string {
	if len(samples) == 0 {
		return ""
	}
	return fmt.Sprintf("Known frameworks include: %v", samples)
}
