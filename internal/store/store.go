package store

import (
	"context"
	"errors"

	"github.com/crosswalk-io/crosswalk/pkg/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrConditionFailed is returned when a conditional write loses to a
	// concurrent or duplicate transition. Callers treat it as benign.
	ErrConditionFailed = errors.New("conditional write failed")
)

// JobStore is the data access interface for mapping job lifecycle records.
type JobStore interface {
	Ping(ctx context.Context) error
	CreateJob(ctx context.Context, controlKey, targetFrameworkKey string, targetControlIDs []string) (*models.Job, error)
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, opts ...UpdateOption) error
	CompleteJob(ctx context.Context, jobID string, mappings []models.MappingCandidate) error
	FailJob(ctx context.Context, jobID string, errorMessage string) error
}

// Catalog is the read-only interface over framework and control records.
type Catalog interface {
	GetControl(ctx context.Context, controlKey string) (*models.Control, error)
	ControlExists(ctx context.Context, controlKey string) (bool, string, error)
	FrameworkExists(ctx context.Context, frameworkKey string) (bool, []string, error)
	ListFrameworkControls(ctx context.Context, frameworkKey string) ([]models.Control, error)
	BatchGetControls(ctx context.Context, frameworkKey string, controlIDs []string) ([]models.Control, error)
	GetEnrichment(ctx context.Context, controlKey string) (string, bool, error)
}

type updateParams struct {
	ExpectedStatus *models.JobStatus
}

// UpdateOption customizes an UpdateStatus call.
type UpdateOption func(*updateParams)

// WithExpectedStatus conditions the update on the job's current status. If the
// condition does not hold the store returns ErrConditionFailed.
func WithExpectedStatus(s models.JobStatus) UpdateOption {
	return func(p *updateParams) {
		p.ExpectedStatus = &s
	}
}
