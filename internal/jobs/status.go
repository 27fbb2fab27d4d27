package jobs

import (
	"time"

	"github.com/crosswalk-io/crosswalk/pkg/models"
)

// StatusView is the caller-facing projection of a mapping job. Internal
// bookkeeping fields (TTL, failure timestamps) never leave the store.
type StatusView struct {
	MappingID          string      `json:"mappingId"`
	Status             string      `json:"status"`
	ControlKey         string      `json:"controlKey"`
	TargetFrameworkKey string      `json:"targetFrameworkKey"`
	TargetControlIDs   []string    `json:"targetControlIds,omitempty"`
	CreatedAt          string      `json:"createdAt"`
	UpdatedAt          string      `json:"updatedAt"`
	Result             *ResultView `json:"result,omitempty"`
	Error              string      `json:"error,omitempty"`
}

// ResultView holds the outcome of a completed job.
type ResultView struct {
	Mappings    []models.MappingCandidate `json:"mappings"`
	CompletedAt string                    `json:"completedAt,omitempty"`
}

// Project converts a stored job into its status view. Results appear only on
// COMPLETED jobs and the error message only on FAILED ones.
func Project(job *models.Job) StatusView {
	view := StatusView{
		MappingID:          job.JobID,
		Status:             string(job.Status),
		ControlKey:         job.ControlKey,
		TargetFrameworkKey: job.TargetFrameworkKey,
		TargetControlIDs:   job.TargetControlIDs,
		CreatedAt:          job.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:          job.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}

	switch job.Status {
	case models.JobStatusCompleted:
		mappings := job.Mappings
		if mappings == nil {
			mappings = []models.MappingCandidate{}
		}
		view.Result = &ResultView{Mappings: mappings}
		if job.CompletedAt != nil {
			view.Result.CompletedAt = job.CompletedAt.UTC().Format(time.RFC3339Nano)
		}
	case models.JobStatusFailed:
		view.Error = job.ErrorMessage
		if view.Error == "" {
			view.Error = "unknown error"
		}
	}
	return view
}
