// Package jobs finalizes mapping jobs and projects them into the shape the
// status API returns.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crosswalk-io/crosswalk/internal/store"
	"github.com/crosswalk-io/crosswalk/pkg/models"
)

// Updater writes terminal states for mapping jobs.
type Updater struct {
	jobs store.JobStore
}

// NewUpdater creates an Updater backed by the job store.
func NewUpdater(jobs store.JobStore) *Updater {
	return &Updater{jobs: jobs}
}

// Completed merges reasoning results into the candidates and persists the job
// as COMPLETED. Candidates without a reasoning result keep an empty string so
// the field is always present in the stored record.
func (u *Updater) Completed(ctx context.Context, jobID string, mappings []models.MappingCandidate, reasonings []models.ReasoningResult) error {
	byKey := make(map[string]string, len(reasonings))
	for _, r := range reasonings {
		byKey[r.TargetControlKey] = r.Reasoning
	}
	for i := range mappings {
		mappings[i].Reasoning = byKey[mappings[i].TargetControlKey]
	}

	if err := u.jobs.CompleteJob(ctx, jobID, mappings); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	slog.Info("job completed", "job_id", jobID, "mappings", len(mappings))
	return nil
}

// Failed persists the job as FAILED with a normalized error message.
func (u *Updater) Failed(ctx context.Context, jobID string, cause any) error {
	msg := NormalizeFailure(cause)
	if err := u.jobs.FailJob(ctx, jobID, msg); err != nil {
		return fmt.Errorf("fail job %s: %w", jobID, err)
	}
	slog.Info("job failed", "job_id", jobID, "error_message", msg)
	return nil
}

// NormalizeFailure flattens the various failure shapes that reach the updater
// (errors, plain strings, structured causes from the dispatch layer) into one
// message string.
func NormalizeFailure(cause any) string {
	switch v := cause.(type) {
	case nil:
		return "unknown error"
	case error:
		return v.Error()
	case string:
		if v == "" {
			return "unknown error"
		}
		return v
	case map[string]any:
		if c, ok := v["Cause"].(string); ok && c != "" {
			return c
		}
		if m, ok := v["message"].(string); ok && m != "" {
			return m
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
