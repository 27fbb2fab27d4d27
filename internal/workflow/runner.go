// Package workflow drives one mapping job end to end: claim it, run the
// pipeline, reason over the results and record the terminal state.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/crosswalk-io/crosswalk/internal/jobs"
	"github.com/crosswalk-io/crosswalk/internal/pipeline"
	"github.com/crosswalk-io/crosswalk/internal/reasoner"
	"github.com/crosswalk-io/crosswalk/internal/store"
	"github.com/crosswalk-io/crosswalk/pkg/models"
)

// Runner executes mapping jobs delivered by the dispatch consumer.
type Runner struct {
	jobs     store.JobStore
	orch     *pipeline.Orchestrator
	reasoner reasoner.Client
	updater  *jobs.Updater
}

// NewRunner creates a Runner.
func NewRunner(jobStore store.JobStore, orch *pipeline.Orchestrator, rc reasoner.Client, updater *jobs.Updater) *Runner {
	return &Runner{jobs: jobStore, orch: orch, reasoner: rc, updater: updater}
}

// Start processes one dispatch message. The return value is the redelivery
// contract: nil consumes the message, an error leaves it on the queue.
// Terminal pipeline failures (missing source control) fail the job and
// consume the message; transient failures (scorer, reasoner, store) leave the
// message so the visibility timeout retries it.
//
// Delivery is at-least-once, so Start must absorb replays: the claim below is
// a conditional PENDING→IN_PROGRESS write. Losing it against a terminal job
// means another delivery already finished the work; losing it against an
// IN_PROGRESS job means a previous attempt crashed mid-run, and this attempt
// resumes it.
func (r *Runner) Start(ctx context.Context, msg models.DispatchMessage) error {
	log := slog.With("job_id", msg.JobID, "control_key", msg.ControlKey)

	err := r.jobs.UpdateStatus(ctx, msg.JobID, models.JobStatusInProgress,
		store.WithExpectedStatus(models.JobStatusPending))
	if errors.Is(err, store.ErrConditionFailed) {
		// A conditional update on a missing item also fails the condition, so
		// a vanished record (expired TTL or a message that outlived its job)
		// lands here, not in an ErrNotFound branch.
		job, gerr := r.jobs.GetJob(ctx, msg.JobID)
		if errors.Is(gerr, store.ErrNotFound) {
			log.Warn("job record not found, dropping message")
			return nil
		}
		if gerr != nil {
			return fmt.Errorf("inspect job after lost claim: %w", gerr)
		}
		if job.Status.Terminal() {
			log.Info("job already finished, skipping", "status", job.Status)
			return nil
		}
		log.Warn("resuming in-progress job from a previous attempt", "status", job.Status)
	} else if err != nil {
		return fmt.Errorf("claim job: %w", err)
	}

	mappings, err := r.orch.MapControl(ctx, msg.ControlKey, msg.TargetFrameworkKey, msg.TargetControlIDs)
	if err != nil {
		if pipeline.Terminal(err) {
			log.Info("pipeline failed terminally", "error", err)
			if ferr := r.updater.Failed(ctx, msg.JobID, err); ferr != nil {
				return ferr
			}
			return nil
		}
		return fmt.Errorf("run pipeline: %w", err)
	}

	var reasonings []models.ReasoningResult
	if len(mappings) > 0 {
		sourceText, terr := r.orch.SourceText(ctx, msg.ControlKey)
		if terr != nil {
			return fmt.Errorf("resolve source text for reasoning: %w", terr)
		}
		reasonings, err = r.reasoner.ReasonBatch(ctx, msg.ControlKey, sourceText, mappings)
		if err != nil {
			return fmt.Errorf("reason over candidates: %w", err)
		}
	}

	if err := r.updater.Completed(ctx, msg.JobID, mappings, reasonings); err != nil {
		return err
	}
	log.Info("job finished", "mappings", len(mappings))
	return nil
}
