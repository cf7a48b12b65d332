package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dossier/internal/domain"
	"dossier/internal/ports"
)

// ErrCanceled is returned by a well-behaved Analyzer when a checkpoint
// reports that cancellation was requested.
var ErrCanceled = errors.New("analysis canceled at checkpoint")

// Checkpoint persists incremental progress and reports whether cancellation
// has been requested. Analyzers must call it at every natural pause and stop
// when it returns true.
type Checkpoint func(progress int, partialOutput string) (cancelRequested bool, err error)

// Analyzer computes one analysis. Opaque to the rest of the pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, job domain.Job, cp Checkpoint) (result json.RawMessage, err error)
}

// Worker honors the consumer contract for dispatched jobs: claim, report
// progress, observe the cancel flag cooperatively, write exactly one terminal
// status.
type Worker struct {
	store    ports.JobStore
	analyzer Analyzer
}

func New(store ports.JobStore, analyzer Analyzer) *Worker {
	return &Worker{store: store, analyzer: analyzer}
}

// Handle processes one delivered job id. It is idempotent with respect to
// duplicate delivery: missing or terminal jobs are a no-op.
func (w *Worker) Handle(ctx context.Context, jobID string) error {
	job, err := w.store.Get(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch job %s: %w", jobID, err)
	}
	if job.Status.Terminal() {
		return nil
	}
	if job.CancelRequested {
		return w.finish(ctx, jobID, domain.JobUpdate{Status: statusPtr(domain.StatusCanceled)})
	}

	if err := w.store.Update(ctx, jobID, domain.JobUpdate{Status: statusPtr(domain.StatusRunning)}); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			// lost a race with a terminal write, nothing to do
			return nil
		}
		return fmt.Errorf("mark running %s: %w", jobID, err)
	}

	// The persisted flag is the cross-process signal; runCtx mirrors it
	// locally for the duration of this execution.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	observedCancel := false
	cp := func(progress int, partialOutput string) (bool, error) {
		upd := domain.JobUpdate{Progress: &progress}
		if partialOutput != "" {
			upd.PartialOutput = &partialOutput
		}
		if err := w.store.Update(ctx, jobID, upd); err != nil {
			return false, err
		}
		cur, err := w.store.Get(ctx, jobID)
		if err != nil {
			return false, err
		}
		if cur.CancelRequested {
			observedCancel = true
			cancel()
			return true, nil
		}
		return false, nil
	}

	result, err := w.analyzer.Analyze(runCtx, job, cp)
	switch {
	case errors.Is(err, ErrCanceled) || (errors.Is(err, context.Canceled) && observedCancel):
		return w.finish(ctx, jobID, domain.JobUpdate{Status: statusPtr(domain.StatusCanceled)})
	case errors.Is(err, context.Canceled):
		// interrupted for a reason other than the cancel flag (shutdown);
		// leave the job running for the broker's re-delivery
		return err
	case err != nil:
		msg := err.Error()
		return w.finish(ctx, jobID, domain.JobUpdate{Status: statusPtr(domain.StatusFailed), Error: &msg})
	default:
		p := 100
		return w.finish(ctx, jobID, domain.JobUpdate{Status: statusPtr(domain.StatusSucceeded), Progress: &p, Result: result})
	}
}

func (w *Worker) finish(ctx context.Context, jobID string, upd domain.JobUpdate) error {
	err := w.store.Update(ctx, jobID, upd)
	if errors.Is(err, domain.ErrInvalidState) {
		// another worker already wrote a terminal status
		return nil
	}
	return err
}

func statusPtr(s domain.JobStatus) *domain.JobStatus { return &s }
