package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"dossier/internal/domain"
	"dossier/internal/ports"
)

// Service is the job lifecycle facade. It is stateless; all coordination is
// pushed into the store's per-key operations, so concurrent calls from
// independent request handlers need no in-process locking.
type Service struct {
	store      ports.JobStore
	dispatcher ports.Dispatcher
}

func New(store ports.JobStore, dispatcher ports.Dispatcher) *Service {
	return &Service{store: store, dispatcher: dispatcher}
}

// Start submits an analysis for (subjectID, kind). If an in-flight job is
// already discoverable through the dedup index, its id is returned unchanged
// and nothing new is dispatched.
func (s *Service) Start(ctx context.Context, subjectID string, kind string, params json.RawMessage) (string, error) {
	if subjectID == "" {
		return "", fmt.Errorf("%w: missing subject id", domain.ErrInvalidArgument)
	}
	k, err := domain.ParseKind(kind)
	if err != nil {
		return "", err
	}

	if existingID, ok, err := s.store.FindDedup(ctx, subjectID, k); err != nil {
		return "", &domain.DependencyError{Op: "dedup lookup", Err: err}
	} else if ok {
		existing, err := s.store.Get(ctx, existingID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// dangling index entry, fall through and create a new job
		case err != nil:
			return "", &domain.DependencyError{Op: "fetch dedup job", Err: err}
		case !existing.Status.Terminal():
			return existing.ID, nil
		}
		// terminal job behind a stale entry: fall through
	}

	now := time.Now().UTC()
	job := domain.Job{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Kind:      k,
		Params:    params,
		Status:    domain.StatusQueued,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Put(ctx, job); err != nil {
		return "", &domain.DependencyError{Op: "persist job", Err: err}
	}
	if err := s.dispatcher.Publish(ctx, job.ID); err != nil {
		// The record is already durable; leave it queued for the relay's
		// retry/auto-fail policy rather than attempting a rollback saga.
		log.Printf("lifecycle: job %s persisted but publish failed: %v", job.ID, err)
		return "", &domain.DependencyError{Op: "publish job", Err: err}
	}
	return job.ID, nil
}

// Cancel requests cancellation. A queued job is canceled outright; a running
// job only gets its flag set and stays running until the worker observes it
// at a checkpoint. Cancellation is cooperative: the core never forcibly
// stops external work.
func (s *Service) Cancel(ctx context.Context, jobID string) error {
	job, err := s.store.Get(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return &domain.DependencyError{Op: "fetch job", Err: err}
	}
	if job.Status.Terminal() {
		return domain.ErrInvalidState
	}

	flag := true
	upd := domain.JobUpdate{CancelRequested: &flag}
	if job.Status == domain.StatusQueued {
		canceled := domain.StatusCanceled
		upd.Status = &canceled
	}
	if err := s.store.Update(ctx, jobID, upd); err != nil {
		if errors.Is(err, domain.ErrInvalidState) {
			// lost the race with a terminal write
			return domain.ErrInvalidState
		}
		return &domain.DependencyError{Op: "update job", Err: err}
	}
	return nil
}

// Status is a passthrough read.
func (s *Service) Status(ctx context.Context, jobID string) (domain.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Job{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Job{}, &domain.DependencyError{Op: "fetch job", Err: err}
	}
	return job, nil
}

var _ ports.Lifecycle = (*Service)(nil)
