package memory

import (
	"context"
	"sync"
	"time"

	"dossier/internal/domain"
	"dossier/internal/ports"
)

type dedupKey struct {
	subjectID string
	kind      domain.AnalysisKind
}

type dedupEntry struct {
	jobID     string
	expiresAt time.Time
}

// Store is an in-memory ports.JobStore with the same merge and dedup
// semantics as the postgres adapter. Used for tests and local runs without a
// database.
type Store struct {
	mu       sync.Mutex
	jobs     map[string]domain.Job
	dedup    map[dedupKey]dedupEntry
	dedupTTL time.Duration

	// now is swappable so expiry behavior is testable.
	now func() time.Time
}

func NewStore(dedupTTL time.Duration) *Store {
	if dedupTTL <= 0 {
		dedupTTL = ports.DedupWindow
	}
	return &Store{
		jobs:     make(map[string]domain.Job),
		dedup:    make(map[dedupKey]dedupEntry),
		dedupTTL: dedupTTL,
		now:      time.Now,
	}
}

// SetClock overrides the store's time source. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) Get(ctx context.Context, id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return job, nil
}

func (s *Store) Put(ctx context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	if job.Status == domain.StatusQueued {
		key := dedupKey{subjectID: job.SubjectID, kind: job.Kind}
		cur, ok := s.dedup[key]
		// first unexpired writer wins; overwriting here would let a losing
		// racer hijack discoverability
		if !ok || cur.expiresAt.Before(s.now()) {
			s.dedup[key] = dedupEntry{jobID: job.ID, expiresAt: s.now().Add(s.dedupTTL)}
		}
	}
	return nil
}

func (s *Store) Update(ctx context.Context, id string, upd domain.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil
	}
	if upd.Status != nil {
		if !domain.CanTransition(job.Status, *upd.Status) {
			return domain.ErrInvalidState
		}
		job.Status = *upd.Status
	}
	if upd.Progress != nil && *upd.Progress > job.Progress {
		p := *upd.Progress
		if p > 100 {
			p = 100
		}
		job.Progress = p
	}
	if upd.PartialOutput != nil {
		job.PartialOutput = *upd.PartialOutput
	}
	if upd.Result != nil {
		job.Result = upd.Result
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	if upd.CancelRequested != nil {
		job.CancelRequested = *upd.CancelRequested
	}
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return nil
}

func (s *Store) FindDedup(ctx context.Context, subjectID string, kind domain.AnalysisKind) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.dedup[dedupKey{subjectID: subjectID, kind: kind}]
	if !ok || entry.expiresAt.Before(s.now()) {
		return "", false, nil
	}
	return entry.jobID, true, nil
}

var _ ports.JobStore = (*Store)(nil)
