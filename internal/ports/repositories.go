package ports

import (
	"context"
	"time"

	"dossier/internal/domain"
)

// JobStore is durable storage for job records plus the (subject, kind)
// deduplication index. It is the single shared mutable resource; all
// coordination happens through its per-key operations.
type JobStore interface {
	// Get returns the record for id, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (domain.Job, error)

	// Put overwrites the record at job.ID. A fresh submission (status
	// queued, progress 0) also writes the dedup index entry so the job and
	// its discoverability appear together from the caller's point of view.
	Put(ctx context.Context, job domain.Job) error

	// Update merges the non-nil fields of upd into the current record and
	// stamps UpdatedAt. Unknown ids are a silent no-op: updates may race
	// with retention or arrive for ids this store never held. Status writes
	// against a terminal record return domain.ErrInvalidState. Progress is
	// clamped so it never decreases while running.
	Update(ctx context.Context, id string, upd domain.JobUpdate) error

	// FindDedup returns the in-flight job id recorded for (subjectID, kind),
	// if its entry has not yet expired.
	FindDedup(ctx context.Context, subjectID string, kind domain.AnalysisKind) (jobID string, ok bool, err error)
}

// DedupWindow is the default lifetime of a dedup index entry, independent of
// the job's own lifetime.
const DedupWindow = time.Hour
