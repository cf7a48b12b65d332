package ports

import (
	"context"
	"encoding/json"

	"dossier/internal/domain"
)

// Lifecycle submits, cancels and reports on analysis jobs.
type Lifecycle interface {
	Start(ctx context.Context, subjectID string, kind string, params json.RawMessage) (jobID string, err error)
	Cancel(ctx context.Context, jobID string) error
	Status(ctx context.Context, jobID string) (domain.Job, error)
}
