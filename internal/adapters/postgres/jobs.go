package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"dossier/internal/domain"
	"dossier/internal/ports"
)

func (db *DB) Get(ctx context.Context, id string) (domain.Job, error) {
	var job domain.Job
	var params, result []byte
	err := db.Pool.QueryRow(ctx, `
		SELECT id, subject_id, kind, params, status, progress, partial_output,
		       result, error, cancel_requested, created_at, updated_at
		FROM jobs WHERE id = $1
	`, id).Scan(&job.ID, &job.SubjectID, &job.Kind, &params, &job.Status,
		&job.Progress, &job.PartialOutput, &result, &job.Error,
		&job.CancelRequested, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Job{}, err
	}
	job.Params = params
	job.Result = result
	return job, nil
}

// Put overwrites the record and, for a fresh submission, writes the dedup
// entry in the same transaction. The dedup upsert only replaces an expired
// entry, which makes it the first-writer-wins serialization point for
// concurrent submissions.
func (db *DB) Put(ctx context.Context, job domain.Job) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	params := []byte(job.Params)
	if params == nil {
		params = []byte(`{}`)
	}
	if _, err = tx.Exec(ctx, `
		INSERT INTO jobs (id, subject_id, kind, params, status, progress,
		                  partial_output, result, error, cancel_requested,
		                  created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			subject_id = EXCLUDED.subject_id,
			kind = EXCLUDED.kind,
			params = EXCLUDED.params,
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			partial_output = EXCLUDED.partial_output,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			cancel_requested = EXCLUDED.cancel_requested,
			updated_at = EXCLUDED.updated_at
	`, job.ID, job.SubjectID, string(job.Kind), params, string(job.Status),
		job.Progress, job.PartialOutput, []byte(job.Result), job.Error,
		job.CancelRequested, job.CreatedAt, job.UpdatedAt); err != nil {
		return err
	}

	if job.Status == domain.StatusQueued {
		if _, err = tx.Exec(ctx, `
			INSERT INTO job_dedup (subject_id, kind, job_id, expires_at)
			VALUES ($1, $2, $3, now() + $4)
			ON CONFLICT (subject_id, kind) DO UPDATE SET
				job_id = EXCLUDED.job_id,
				expires_at = EXCLUDED.expires_at
			WHERE job_dedup.expires_at < now()
		`, job.SubjectID, string(job.Kind), job.ID, db.dedupTTL); err != nil {
			return err
		}
	}
	return nil
}

// Update merges the supplied fields into the current record. Progress never
// decreases; status writes against a terminal record fail with
// domain.ErrInvalidState; unknown ids are a silent no-op.
func (db *DB) Update(ctx context.Context, id string, upd domain.JobUpdate) (err error) {
	if upd.Empty() {
		return nil
	}

	const mergeSQL = `
		UPDATE jobs SET
			status = COALESCE($2, status),
			progress = GREATEST(progress, LEAST(COALESCE($3, progress), 100)),
			partial_output = COALESCE($4, partial_output),
			result = COALESCE($5, result),
			error = COALESCE($6, error),
			cancel_requested = COALESCE($7, cancel_requested),
			updated_at = now()
		WHERE id = $1
	`
	args := []any{id, (*string)(upd.Status), upd.Progress, upd.PartialOutput,
		[]byte(upd.Result), upd.Error, upd.CancelRequested}

	if upd.Status == nil {
		_, err = db.Pool.Exec(ctx, mergeSQL, args...)
		return err
	}

	// Status changes validate the transition under a row lock so a terminal
	// record can never transition again.
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	var current domain.JobStatus
	err = tx.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	if !domain.CanTransition(current, *upd.Status) {
		return domain.ErrInvalidState
	}
	_, err = tx.Exec(ctx, mergeSQL, args...)
	return err
}

func (db *DB) FindDedup(ctx context.Context, subjectID string, kind domain.AnalysisKind) (string, bool, error) {
	var jobID string
	err := db.Pool.QueryRow(ctx, `
		SELECT job_id FROM job_dedup
		WHERE subject_id = $1 AND kind = $2 AND expires_at > now()
	`, subjectID, string(kind)).Scan(&jobID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return jobID, true, nil
}

var _ ports.JobStore = (*DB)(nil)
