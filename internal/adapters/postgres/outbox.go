package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"dossier/internal/ports"
)

// The dispatch outbox. Publish appends a row; relay workers claim due rows
// with SKIP LOCKED and deliver them to the consumer webhook.

// Publish accepts jobID into the outbox. A committed row is "accepted by
// broker"; delivery happens asynchronously.
func (db *DB) Publish(ctx context.Context, jobID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO dispatches (id, job_id) VALUES ($1, $2)
	`, uuid.NewString(), jobID)
	return err
}

// ClaimNextDispatch locks the next due dispatch, bumps its attempt counter,
// and leases it forward so concurrent relays skip it while delivery is in
// flight.
func (db *DB) ClaimNextDispatch(ctx context.Context, lease time.Duration) (d ports.Dispatch, found bool, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return d, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			err = tx.Commit(ctx)
		}
	}()

	err = tx.QueryRow(ctx, `
		SELECT id, job_id, attempts FROM dispatches
		WHERE status = 'queued' AND next_attempt_at <= now()
		ORDER BY next_attempt_at
		FOR UPDATE SKIP LOCKED
		LIMIT 1
	`).Scan(&d.ID, &d.JobID, &d.Attempts)
	if errors.Is(err, pgx.ErrNoRows) {
		return d, false, nil
	}
	if err != nil {
		return d, false, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE dispatches SET attempts = attempts + 1, next_attempt_at = now() + $2
		WHERE id = $1
	`, d.ID, lease); err != nil {
		return d, false, err
	}
	d.Attempts++
	return d, true, nil
}

func (db *DB) MarkDelivered(ctx context.Context, dispatchID string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE dispatches SET status = 'delivered', delivered_at = now()
		WHERE id = $1
	`, dispatchID)
	return err
}

// RetryDispatch re-queues a failed delivery for a later attempt.
func (db *DB) RetryDispatch(ctx context.Context, dispatchID string, nextAttempt time.Time, reason string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE dispatches SET next_attempt_at = $2, last_error = $3
		WHERE id = $1
	`, dispatchID, nextAttempt, reason)
	return err
}

// AbandonDispatch gives up on a dispatch after exhausting its attempts.
func (db *DB) AbandonDispatch(ctx context.Context, dispatchID string, reason string) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE dispatches SET status = 'abandoned', last_error = $2
		WHERE id = $1
	`, dispatchID, reason)
	return err
}

var _ ports.Dispatcher = (*DB)(nil)
var _ ports.DispatchQueue = (*DB)(nil)
