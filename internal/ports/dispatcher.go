package ports

import (
	"context"
	"time"
)

// Dispatcher hands a queued job id to the asynchronous broker for later
// delivery to a worker endpoint. Publish only guarantees "accepted by
// broker"; delivery, retries and duplicate delivery are the broker's
// business. It must not block the caller beyond a bounded short interval.
type Dispatcher interface {
	Publish(ctx context.Context, jobID string) error
}

// Dispatch is one pending delivery in the broker outbox.
type Dispatch struct {
	ID       string
	JobID    string
	Attempts int
}

// DispatchQueue is the broker-side view of the outbox, consumed by relay
// workers.
type DispatchQueue interface {
	// ClaimNextDispatch returns the next due dispatch with its attempt
	// counter already bumped, leased forward so concurrent relays skip it.
	ClaimNextDispatch(ctx context.Context, lease time.Duration) (d Dispatch, found bool, err error)
	MarkDelivered(ctx context.Context, dispatchID string) error
	RetryDispatch(ctx context.Context, dispatchID string, nextAttempt time.Time, reason string) error
	AbandonDispatch(ctx context.Context, dispatchID string, reason string) error
}
