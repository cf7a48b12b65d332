package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dossier/internal/adapters/memory"
	"dossier/internal/domain"
	"dossier/internal/workers/consumer"
)

func setup(t *testing.T) (*Service, *memory.Store, *memory.Dispatcher) {
	t.Helper()
	store := memory.NewStore(time.Hour)
	dispatcher := memory.NewDispatcher()
	return New(store, dispatcher), store, dispatcher
}

func TestStartInvalidKind(t *testing.T) {
	svc, store, dispatcher := setup(t)
	ctx := context.Background()

	_, err := svc.Start(ctx, "listing-42", "astrology", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidKind)

	// no record, no dispatch
	_, ok, err := store.FindDedup(ctx, "listing-42", domain.KindMarketIntelligence)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, dispatcher.Published())
}

func TestStartMissingSubject(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.Start(context.Background(), "", "market_intelligence", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStartCreatesQueuedJob(t *testing.T) {
	svc, store, dispatcher := setup(t)
	ctx := context.Background()

	params := json.RawMessage(`{"depth":"full"}`)
	id, err := svc.Start(ctx, "listing-42", "market_intelligence", params)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "listing-42", job.SubjectID)
	assert.Equal(t, domain.KindMarketIntelligence, job.Kind)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Equal(t, 0, job.Progress)
	assert.False(t, job.CancelRequested)
	assert.JSONEq(t, `{"depth":"full"}`, string(job.Params))
	assert.Equal(t, []string{id}, dispatcher.Published())
}

func TestStartIsIdempotentWithinDedupWindow(t *testing.T) {
	svc, _, dispatcher := setup(t)
	ctx := context.Background()

	id1, err := svc.Start(ctx, "listing-42", "market_intelligence", nil)
	require.NoError(t, err)
	id2, err := svc.Start(ctx, "listing-42", "market_intelligence", nil)
	require.NoError(t, err)

	assert.Equal(t, id1, id2, "sequential starts return the same job id")
	assert.Len(t, dispatcher.Published(), 1, "no second dispatch")

	// a different subject or kind gets its own job
	id3, err := svc.Start(ctx, "listing-43", "market_intelligence", nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
	id4, err := svc.Start(ctx, "listing-42", "due_diligence", nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id4)
}

func TestStartFallsThroughStaleDedupEntry(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	id1, err := svc.Start(ctx, "listing-42", "market_intelligence", nil)
	require.NoError(t, err)

	// the first job reaches a terminal state while its index entry lives on
	failed := domain.StatusFailed
	require.NoError(t, store.Update(ctx, id1, domain.JobUpdate{Status: &failed}))

	id2, err := svc.Start(ctx, "listing-42", "market_intelligence", nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestStartPublishFailureLeavesJobQueued(t *testing.T) {
	svc, store, dispatcher := setup(t)
	ctx := context.Background()
	dispatcher.Err = errors.New("broker unreachable")

	_, err := svc.Start(ctx, "listing-42", "market_intelligence", nil)
	require.Error(t, err)
	assert.True(t, domain.IsDependency(err))

	// the record persisted before the failing step stays in place
	id, ok, err := store.FindDedup(ctx, "listing-42", domain.KindMarketIntelligence)
	require.NoError(t, err)
	require.True(t, ok)
	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, job.Status)
}

func TestCancelQueuedJob(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	id, err := svc.Start(ctx, "listing-42", "market_intelligence", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, id))

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, job.Status)
	assert.True(t, job.CancelRequested)
}

func TestCancelRunningJobOnlySetsFlag(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	id, err := svc.Start(ctx, "listing-42", "market_intelligence", nil)
	require.NoError(t, err)
	running := domain.StatusRunning
	require.NoError(t, store.Update(ctx, id, domain.JobUpdate{Status: &running}))

	require.NoError(t, svc.Cancel(ctx, id))

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRunning, job.Status, "worker owns the transition")
	assert.True(t, job.CancelRequested)
}

func TestCancelTerminalJob(t *testing.T) {
	svc, store, _ := setup(t)
	ctx := context.Background()

	id, err := svc.Start(ctx, "listing-42", "market_intelligence", nil)
	require.NoError(t, err)
	succeeded := domain.StatusSucceeded
	running := domain.StatusRunning
	require.NoError(t, store.Update(ctx, id, domain.JobUpdate{Status: &running}))
	require.NoError(t, store.Update(ctx, id, domain.JobUpdate{Status: &succeeded}))

	err = svc.Cancel(ctx, id)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	job, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, job.Status)
	assert.False(t, job.CancelRequested, "record is not mutated")
}

func TestCancelUnknownJob(t *testing.T) {
	svc, _, _ := setup(t)
	err := svc.Cancel(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStatusUnknownJob(t *testing.T) {
	svc, _, _ := setup(t)
	_, err := svc.Status(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// analyzerFunc adapts a func to the consumer.Analyzer interface.
type analyzerFunc func(ctx context.Context, job domain.Job, cp consumer.Checkpoint) (json.RawMessage, error)

func (f analyzerFunc) Analyze(ctx context.Context, job domain.Job, cp consumer.Checkpoint) (json.RawMessage, error) {
	return f(ctx, job, cp)
}

// TestCooperativeCancelScenario walks the full submit / dedup / run / cancel /
// checkpoint sequence end to end against the in-memory adapters.
func TestCooperativeCancelScenario(t *testing.T) {
	svc, store, dispatcher := setup(t)
	ctx := context.Background()

	id, err := svc.Start(ctx, "listing-42", "market_intelligence", json.RawMessage(`{}`))
	require.NoError(t, err)

	dup, err := svc.Start(ctx, "listing-42", "market_intelligence", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.Equal(t, id, dup)
	require.Len(t, dispatcher.Published(), 1)

	worker := consumer.New(store, analyzerFunc(func(ctx context.Context, job domain.Job, cp consumer.Checkpoint) (json.RawMessage, error) {
		canceled, err := cp(50, "half the report")
		require.NoError(t, err)
		require.False(t, canceled, "no cancel requested yet")

		// the caller cancels while the job is running
		mid, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusRunning, mid.Status)
		require.Equal(t, 50, mid.Progress)

		require.NoError(t, svc.Cancel(ctx, job.ID))
		after, err := store.Get(ctx, job.ID)
		require.NoError(t, err)
		require.Equal(t, domain.StatusRunning, after.Status, "status stays running until the worker acts")
		require.True(t, after.CancelRequested)

		canceled, err = cp(75, "three quarters")
		require.NoError(t, err)
		require.True(t, canceled, "next checkpoint observes the flag")
		return nil, consumer.ErrCanceled
	}))

	require.NoError(t, worker.Handle(ctx, id))

	final, err := svc.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, final.Status)
	assert.True(t, final.CancelRequested)
	assert.Equal(t, 75, final.Progress)
}
