package relay

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"dossier/internal/domain"
	"dossier/internal/ports"
)

// Deliverer hands one dispatched job id to the consumer endpoint.
type Deliverer interface {
	Deliver(ctx context.Context, jobID string) error
}

// Config bounds the relay's retry behavior.
type Config struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	Lease        time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 5
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
	return c
}

// Run starts relay goroutines that claim dispatches from the outbox and
// deliver them to the consumer webhook. Failed deliveries are re-queued with
// capped exponential backoff; once MaxAttempts is exhausted the dispatch is
// abandoned and the still-queued job is auto-failed, so callers never poll a
// permanently stuck queued job.
func Run(ctx context.Context, queue ports.DispatchQueue, store ports.JobStore, deliverer Deliverer, cfg Config) {
	cfg = cfg.withDefaults()
	dispatches := make(chan ports.Dispatch, cfg.Workers)

	// claim loop
	go func() {
		ticker := time.NewTicker(cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(dispatches)
				return
			case <-ticker.C:
				for {
					d, found, err := queue.ClaimNextDispatch(ctx, cfg.Lease)
					if err != nil {
						log.Printf("relay: claim error: %v", err)
						break
					}
					if !found {
						break
					}
					dispatches <- d
				}
			}
		}
	}()

	for i := 0; i < cfg.Workers; i++ {
		go func(idx int) {
			for d := range dispatches {
				deliver(ctx, queue, store, deliverer, d, cfg, idx)
			}
		}(i)
	}
}

func deliver(ctx context.Context, queue ports.DispatchQueue, store ports.JobStore, deliverer Deliverer, d ports.Dispatch, cfg Config, idx int) {
	err := deliverer.Deliver(ctx, d.JobID)
	if err == nil {
		if err := queue.MarkDelivered(ctx, d.ID); err != nil {
			log.Printf("relay %d: mark delivered %s: %v", idx, d.ID, err)
		}
		return
	}

	if d.Attempts >= cfg.MaxAttempts {
		log.Printf("relay %d: dispatch %s exhausted after %d attempts: %v", idx, d.ID, d.Attempts, err)
		if aerr := queue.AbandonDispatch(ctx, d.ID, err.Error()); aerr != nil {
			log.Printf("relay %d: abandon %s: %v", idx, d.ID, aerr)
		}
		failQueuedJob(ctx, store, d.JobID, err)
		return
	}

	sec := math.Min(math.Pow(2, float64(d.Attempts)), 600)
	next := time.Now().Add(time.Duration(sec) * time.Second)
	if rerr := queue.RetryDispatch(ctx, d.ID, next, err.Error()); rerr != nil {
		log.Printf("relay %d: retry %s: %v", idx, d.ID, rerr)
	}
}

// failQueuedJob marks a job failed when its dispatch is abandoned, but only
// if no worker ever picked it up.
func failQueuedJob(ctx context.Context, store ports.JobStore, jobID string, cause error) {
	job, err := store.Get(ctx, jobID)
	if err != nil || job.Status != domain.StatusQueued {
		return
	}
	msg := fmt.Sprintf("dispatch failed: %v", cause)
	failed := domain.StatusFailed
	if err := store.Update(ctx, jobID, domain.JobUpdate{Status: &failed, Error: &msg}); err != nil {
		log.Printf("relay: auto-fail job %s: %v", jobID, err)
	}
}
