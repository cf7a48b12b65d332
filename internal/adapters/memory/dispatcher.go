package memory

import (
	"context"
	"sync"

	"dossier/internal/ports"
)

// Dispatcher is an in-memory ports.Dispatcher. It records every published job
// id and can optionally hand each one to a Deliver func, which lets tests run
// a consumer inline instead of standing up the outbox relay.
type Dispatcher struct {
	mu        sync.Mutex
	published []string

	// Deliver, if set, is invoked synchronously for each publish.
	Deliver func(ctx context.Context, jobID string) error

	// Err, if set, is returned from Publish to simulate a broker outage.
	Err error
}

func NewDispatcher() *Dispatcher { return &Dispatcher{} }

func (d *Dispatcher) Publish(ctx context.Context, jobID string) error {
	d.mu.Lock()
	if d.Err != nil {
		d.mu.Unlock()
		return d.Err
	}
	d.published = append(d.published, jobID)
	deliver := d.Deliver
	d.mu.Unlock()
	if deliver != nil {
		return deliver(ctx, jobID)
	}
	return nil
}

// Published returns a copy of all job ids accepted so far.
func (d *Dispatcher) Published() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.published))
	copy(out, d.published)
	return out
}

var _ ports.Dispatcher = (*Dispatcher)(nil)
