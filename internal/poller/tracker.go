package poller

import (
	"context"
	"sync"
)

// Tracker keeps at most one active poll loop. Tracking a new job stops the
// previous one first, so a superseded job never delivers another observation.
type Tracker struct {
	poller *Poller

	mu      sync.Mutex
	current *Handle
}

// NewTracker creates a Tracker that starts loops with p.
func NewTracker(p *Poller) *Tracker {
	return &Tracker{poller: p}
}

// Track stops the current loop, if any, and starts polling jobID.
// It must not be called from inside a subscriber of the current loop.
func (t *Tracker) Track(ctx context.Context, jobID string, sub Subscriber) *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		t.current.Stop()
	}
	t.current = t.poller.Start(ctx, jobID, sub)
	return t.current
}

// Current returns the active handle, or nil.
func (t *Tracker) Current() *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Stop stops the active loop, if any.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		t.current.Stop()
		t.current = nil
	}
}
