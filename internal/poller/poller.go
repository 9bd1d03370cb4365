// Package poller repeatedly fetches a research job's status at a fixed
// cadence until the job reaches a terminal state or the owner stops it.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/trialscope/pkg/models"
)

const (
	// DefaultInterval is the pause between the end of one fetch and the
	// start of the next.
	DefaultInterval = 2 * time.Second

	// DefaultDegradedAfter is the consecutive failure count at which
	// observations are flagged as degraded.
	DefaultDegradedAfter = 3
)

// ErrTooManyFailures ends a poll loop once the configured consecutive
// failure cap is reached. It is only produced when a cap is set.
var ErrTooManyFailures = errors.New("too many consecutive status fetch failures")

// StatusFetcher is the single backend call the poller depends on.
type StatusFetcher interface {
	Status(ctx context.Context, jobID string) (*models.StatusResponse, error)
}

// Observation is delivered to the subscriber after every fetch attempt,
// whether or not the status changed.
type Observation struct {
	JobID string
	// Status is the latest known status. After a failed fetch it is the
	// status from the last successful one (queued before any succeeded).
	Status              models.Status
	Response            *models.StatusResponse
	Err                 error
	Attempt             int
	ConsecutiveFailures int
	Degraded            bool
	Terminal            bool
	ObservedAt          time.Time
}

// Subscriber receives observations on the handle's goroutine, in the order
// the fetches were issued.
type Subscriber func(Observation)

// Option configures a Poller.
type Option func(*Poller)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(p *Poller) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithDegradedAfter sets the consecutive failure count that marks
// observations as degraded. Zero disables the indicator.
func WithDegradedAfter(n int) Option {
	return func(p *Poller) {
		if n >= 0 {
			p.degradedAfter = n
		}
	}
}

// WithMaxConsecutiveFailures stops polling after n consecutive failed
// fetches. Zero (the default) polls until a terminal status or Stop.
func WithMaxConsecutiveFailures(n int) Option {
	return func(p *Poller) {
		if n >= 0 {
			p.maxFailures = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// Poller starts independent poll loops. A Poller holds no per-job state and
// may start any number of handles concurrently.
type Poller struct {
	fetcher       StatusFetcher
	interval      time.Duration
	clock         Clock
	degradedAfter int
	maxFailures   int
	logger        *slog.Logger
}

// New creates a Poller over fetcher.
func New(fetcher StatusFetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:       fetcher,
		interval:      DefaultInterval,
		clock:         realClock{},
		degradedAfter: DefaultDegradedAfter,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Interval reports the configured pause between fetches.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start begins polling jobID immediately. The first fetch is issued without
// delay. Polling ends on a terminal status, when ctx is cancelled, or when the
// returned handle is stopped.
func (p *Poller) Start(ctx context.Context, jobID string, sub Subscriber) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		jobID:  jobID,
		cancel: cancel,
		done:   make(chan struct{}),
		last:   Observation{JobID: jobID, Status: models.StatusQueued},
	}
	go p.run(ctx, h, sub)
	return h
}

func (p *Poller) run(ctx context.Context, h *Handle, sub Subscriber) {
	defer close(h.done)
	defer h.cancel()

	log := p.logger.With("job_id", h.jobID)
	status := models.StatusQueued
	var attempt, failures int

	for {
		attempt++
		resp, err := p.fetcher.Status(ctx, h.jobID)
		if ctx.Err() != nil {
			// Stopped while the fetch was in flight; its result is stale.
			return
		}

		obs := Observation{
			JobID:      h.jobID,
			Attempt:    attempt,
			ObservedAt: p.clock.Now(),
		}

		if err != nil {
			failures++
			obs.Err = err
			log.Warn("status fetch failed", "attempt", attempt, "consecutive_failures", failures, "error", err)
		} else {
			failures = 0
			if resp.Status != models.StatusFailed && resp.Status.Rank() < status.Rank() {
				log.Warn("status moved backwards", "from", status, "to", resp.Status)
			}
			status = resp.Status
			obs.Response = resp
			log.Debug("status fetched", "attempt", attempt, "status", status)
		}

		obs.Status = status
		obs.ConsecutiveFailures = failures
		obs.Degraded = p.degradedAfter > 0 && failures >= p.degradedAfter
		obs.Terminal = err == nil && status.IsTerminal()

		stop := obs.Terminal
		if err != nil && p.maxFailures > 0 && failures >= p.maxFailures {
			obs.Err = fmt.Errorf("%w (%d): %w", ErrTooManyFailures, failures, err)
			stop = true
			log.Error("giving up on status polling", "consecutive_failures", failures)
		}
		if obs.Terminal {
			log.Info("job reached terminal status", "status", status, "attempts", attempt)
		}

		if !h.deliver(ctx, sub, obs) || stop {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.interval):
		}
	}
}

// Handle is the capability to observe and stop one poll loop.
type Handle struct {
	jobID  string
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	last Observation
}

// JobID returns the tracked job identifier.
func (h *Handle) JobID() string {
	return h.jobID
}

// Stop cancels any in-flight fetch, prevents further fetches and waits for
// the loop to exit. No subscriber call happens after Stop returns. Stop is
// idempotent. It must not be called from inside the subscriber.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Done is closed once the loop has exited for any reason.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Last returns the most recent observation delivered, or the initial queued
// observation if none has been delivered yet.
func (h *Handle) Last() Observation {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Wait blocks until the loop exits or ctx is done and returns the last
// observation.
func (h *Handle) Wait(ctx context.Context) (Observation, error) {
	select {
	case <-h.done:
		return h.Last(), nil
	case <-ctx.Done():
		return h.Last(), ctx.Err()
	}
}

// deliver records obs and hands it to sub unless the loop was cancelled.
func (h *Handle) deliver(ctx context.Context, sub Subscriber, obs Observation) bool {
	if ctx.Err() != nil {
		return false
	}
	h.mu.Lock()
	h.last = obs
	h.mu.Unlock()
	if sub != nil {
		sub(obs)
	}
	return true
}
