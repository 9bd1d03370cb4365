// Package lifecycle drives a research job from submission to its report:
// it validates input, submits, polls, projects progress and builds the
// report once the job completes.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kiranshivaraju/trialscope/internal/cache"
	"github.com/kiranshivaraju/trialscope/internal/history"
	"github.com/kiranshivaraju/trialscope/internal/poller"
	"github.com/kiranshivaraju/trialscope/internal/progress"
	"github.com/kiranshivaraju/trialscope/internal/report"
	"github.com/kiranshivaraju/trialscope/internal/research"
	"github.com/kiranshivaraju/trialscope/pkg/models"
)

// DefaultSnapshotTTL is how long terminal status snapshots stay cached.
const DefaultSnapshotTTL = time.Hour

const cacheTimeout = 2 * time.Second

// ValidateMolecule trims m and rejects it when nothing is left.
func ValidateMolecule(m string) (string, error) {
	m = strings.TrimSpace(m)
	if m == "" {
		return "", &ValidationError{Field: "molecule", Message: "must not be empty"}
	}
	return m, nil
}

// Update is delivered for every poll observation.
type Update struct {
	Observation poller.Observation
	Progress    progress.View
	// Report is set on the observation that reports completion.
	Report *report.Report
}

// Option configures a Controller.
type Option func(*Controller)

// WithCache enables terminal snapshot caching. A nil cache disables it.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(ctl *Controller) {
		ctl.cache = c
		if ttl > 0 {
			ctl.snapshotTTL = ttl
		}
	}
}

// WithPoller replaces the default poller.
func WithPoller(p *poller.Poller) Option {
	return func(ctl *Controller) {
		if p != nil {
			ctl.poller = p
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(ctl *Controller) {
		if l != nil {
			ctl.logger = l
		}
	}
}

// Controller is safe for concurrent use.
type Controller struct {
	client      research.Client
	poller      *poller.Poller
	history     *history.Reader
	cache       cache.Cache
	snapshotTTL time.Duration
	logger      *slog.Logger
}

// New creates a Controller over client.
func New(client research.Client, opts ...Option) *Controller {
	c := &Controller{
		client:      client,
		snapshotTTL: DefaultSnapshotTTL,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.poller == nil {
		c.poller = poller.New(client, poller.WithLogger(c.logger))
	}
	c.history = history.NewReader(client, c.logger)
	return c
}

// Submit validates the molecule and creates a job.
func (c *Controller) Submit(ctx context.Context, molecule, prompt string) (string, error) {
	molecule, err := ValidateMolecule(molecule)
	if err != nil {
		return "", err
	}

	jobID, err := c.client.Submit(ctx, molecule, prompt)
	if err != nil {
		return "", fmt.Errorf("submitting %q: %w", molecule, err)
	}

	c.logger.Info("research job submitted", "job_id", jobID, "molecule", molecule)
	return jobID, nil
}

// Watch polls jobID and calls fn with every observation. The returned
// handle stops the watch; fn must not call Stop on it.
func (c *Controller) Watch(ctx context.Context, jobID string, fn func(Update)) *poller.Handle {
	// Only touched from the poll goroutine. Empty until the backend has
	// reported a status.
	var lastNonFailed models.Status

	return c.poller.Start(ctx, jobID, func(obs poller.Observation) {
		if obs.Response != nil && obs.Status != models.StatusFailed {
			lastNonFailed = obs.Status
		}
		u := Update{
			Observation: obs,
			Progress:    progress.Snapshot(obs.Status, lastNonFailed),
		}

		if obs.Terminal && obs.Response != nil {
			c.storeSnapshot(ctx, obs.Response)
			if obs.Status == models.StatusCompleted && obs.Response.CanonicalResult != nil {
				r := report.Build(jobID, obs.Response.CanonicalResult)
				u.Report = &r
			}
		}

		if fn != nil {
			fn(u)
		}
	})
}

// Status fetches the job's current status once. Terminal snapshots are served
// from the cache when one is configured.
func (c *Controller) Status(ctx context.Context, jobID string) (*models.StatusResponse, error) {
	if snap := c.loadSnapshot(ctx, jobID); snap != nil {
		return snap, nil
	}

	resp, err := c.client.Status(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("fetching status of %s: %w", jobID, err)
	}
	if resp.Status.IsTerminal() {
		c.storeSnapshot(ctx, resp)
	}
	return resp, nil
}

// Report returns the built report of a completed job. A failed job yields
// ErrJobFailed and an unfinished one ErrNotReady.
func (c *Controller) Report(ctx context.Context, jobID string) (*report.Report, error) {
	resp, err := c.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return reportFor(resp)
}

// TrialsXLSX exports the trials of a completed job as a workbook.
func (c *Controller) TrialsXLSX(ctx context.Context, jobID string) ([]byte, error) {
	resp, err := c.Status(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if _, err := reportFor(resp); err != nil {
		return nil, err
	}
	return report.TrialsXLSX(resp.CanonicalResult)
}

// History lists past jobs, degrading to an empty listing on failure.
func (c *Controller) History(ctx context.Context) history.Listing {
	return c.history.Load(ctx)
}

// Download opens an artifact stream. The caller must close its Body.
func (c *Controller) Download(ctx context.Context, jobID, kind string) (*research.Artifact, error) {
	a, err := c.client.Download(ctx, jobID, kind)
	if err != nil {
		return nil, fmt.Errorf("downloading %s of %s: %w", kind, jobID, err)
	}
	return a, nil
}

// PollInterval reports the interval used by Watch.
func (c *Controller) PollInterval() time.Duration {
	return c.poller.Interval()
}

func reportFor(resp *models.StatusResponse) (*report.Report, error) {
	switch resp.Status {
	case models.StatusCompleted:
		if resp.CanonicalResult == nil {
			return nil, fmt.Errorf("job %s: %w", resp.JobID, ErrNoResult)
		}
		r := report.Build(resp.JobID, resp.CanonicalResult)
		return &r, nil
	case models.StatusFailed:
		return nil, fmt.Errorf("job %s: %w", resp.JobID, ErrJobFailed)
	default:
		return nil, fmt.Errorf("job %s is %s: %w", resp.JobID, resp.Status, ErrNotReady)
	}
}

func (c *Controller) loadSnapshot(ctx context.Context, jobID string) *models.StatusResponse {
	if c.cache == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()

	snap, found, err := c.cache.GetSnapshot(ctx, jobID)
	if err != nil {
		c.logger.Warn("snapshot cache read failed", "job_id", jobID, "error", err)
		return nil
	}
	if !found {
		return nil
	}
	c.logger.Debug("status served from snapshot cache", "job_id", jobID, "status", snap.Status)
	return snap
}

func (c *Controller) storeSnapshot(ctx context.Context, resp *models.StatusResponse) {
	if c.cache == nil {
		return
	}
	// The snapshot outlives the request that observed it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheTimeout)
	defer cancel()

	if err := c.cache.SetSnapshot(ctx, resp, c.snapshotTTL); err != nil {
		c.logger.Warn("snapshot cache write failed", "job_id", resp.JobID, "error", err)
	}
}
