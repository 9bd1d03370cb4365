// Package history reads the backend's list of previously submitted jobs.
package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/trialscope/pkg/models"
)

// Lister is the backend call the reader depends on.
type Lister interface {
	ListJobs(ctx context.Context) ([]models.JobSummary, error)
}

// Listing is the result of Load. Jobs is never nil.
type Listing struct {
	Jobs     []models.JobSummary `json:"jobs"`
	Err      error               `json:"-"`
	Degraded bool                `json:"degraded"`
}

// Reader lists past jobs in backend order.
type Reader struct {
	lister Lister
	logger *slog.Logger
}

// NewReader creates a Reader. A nil logger uses slog.Default().
func NewReader(lister Lister, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{lister: lister, logger: logger}
}

// List returns the jobs exactly as the backend ordered them.
func (r *Reader) List(ctx context.Context) ([]models.JobSummary, error) {
	jobs, err := r.lister.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	if jobs == nil {
		jobs = []models.JobSummary{}
	}
	return jobs, nil
}

// Load is List for display: a failure yields an empty, degraded listing
// instead of an error.
func (r *Reader) Load(ctx context.Context) Listing {
	jobs, err := r.List(ctx)
	if err != nil {
		r.logger.Warn("job history unavailable", "error", err)
		return Listing{Jobs: []models.JobSummary{}, Err: err, Degraded: true}
	}
	return Listing{Jobs: jobs}
}
