// Package mock provides an in-memory research.Client for tests and offline
// demos.
package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kiranshivaraju/trialscope/internal/research"
	"github.com/kiranshivaraju/trialscope/pkg/apipath"
	"github.com/kiranshivaraju/trialscope/pkg/models"
)

// MockClient satisfies research.Client. Any nil func falls back to a benign
// default. Call counters are safe for concurrent use.
type MockClient struct {
	SubmitFunc   func(ctx context.Context, molecule, prompt string) (string, error)
	StatusFunc   func(ctx context.Context, jobID string) (*models.StatusResponse, error)
	ListJobsFunc func(ctx context.Context) ([]models.JobSummary, error)
	DownloadFunc func(ctx context.Context, jobID, kind string) (*research.Artifact, error)

	mu          sync.Mutex
	statusCalls map[string]int
	submitCalls int
}

func (m *MockClient) Submit(ctx context.Context, molecule, prompt string) (string, error) {
	m.mu.Lock()
	m.submitCalls++
	m.mu.Unlock()
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, molecule, prompt)
	}
	return "mock-job", nil
}

func (m *MockClient) Status(ctx context.Context, jobID string) (*models.StatusResponse, error) {
	m.mu.Lock()
	if m.statusCalls == nil {
		m.statusCalls = make(map[string]int)
	}
	m.statusCalls[jobID]++
	m.mu.Unlock()
	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, jobID)
	}
	return &models.StatusResponse{JobID: jobID, Status: models.StatusQueued}, nil
}

func (m *MockClient) ListJobs(ctx context.Context) ([]models.JobSummary, error) {
	if m.ListJobsFunc != nil {
		return m.ListJobsFunc(ctx)
	}
	return []models.JobSummary{}, nil
}

func (m *MockClient) Download(ctx context.Context, jobID, kind string) (*research.Artifact, error) {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, jobID, kind)
	}
	kind, err := apipath.NormalizeArtifact(kind)
	if err != nil {
		return nil, err
	}
	return &research.Artifact{
		Kind:          kind,
		Filename:      apipath.ArtifactFilename(jobID, kind),
		ContentType:   "application/octet-stream",
		ContentLength: 0,
		Body:          io.NopCloser(bytes.NewReader(nil)),
	}, nil
}

// StatusCalls returns how many status fetches were made for jobID.
func (m *MockClient) StatusCalls(jobID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusCalls[jobID]
}

// SubmitCalls returns how many submissions were made.
func (m *MockClient) SubmitCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitCalls
}

// Step is one scripted status observation. A non-nil Err makes that fetch
// fail instead.
type Step struct {
	Status models.Status
	Result *models.CanonicalResult
	Err    error
}

// NewScriptedClient returns a MockClient whose Submit yields jobID and whose
// Status walks through steps in order, repeating the last step once the
// script is exhausted.
func NewScriptedClient(jobID string, steps ...Step) *MockClient {
	var (
		mu  sync.Mutex
		idx int
	)
	created := models.Timestamp{Time: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}

	return &MockClient{
		SubmitFunc: func(_ context.Context, _, _ string) (string, error) {
			return jobID, nil
		},
		StatusFunc: func(_ context.Context, id string) (*models.StatusResponse, error) {
			if id != jobID {
				return nil, &research.TransportError{Op: "status", StatusCode: 404, Err: research.ErrBackendStatus}
			}
			if len(steps) == 0 {
				return &models.StatusResponse{JobID: id, Status: models.StatusQueued, CreatedAt: created}, nil
			}

			mu.Lock()
			step := steps[idx]
			if idx < len(steps)-1 {
				idx++
			}
			mu.Unlock()

			if step.Err != nil {
				return nil, step.Err
			}
			resp := &models.StatusResponse{JobID: id, Status: step.Status, CreatedAt: created}
			if step.Status == models.StatusCompleted {
				resp.CanonicalResult = step.Result
			}
			return resp, nil
		},
		ListJobsFunc: func(_ context.Context) ([]models.JobSummary, error) {
			return []models.JobSummary{{ID: jobID, Status: models.StatusQueued, CreatedAt: created}}, nil
		},
	}
}

// NewFailingClient returns a MockClient that always returns the given error.
func NewFailingClient(err error) *MockClient {
	return &MockClient{
		SubmitFunc: func(_ context.Context, _, _ string) (string, error) {
			return "", err
		},
		StatusFunc: func(_ context.Context, _ string) (*models.StatusResponse, error) {
			return nil, err
		},
		ListJobsFunc: func(_ context.Context) ([]models.JobSummary, error) {
			return nil, err
		},
		DownloadFunc: func(_ context.Context, _, _ string) (*research.Artifact, error) {
			return nil, err
		},
	}
}

// NewBlockingClient returns a MockClient whose calls block until the context
// is cancelled.
func NewBlockingClient() *MockClient {
	timeout := func(ctx context.Context, op string) error {
		<-ctx.Done()
		return &research.TransportError{Op: op, Err: research.ErrBackendTimeout, Cause: ctx.Err()}
	}
	return &MockClient{
		SubmitFunc: func(ctx context.Context, _, _ string) (string, error) {
			return "", timeout(ctx, "submit")
		},
		StatusFunc: func(ctx context.Context, _ string) (*models.StatusResponse, error) {
			return nil, timeout(ctx, "status")
		},
		ListJobsFunc: func(ctx context.Context) ([]models.JobSummary, error) {
			return nil, timeout(ctx, "list jobs")
		},
		DownloadFunc: func(ctx context.Context, _, _ string) (*research.Artifact, error) {
			return nil, timeout(ctx, "download")
		},
	}
}

// SampleResult returns a small canonical result for demos and tests.
func SampleResult(molecule string) *models.CanonicalResult {
	confidence, completeness := 0.72, 0.64
	return &models.CanonicalResult{
		Molecule:     molecule,
		TrialSummary: fmt.Sprintf("%s has been studied in three registered trials.\nMost activity is in heart failure.", molecule),
		Trials: []models.TrialRecord{
			{NCTID: "NCT05000001", Phase: "Phase 2", Status: "recruiting", Condition: "Heart Failure", Region: "US"},
			{NCTID: "NCT05000002", Phase: "Phase 3", Status: "recruiting", Condition: "Heart Failure", Region: "EU"},
			{NCTID: "NCT05000003", Phase: "Phase 2", Status: "completed", Condition: "Hypertension", ResultsSummary: "Met primary endpoint"},
		},
		KeyFindings:           []string{"Consistent efficacy signal in HFrEF", "No new safety signals"},
		SuggestedFollowUp:     []string{"Run a dose-ranging study in HFpEF"},
		ConfidenceOverall:     &confidence,
		DataCompletenessScore: &completeness,
	}
}

// Compile-time check that MockClient implements research.Client.
var _ research.Client = (*MockClient)(nil)
