package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/trialscope/internal/research"
	"github.com/kiranshivaraju/trialscope/internal/research/mock"
	"github.com/kiranshivaraju/trialscope/pkg/models"
)

func TestReader_List_PreservesBackendOrder(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	jobs := []models.JobSummary{
		{ID: "job-2", Molecule: "Zeta", Status: models.StatusRunning, CreatedAt: models.Timestamp{Time: created}},
		{ID: "job-9", Molecule: "Alpha", Status: models.StatusCompleted, CreatedAt: models.Timestamp{Time: created.Add(time.Hour)}},
		{ID: "job-1", Molecule: "Mu", Status: models.StatusFailed},
	}
	client := &mock.MockClient{
		ListJobsFunc: func(ctx context.Context) ([]models.JobSummary, error) { return jobs, nil },
	}

	got, err := NewReader(client, nil).List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, jobs, got)
}

func TestReader_List_NilBecomesEmpty(t *testing.T) {
	client := &mock.MockClient{
		ListJobsFunc: func(ctx context.Context) ([]models.JobSummary, error) { return nil, nil },
	}

	got, err := NewReader(client, nil).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestReader_List_TransportError(t *testing.T) {
	client := mock.NewFailingClient(&research.TransportError{Op: "list jobs", StatusCode: 503, Err: research.ErrBackendStatus})

	_, err := NewReader(client, nil).List(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, research.ErrTransport)
	assert.ErrorIs(t, err, research.ErrBackendStatus)
}

func TestReader_Load_Degrades(t *testing.T) {
	client := mock.NewFailingClient(&research.TransportError{Op: "list jobs", Err: research.ErrBackendUnreachable})

	listing := NewReader(client, nil).Load(context.Background())
	assert.True(t, listing.Degraded)
	assert.ErrorIs(t, listing.Err, research.ErrBackendUnreachable)
	require.NotNil(t, listing.Jobs)
	assert.Empty(t, listing.Jobs)
}

func TestReader_Load_OK(t *testing.T) {
	client := &mock.MockClient{
		ListJobsFunc: func(ctx context.Context) ([]models.JobSummary, error) {
			return []models.JobSummary{{ID: "job-1", Molecule: "CardioFlow-7", Status: models.StatusQueued}}, nil
		},
	}

	listing := NewReader(client, nil).Load(context.Background())
	assert.False(t, listing.Degraded)
	assert.NoError(t, listing.Err)
	assert.Len(t, listing.Jobs, 1)
}
