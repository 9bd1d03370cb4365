package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Helpers(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
		valid    bool
		rank     int
	}{
		{StatusQueued, false, true, 0},
		{StatusRunning, false, true, 1},
		{StatusGeneratingReport, false, true, 2},
		{StatusCompleted, true, true, 3},
		{StatusFailed, true, true, -1},
		{Status("paused"), false, false, -2},
		{Status(""), false, false, -2},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.valid, tt.status.IsValid())
			assert.Equal(t, tt.rank, tt.status.Rank())
		})
	}
}

func TestStatuses_LifecycleOrder(t *testing.T) {
	for i := 1; i < len(Statuses)-1; i++ {
		assert.Greater(t, Statuses[i].Rank(), Statuses[i-1].Rank())
	}
	assert.Equal(t, StatusFailed, Statuses[len(Statuses)-1])
}

func TestCanonicalResult_Scores(t *testing.T) {
	conf := 0.8
	r := &CanonicalResult{ConfidenceOverall: &conf}

	assert.Equal(t, 0.8, r.Confidence())
	assert.Equal(t, 0.0, r.Completeness())
}
