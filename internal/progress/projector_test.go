package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/trialscope/pkg/models"
)

func states(steps []Step) []State {
	out := make([]State, len(steps))
	for i, s := range steps {
		out[i] = s.State
	}
	return out
}

func TestProject(t *testing.T) {
	tests := []struct {
		status models.Status
		want   []State
	}{
		{models.StatusQueued, []State{StatePending, StatePending, StatePending}},
		{models.StatusRunning, []State{StateActive, StateActive, StatePending}},
		{models.StatusGeneratingReport, []State{StateCompleted, StateCompleted, StateActive}},
		{models.StatusCompleted, []State{StateCompleted, StateCompleted, StateCompleted}},
		{models.StatusFailed, []State{StatePending, StatePending, StatePending}},
		{models.Status("paused"), []State{StatePending, StatePending, StatePending}},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, states(Project(tt.status)))
		})
	}
}

func TestProject_StepOrderAndLabels(t *testing.T) {
	steps := Project(models.StatusQueued)
	require.Len(t, steps, 3)
	assert.Equal(t, "clinical_trials", steps[0].ID)
	assert.Equal(t, "Evidence mining", steps[0].Label)
	assert.Equal(t, "synthesis", steps[1].ID)
	assert.Equal(t, "Evidence synthesis", steps[1].Label)
	assert.Equal(t, "report", steps[2].ID)
	assert.Equal(t, "Report generation", steps[2].Label)
}

func TestProject_Idempotent(t *testing.T) {
	for _, s := range models.Statuses {
		first := Project(s)
		second := Project(s)
		assert.Equal(t, first, second, "status %s", s)

		// Callers own the returned slice.
		first[0].State = StateCompleted
		assert.Equal(t, second, Project(s), "status %s", s)
	}
}

func TestProject_CompletedOnlyAtFinalObservation(t *testing.T) {
	sequence := []models.Status{
		models.StatusQueued,
		models.StatusRunning,
		models.StatusGeneratingReport,
		models.StatusCompleted,
	}

	for i, s := range sequence {
		steps := Project(s)
		allDone := true
		for _, st := range steps {
			allDone = allDone && st.State == StateCompleted
		}
		assert.Equal(t, i == len(sequence)-1, allDone, "status %s", s)
	}

	assert.Equal(t, StateActive, Project(models.StatusGeneratingReport)[2].State)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(nil))
	assert.Equal(t, 0, Percent(Project(models.StatusRunning)))
	assert.Equal(t, 66, Percent(Project(models.StatusGeneratingReport)))
	assert.Equal(t, 100, Percent(Project(models.StatusCompleted)))
}

func TestSnapshot_NonFailed(t *testing.T) {
	v := Snapshot(models.StatusGeneratingReport, models.StatusGeneratingReport)
	assert.Equal(t, models.StatusGeneratingReport, v.Status)
	assert.Equal(t, Project(models.StatusGeneratingReport), v.Steps)
	assert.False(t, v.Terminal)
	assert.False(t, v.Failed)
	assert.Empty(t, v.Message)

	v = Snapshot(models.StatusCompleted, models.StatusCompleted)
	assert.True(t, v.Terminal)
	assert.Equal(t, 100, v.Percent)
}

func TestSnapshot_FailedFreezesLastSteps(t *testing.T) {
	tests := []struct {
		name    string
		last    models.Status
		want    []State
		message string
	}{
		{
			name:    "after running",
			last:    models.StatusRunning,
			want:    []State{StateActive, StateActive, StatePending},
			message: "Research job failed during evidence mining.",
		},
		{
			name:    "after generating report",
			last:    models.StatusGeneratingReport,
			want:    []State{StateCompleted, StateCompleted, StateActive},
			message: "Research job failed during report generation.",
		},
		{
			name:    "before any progress",
			last:    models.StatusQueued,
			want:    []State{StatePending, StatePending, StatePending},
			message: "Research job failed before processing started.",
		},
		{
			name:    "no earlier status",
			last:    "",
			want:    []State{StatePending, StatePending, StatePending},
			message: "Research job failed.",
		},
		{
			name:    "earlier status also failed",
			last:    models.StatusFailed,
			want:    []State{StatePending, StatePending, StatePending},
			message: "Research job failed.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Snapshot(models.StatusFailed, tt.last)
			assert.Equal(t, models.StatusFailed, v.Status)
			assert.True(t, v.Failed)
			assert.True(t, v.Terminal)
			assert.Equal(t, tt.want, states(v.Steps))
			assert.Equal(t, tt.message, v.Message)
		})
	}
}
