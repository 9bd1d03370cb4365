// Package progress projects the backend's single coarse job status onto the
// fixed list of pipeline steps shown while a job runs. The projection is an
// approximation for display; the backend reports no per-step progress.
package progress

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kiranshivaraju/trialscope/pkg/models"
)

// State is the display state of one step.
type State string

const (
	StatePending   State = "pending"
	StateActive    State = "active"
	StateCompleted State = "completed"
)

// Step is one pipeline step and its state.
type Step struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	State State  `json:"state"`
}

type stepRule struct {
	id, label string
	completed []models.Status
	active    []models.Status
}

// Mining and synthesis both map from running; the backend does not tell
// them apart.
var rules = []stepRule{
	{
		id:        "clinical_trials",
		label:     "Evidence mining",
		completed: []models.Status{models.StatusGeneratingReport, models.StatusCompleted},
		active:    []models.Status{models.StatusRunning, models.StatusGeneratingReport, models.StatusCompleted},
	},
	{
		id:        "synthesis",
		label:     "Evidence synthesis",
		completed: []models.Status{models.StatusGeneratingReport, models.StatusCompleted},
		active:    []models.Status{models.StatusRunning, models.StatusGeneratingReport, models.StatusCompleted},
	},
	{
		id:        "report",
		label:     "Report generation",
		completed: []models.Status{models.StatusCompleted},
		active:    []models.Status{models.StatusGeneratingReport, models.StatusCompleted},
	},
}

// Project classifies every step for status. It returns a new slice on each
// call.
func Project(status models.Status) []Step {
	steps := make([]Step, 0, len(rules))
	for _, r := range rules {
		state := StatePending
		switch {
		case slices.Contains(r.completed, status):
			state = StateCompleted
		case slices.Contains(r.active, status):
			state = StateActive
		}
		steps = append(steps, Step{ID: r.id, Label: r.label, State: state})
	}
	return steps
}

// Percent returns the share of completed steps, 0 to 100.
func Percent(steps []Step) int {
	if len(steps) == 0 {
		return 0
	}
	done := 0
	for _, s := range steps {
		if s.State == StateCompleted {
			done++
		}
	}
	return done * 100 / len(steps)
}

// View is what a client renders for one observation.
type View struct {
	Status   models.Status `json:"status"`
	Steps    []Step        `json:"steps"`
	Percent  int           `json:"percent"`
	Terminal bool          `json:"terminal"`
	Failed   bool          `json:"failed"`
	Message  string        `json:"message,omitempty"`
}

// Snapshot builds the view for current. A failed job keeps the steps of
// lastNonFailed, the status seen before the failure, and carries a failure
// message instead of a failed step state. An empty lastNonFailed means the
// earlier status is unknown and yields a generic message.
func Snapshot(current, lastNonFailed models.Status) View {
	if current != models.StatusFailed {
		steps := Project(current)
		return View{
			Status:   current,
			Steps:    steps,
			Percent:  Percent(steps),
			Terminal: current.IsTerminal(),
		}
	}

	known := lastNonFailed != "" && lastNonFailed != models.StatusFailed
	if !known {
		lastNonFailed = models.StatusQueued
	}
	steps := Project(lastNonFailed)
	v := View{
		Status:   current,
		Steps:    steps,
		Percent:  Percent(steps),
		Terminal: true,
		Failed:   true,
		Message:  "Research job failed.",
	}
	if known {
		v.Message = failureMessage(steps)
	}
	return v
}

// failureMessage names the first step that was still in progress.
func failureMessage(steps []Step) string {
	for _, s := range steps {
		if s.State == StateActive {
			return fmt.Sprintf("Research job failed during %s.", strings.ToLower(s.Label))
		}
	}
	return "Research job failed before processing started."
}
