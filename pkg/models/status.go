// Package models contains the wire and domain types shared across trialscope.
package models

// Status is the coarse lifecycle state reported by the research backend.
type Status string

const (
	StatusQueued           Status = "queued"
	StatusRunning          Status = "running"
	StatusGeneratingReport Status = "generating_report"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// Statuses lists every known status in lifecycle order, failed last.
var Statuses = []Status{
	StatusQueued,
	StatusRunning,
	StatusGeneratingReport,
	StatusCompleted,
	StatusFailed,
}

// IsTerminal reports whether no further transitions can occur.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid reports whether s is part of the known vocabulary.
func (s Status) IsValid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusGeneratingReport, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Rank orders the forward statuses. failed is -1 and unknown values are -2.
func (s Status) Rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusRunning:
		return 1
	case StatusGeneratingReport:
		return 2
	case StatusCompleted:
		return 3
	case StatusFailed:
		return -1
	default:
		return -2
	}
}

func (s Status) String() string {
	return string(s)
}
