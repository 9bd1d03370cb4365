package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Job is one submitted research request as seen by the client. The ID is
// opaque: it is never parsed and never assumed to be sequential.
type Job struct {
	ID              string           `json:"job_id"`
	Molecule        string           `json:"molecule,omitempty"`
	Status          Status           `json:"status"`
	CreatedAt       Timestamp        `json:"created_at"`
	CanonicalResult *CanonicalResult `json:"canonical_result,omitempty"`
}

// JobSummary is one row of the job history listing.
type JobSummary struct {
	ID        string    `json:"job_id"`
	Molecule  string    `json:"molecule"`
	Status    Status    `json:"status"`
	CreatedAt Timestamp `json:"created_at"`
}

// SubmitRequest is the body of POST /api/research.
type SubmitRequest struct {
	Molecule string `json:"molecule"`
	Prompt   string `json:"prompt"`
}

// SubmitResponse is the body returned by POST /api/research.
type SubmitResponse struct {
	JobID string `json:"job_id"`
}

// StatusResponse is the body of GET /api/research/{job_id}/status.
// CanonicalResult is only populated once Status is completed.
type StatusResponse struct {
	JobID           string           `json:"job_id"`
	Status          Status           `json:"status"`
	CanonicalResult *CanonicalResult `json:"canonical_result,omitempty"`
	CreatedAt       Timestamp        `json:"created_at"`
}

// Job converts the status payload into a Job snapshot.
func (r *StatusResponse) Job() Job {
	return Job{
		ID:              r.JobID,
		Status:          r.Status,
		CreatedAt:       r.CreatedAt,
		CanonicalResult: r.CanonicalResult,
	}
}

// Timestamp accepts the ISO-8601 variants the backend emits, with or without
// a zone offset. Values without an offset are read as UTC.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}
