package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	want := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"rfc3339 utc", `"2025-03-14T09:26:53Z"`, want},
		{"rfc3339 offset", `"2025-03-14T11:26:53+02:00"`, want},
		{"no zone read as utc", `"2025-03-14T09:26:53"`, want},
		{"fractional no zone", `"2025-03-14T09:26:53.250000"`, want.Add(250 * time.Millisecond)},
		{"space separator", `"2025-03-14 09:26:53"`, want},
		{"null", `null`, time.Time{}},
		{"empty", `""`, time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tt.input), &ts))
			assert.True(t, tt.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}
}

func TestTimestamp_UnmarshalJSON_Invalid(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"last tuesday"`), &ts))
	assert.Error(t, json.Unmarshal([]byte(`42`), &ts))
}

func TestTimestamp_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Timestamp{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	loc := time.FixedZone("X", 3600)
	b, err = json.Marshal(Timestamp{Time: time.Date(2025, 1, 1, 1, 0, 0, 0, loc)})
	require.NoError(t, err)
	assert.Equal(t, `"2025-01-01T00:00:00Z"`, string(b))
}

func TestStatusResponse_Decode(t *testing.T) {
	payload := `{
		"job_id": "7f3c",
		"status": "completed",
		"created_at": "2025-01-01T00:00:00",
		"canonical_result": {
			"molecule": "CardioFlow-7",
			"trials": [{"nct_id": "NCT1", "phase": "Phase 2", "status": "recruiting", "condition": "HF"}],
			"key_findings": [],
			"suggested_follow_up": [],
			"confidence_overall": 0.5
		}
	}`

	var resp StatusResponse
	require.NoError(t, json.Unmarshal([]byte(payload), &resp))
	assert.Equal(t, StatusCompleted, resp.Status)
	require.NotNil(t, resp.CanonicalResult)
	assert.Len(t, resp.CanonicalResult.Trials, 1)
	assert.Nil(t, resp.CanonicalResult.DataCompletenessScore)

	job := resp.Job()
	assert.Equal(t, "7f3c", job.ID)
	assert.Same(t, resp.CanonicalResult, job.CanonicalResult)
}
