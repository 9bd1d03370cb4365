package report

import (
	"unicode/utf8"

	"github.com/kiranshivaraju/trialscope/pkg/models"
)

// Bucket is one chart bar: a category and its trial count.
type Bucket struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// StatusHistogram counts trials per recruitment status.
// Buckets are in first-seen order. Returns empty slice for no trials (never nil).
func StatusHistogram(trials []models.TrialRecord) []Bucket {
	return groupBy(trials, func(t models.TrialRecord) string { return t.Status })
}

// PhaseHistogram counts trials per phase, in first-seen order.
func PhaseHistogram(trials []models.TrialRecord) []Bucket {
	return groupBy(trials, func(t models.TrialRecord) string { return t.Phase })
}

func groupBy(trials []models.TrialRecord, key func(models.TrialRecord) string) []Bucket {
	buckets := make([]Bucket, 0)
	index := make(map[string]int)

	for _, t := range trials {
		k := key(t)
		i, exists := index[k]
		if !exists {
			i = len(buckets)
			index[k] = i
			buckets = append(buckets, Bucket{Name: k})
		}
		buckets[i].Value++
	}
	return buckets
}

// truncateString truncates s to maxBytes without splitting UTF-8 runes.
func truncateString(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
