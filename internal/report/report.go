// Package report turns a completed job's canonical result into display
// aggregates: histograms, percentages, download links and an XLSX export.
// Nothing in this package performs I/O.
package report

import (
	"math"
	"strings"

	"github.com/kiranshivaraju/trialscope/pkg/apipath"
	"github.com/kiranshivaraju/trialscope/pkg/models"
)

// Download is a resolved artifact link.
type Download struct {
	Kind     string `json:"kind"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Report is the render-ready view of a completed job.
type Report struct {
	JobID               string               `json:"job_id"`
	Molecule            string               `json:"molecule"`
	ConfidencePercent   int                  `json:"confidence_percent"`
	CompletenessPercent int                  `json:"completeness_percent"`
	TrialCount          int                  `json:"trial_count"`
	HasTrials           bool                 `json:"has_trials"`
	StatusHistogram     []Bucket             `json:"status_histogram"`
	PhaseHistogram      []Bucket             `json:"phase_histogram"`
	SummaryParagraphs   []string             `json:"summary_paragraphs"`
	KeyFindings         []string             `json:"key_findings"`
	FollowUp            []string             `json:"follow_up"`
	Trials              []models.TrialRecord `json:"trials"`
	MarketData          *models.MarketData   `json:"market_data,omitempty"`
	RiskAssessment      string               `json:"risk_assessment,omitempty"`
	Downloads           []Download           `json:"downloads"`
}

var downloadKinds = []string{apipath.ArtifactPDF, apipath.ArtifactPPT}

// DownloadURL returns the backend path serving the artifact of the given kind,
// relative to the backend base URL. "pptx" is accepted for the slide deck.
func DownloadURL(jobID, kind string) (string, error) {
	kind, err := apipath.NormalizeArtifact(kind)
	if err != nil {
		return "", err
	}
	return apipath.Builder{}.Download(jobID, kind), nil
}

// Build derives the report for jobID. result must not be nil.
func Build(jobID string, result *models.CanonicalResult) Report {
	r := Report{
		JobID:               jobID,
		Molecule:            result.Molecule,
		ConfidencePercent:   percent(result.Confidence()),
		CompletenessPercent: percent(result.Completeness()),
		TrialCount:          len(result.Trials),
		HasTrials:           len(result.Trials) > 0,
		StatusHistogram:     StatusHistogram(result.Trials),
		PhaseHistogram:      PhaseHistogram(result.Trials),
		SummaryParagraphs:   paragraphs(result.TrialSummary),
		KeyFindings:         nonNil(result.KeyFindings),
		FollowUp:            nonNil(result.SuggestedFollowUp),
		Trials:              result.Trials,
		MarketData:          result.MarketData,
		RiskAssessment:      strings.TrimSpace(result.RiskAssessment),
		Downloads:           make([]Download, 0, len(downloadKinds)),
	}
	if r.Trials == nil {
		r.Trials = []models.TrialRecord{}
	}

	for _, kind := range downloadKinds {
		url, _ := DownloadURL(jobID, kind)
		r.Downloads = append(r.Downloads, Download{
			Kind:     kind,
			URL:      url,
			Filename: apipath.ArtifactFilename(jobID, kind),
		})
	}
	return r
}

// percent renders a [0,1] score as a whole percentage.
func percent(score float64) int {
	score = math.Max(0, math.Min(1, score))
	return int(math.Round(score * 100))
}

func paragraphs(text string) []string {
	out := make([]string, 0)
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
