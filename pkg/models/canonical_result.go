package models

// CanonicalResult is the synthesized research output attached to a completed
// job. The client treats it as read-only.
type CanonicalResult struct {
	Molecule              string        `json:"molecule"`
	TrialSummary          string        `json:"trial_summary,omitempty"`
	Trials                []TrialRecord `json:"trials"`
	KeyFindings           []string      `json:"key_findings"`
	SuggestedFollowUp     []string      `json:"suggested_follow_up"`
	DataCompletenessScore *float64      `json:"data_completeness_score,omitempty"`
	ConfidenceOverall     *float64      `json:"confidence_overall,omitempty"`
	MarketData            *MarketData   `json:"market_data,omitempty"`
	RiskAssessment        string        `json:"risk_assessment,omitempty"`
}

// TrialRecord references one clinical trial. Phase, Status and Condition use
// backend vocabularies and are not validated here.
type TrialRecord struct {
	NCTID          string `json:"nct_id"`
	Phase          string `json:"phase"`
	Status         string `json:"status"`
	Condition      string `json:"condition"`
	Region         string `json:"region,omitempty"`
	ResultsSummary string `json:"results_summary,omitempty"`
}

// MarketData carries optional market sizing figures.
type MarketData struct {
	TAM         string   `json:"tam,omitempty"`
	SAM         string   `json:"sam,omitempty"`
	SOM         string   `json:"som,omitempty"`
	Trend       string   `json:"trend,omitempty"`
	Competitors []string `json:"competitors,omitempty"`
}

// Completeness returns the data completeness score, 0 when absent.
func (r *CanonicalResult) Completeness() float64 {
	return scoreOrZero(r.DataCompletenessScore)
}

// Confidence returns the overall confidence score, 0 when absent.
func (r *CanonicalResult) Confidence() float64 {
	return scoreOrZero(r.ConfidenceOverall)
}

func scoreOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
