// Package verify implements the claim verification engine: claim
// extraction, batched verification-program generation, sandboxed evidence
// gathering, batched evaluation, and risk assessment.
package verify

import "cardcheck/internal/search"

// Claim is one checkable assertion extracted from the card. Claims are
// created once by the extractor and immutable afterwards; ID is the join
// key through every later stage.
type Claim struct {
	ID                   string   `json:"id"`
	Category             string   `json:"category"` // free text, taken from the card's own vocabulary
	ClaimType            string   `json:"claim_type"`
	Description          string   `json:"description"`
	VerificationStrategy string   `json:"verification_strategy"`
	SearchQueries        []string `json:"search_queries"`
	ExpectedEvidence     string   `json:"expected_evidence"`
}

// GeneratedProgram is one sandboxed verification snippet, paired 1:1 with a
// claim. Stub marks a deterministic no-evidence substitute for a missing or
// unusable generator entry.
type GeneratedProgram struct {
	ClaimID string `json:"claim_id"`
	Code    string `json:"code"`
	Stub    bool   `json:"stub,omitempty"`
}

// Evidence is the outcome of executing one generated program. Error holds
// the captured failure note when the program raised or timed out.
type Evidence struct {
	search.Result
	Error string `json:"error,omitempty"`
}

// Severity grades a discrepancy.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Discrepancy is one mismatch between a claim and the implementation.
type Discrepancy struct {
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// VerificationResult is the judged outcome for one claim. Invariants
// enforced by the evaluator: Confidence in [0,1]; Verified implies
// Confidence >= 0.5; Evidence.Found == false implies Verified == false.
type VerificationResult struct {
	ClaimID       string        `json:"claim_id"`
	Verified      bool          `json:"verified"`
	Confidence    float64       `json:"confidence"`
	Reasoning     string        `json:"reasoning"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	GeneratedCode string        `json:"generated_code"`
}

// RiskLevel is the ordered overall risk scale.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// rank orders risk levels for monotonicity checks.
func (r RiskLevel) rank() int {
	switch r {
	case RiskLow:
		return 0
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	case RiskCritical:
		return 3
	default:
		return 0
	}
}

// ClaimAssessment is the per-claim entry of a risk assessment.
type ClaimAssessment struct {
	ClaimID         string        `json:"claim_id"`
	MatchStatus     string        `json:"match_status"` // "verified" or "unverified"
	RiskLevel       RiskLevel     `json:"risk_level"`
	Confidence      float64       `json:"confidence"`
	EvidenceSummary string        `json:"evidence_summary"`
	Discrepancies   []Discrepancy `json:"discrepancies"`
	Impact          string        `json:"impact"`
	Recommendation  string        `json:"recommendation"`
}

// RiskAssessment aggregates one run. Every claim has exactly one entry;
// OverallRisk never decreases as the count of unverified or high-severity
// claims grows.
type RiskAssessment struct {
	OverallRisk RiskLevel         `json:"overall_risk"`
	Summary     string            `json:"summary"`
	Claims      []ClaimAssessment `json:"claims"`
}

// Stats summarizes a run for the terminal event.
type Stats struct {
	TotalClaims    int               `json:"total_claims"`
	Verified       int               `json:"verified"`
	Unverified     int               `json:"unverified"`
	MeanConfidence float64           `json:"mean_confidence"`
	RiskCounts     map[RiskLevel]int `json:"risk_counts"`
}

// Report is the full result of one verification run.
type Report struct {
	RunID   string               `json:"run_id"`
	Claims  []Claim              `json:"claims"`
	Results []VerificationResult `json:"results"`
	Risk    RiskAssessment       `json:"risk_assessment"`
	Stats   Stats                `json:"stats"`
}

// BuildStats derives summary statistics from judged results.
func BuildStats(results []VerificationResult, risk RiskAssessment) Stats {
	stats := Stats{
		TotalClaims: len(results),
		RiskCounts:  make(map[RiskLevel]int),
	}
	var confSum float64
	for _, r := range results {
		if r.Verified {
			stats.Verified++
		} else {
			stats.Unverified++
		}
		confSum += r.Confidence
	}
	if len(results) > 0 {
		stats.MeanConfidence = confSum / float64(len(results))
	}
	for _, c := range risk.Claims {
		stats.RiskCounts[c.RiskLevel]++
	}
	return stats
}
