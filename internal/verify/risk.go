package verify

import (
	"context"
	"encoding/json"
	"fmt"

	"cardcheck/internal/logging"
	"cardcheck/internal/perception"
)

// Assessor aggregates all verdicts into one risk assessment. The overall
// risk level is computed deterministically so it stays monotone in the
// number of problem claims; the completion service only contributes the
// narrative summary and per-claim impact/recommendation text.
type Assessor struct {
	client perception.LLMClient
}

// NewAssessor builds an assessor.
func NewAssessor(client perception.LLMClient) *Assessor {
	return &Assessor{client: client}
}

const assessorSystemPrompt = `You summarize the risk posed by unsupported model-card claims.

For the run as a whole, write a short summary of how trustworthy the card
is relative to its implementation. For each claim, state the impact of the
mismatch (or confirmation) and one concrete recommendation.

## Response Format (JSON object only, no markdown)
{
  "summary": "two to four sentences about the run",
  "claims": [
    {"claim_id": "claim-001", "impact": "...", "recommendation": "..."}
  ]
}

Return exactly one entry per claim.`

// assessorNarrative is the prompt-side response shape.
type assessorNarrative struct {
	Summary string `json:"summary"`
	Claims  []struct {
		ClaimID        string `json:"claim_id"`
		Impact         string `json:"impact"`
		Recommendation string `json:"recommendation"`
	} `json:"claims"`
}

// Assess performs the single narrative round trip and assembles the
// assessment. A malformed narrative payload degrades to deterministic
// text; only a transport-level failure returns an error. Every claim gets
// exactly one entry regardless of what the provider returned.
func (a *Assessor) Assess(ctx context.Context, claims []Claim, results []VerificationResult) (RiskAssessment, string, error) {
	resultsJSON, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return RiskAssessment{}, "", fmt.Errorf("marshal results: %w", err)
	}

	userPrompt := fmt.Sprintf("## Verification Results\n%s\n\nAssess the risk.", resultsJSON)

	response, err := a.client.CompleteWithSystem(ctx, assessorSystemPrompt, userPrompt)
	if err != nil {
		return RiskAssessment{}, "", fmt.Errorf("risk assessment call failed: %w", err)
	}

	var narrative assessorNarrative
	var warning string
	if err := decodeResponse(response, &narrative); err != nil {
		logging.Get(logging.CategoryRisk).Warnf("unparseable assessment payload: %v", err)
		warning = "risk narrative was unparseable; using generated fallback text"
		narrative = assessorNarrative{}
	}

	impacts := make(map[string]string, len(narrative.Claims))
	recommendations := make(map[string]string, len(narrative.Claims))
	for _, c := range narrative.Claims {
		impacts[c.ClaimID] = c.Impact
		recommendations[c.ClaimID] = c.Recommendation
	}

	assessment := RiskAssessment{
		OverallRisk: OverallRiskFor(results),
		Summary:     narrative.Summary,
	}
	if assessment.Summary == "" {
		assessment.Summary = fallbackSummary(results)
	}

	byID := make(map[string]Claim, len(claims))
	for _, c := range claims {
		byID[c.ID] = c
	}

	for _, r := range results {
		entry := ClaimAssessment{
			ClaimID:       r.ClaimID,
			MatchStatus:   matchStatus(r),
			RiskLevel:     claimRiskFor(r),
			Confidence:    r.Confidence,
			Discrepancies: r.Discrepancies,
			Impact:        impacts[r.ClaimID],
			Recommendation: recommendations[r.ClaimID],
		}
		if claim, ok := byID[r.ClaimID]; ok {
			entry.EvidenceSummary = fmt.Sprintf("%s: %s", claim.Category, r.Reasoning)
		} else {
			entry.EvidenceSummary = r.Reasoning
		}
		if entry.Impact == "" {
			entry.Impact = fallbackImpact(r)
		}
		if entry.Recommendation == "" {
			entry.Recommendation = fallbackRecommendation(r)
		}
		assessment.Claims = append(assessment.Claims, entry)
	}

	return assessment, warning, nil
}

// OverallRiskFor maps the count of problem claims (unverified, or carrying
// a high-severity discrepancy) to a risk level. Strictly non-decreasing in
// that count.
func OverallRiskFor(results []VerificationResult) RiskLevel {
	problems := 0
	for _, r := range results {
		if !r.Verified || hasSeverity(r.Discrepancies, SeverityHigh) {
			problems++
		}
	}
	switch {
	case problems == 0:
		return RiskLow
	case problems <= 2:
		return RiskMedium
	case problems <= 5:
		return RiskHigh
	default:
		return RiskCritical
	}
}

// claimRiskFor grades a single claim.
func claimRiskFor(r VerificationResult) RiskLevel {
	switch {
	case r.Verified && !hasSeverity(r.Discrepancies, SeverityHigh):
		return RiskLow
	case r.Verified:
		return RiskMedium
	case hasSeverity(r.Discrepancies, SeverityHigh):
		return RiskHigh
	default:
		return RiskMedium
	}
}

func matchStatus(r VerificationResult) string {
	if r.Verified {
		return "verified"
	}
	return "unverified"
}

func hasSeverity(ds []Discrepancy, severity Severity) bool {
	for _, d := range ds {
		if d.Severity == severity {
			return true
		}
	}
	return false
}

func fallbackSummary(results []VerificationResult) string {
	verified := 0
	for _, r := range results {
		if r.Verified {
			verified++
		}
	}
	return fmt.Sprintf("%d of %d claims were supported by the implementation.", verified, len(results))
}

func fallbackImpact(r VerificationResult) string {
	if r.Verified {
		return "Claim is consistent with the implementation."
	}
	return "Readers of the card may rely on behavior the implementation does not demonstrate."
}

func fallbackRecommendation(r VerificationResult) string {
	if r.Verified {
		return "No action needed."
	}
	return "Correct the card or add the missing implementation and re-run verification."
}
