package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cardcheck/internal/logging"
	"cardcheck/internal/perception"
)

// Evaluator judges all (claim, program, evidence) triples in one batched
// round trip and normalizes every verdict so callers can rely on the
// result invariants without re-checking them.
type Evaluator struct {
	client perception.LLMClient
}

// NewEvaluator builds an evaluator.
func NewEvaluator(client perception.LLMClient) *Evaluator {
	return &Evaluator{client: client}
}

const evaluatorSystemPrompt = `You judge whether claims from a model card are supported by evidence
gathered from the implementation.

Rules:
- A claim with no evidence found must NOT be verified.
- Confidence reflects evidence strength AND discrepancy severity: the more
  or higher-severity discrepancies you report, the lower the confidence in
  a verified outcome must be.
- Discrepancy severity is "low", "medium", or "high".
- Reasoning is one or two sentences grounded in the evidence shown.

## Response Format (JSON array only, no markdown)
[
  {
    "claim_id": "claim-001",
    "verified": true,
    "confidence": 0.9,
    "reasoning": "why the evidence does or does not support the claim",
    "discrepancies": [{"description": "...", "severity": "low"}]
  }
]

Return exactly one entry per claim, in the same order as the claims.`

// evalTriple is the prompt-side shape of one judged unit.
type evalTriple struct {
	Claim    Claim    `json:"claim"`
	Evidence Evidence `json:"evidence"`
	Program  string   `json:"program"`
}

// Evaluate performs the single batched round trip. Output is repaired the
// same way as program generation: missing or malformed entries become
// low-confidence unverified stubs with a discrepancy noting the evaluation
// failure. The returned list always matches claims in length and order.
func (e *Evaluator) Evaluate(ctx context.Context, claims []Claim, programs []GeneratedProgram, evidence []Evidence) ([]VerificationResult, string, error) {
	triples := make([]evalTriple, len(claims))
	for i := range claims {
		triples[i] = evalTriple{
			Claim:    claims[i],
			Evidence: evidence[i],
			Program:  truncateText(programs[i].Code, 2000),
		}
	}

	triplesJSON, err := json.MarshalIndent(triples, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal evaluation input: %w", err)
	}

	userPrompt := fmt.Sprintf("## Claims With Evidence\n%s\n\nJudge every claim.", triplesJSON)

	response, err := e.client.CompleteWithSystem(ctx, evaluatorSystemPrompt, userPrompt)
	if err != nil {
		return nil, "", fmt.Errorf("evaluation call failed: %w", err)
	}

	var entries []VerificationResult
	if err := decodeResponse(response, &entries); err != nil {
		logging.Get(logging.CategoryEvaluate).Warnf("unparseable evaluation payload: %v", err)
		entries = nil
	}

	results, repaired := repairResults(claims, programs, evidence, entries)
	var warning string
	if repaired > 0 {
		warning = fmt.Sprintf("repaired %d malformed evaluation entr(ies) with unverified stubs", repaired)
		logging.Get(logging.CategoryEvaluate).Warn(warning)
	}
	return results, warning, nil
}

// repairResults aligns evaluator output with the claim list and normalizes
// every verdict.
func repairResults(claims []Claim, programs []GeneratedProgram, evidence []Evidence, entries []VerificationResult) ([]VerificationResult, int) {
	byID := make(map[string]VerificationResult, len(entries))
	for _, e := range entries {
		if e.ClaimID != "" {
			byID[e.ClaimID] = e
		}
	}

	results := make([]VerificationResult, len(claims))
	repaired := 0
	for i, claim := range claims {
		entry, ok := byID[claim.ID]
		if !ok && i < len(entries) && entries[i].ClaimID == "" {
			entry = entries[i]
			ok = true
		}
		if !ok {
			entry = VerificationResult{
				Verified:   false,
				Confidence: 0.1,
				Reasoning:  "Evaluation produced no verdict for this claim.",
				Discrepancies: []Discrepancy{
					{Description: "Evaluation Failure: no verdict returned for this claim", Severity: SeverityHigh},
				},
			}
			repaired++
		}
		entry.ClaimID = claim.ID
		entry.GeneratedCode = programs[i].Code
		if programs[i].Stub {
			// The claim was never actually checked; attribute that to the
			// generator, not to absent evidence.
			entry.Verified = false
			if !hasGenerationFailure(entry.Discrepancies) {
				entry.Discrepancies = append(entry.Discrepancies, Discrepancy{
					Description: "Program Generation Failure: no usable verification program was generated; a deterministic no-evidence stub ran instead",
					Severity:    SeverityHigh,
				})
			}
		}
		results[i] = normalizeResult(entry, evidence[i])
	}
	return results, repaired
}

// normalizeResult enforces the verdict contract:
//   - confidence stays in [0,1]
//   - found=false is never verified and carries a Missing Evidence
//     discrepancy with confidence below 0.3
//   - verified with high-severity discrepancies cannot keep high confidence
//   - verified implies confidence >= 0.5
func normalizeResult(r VerificationResult, ev Evidence) VerificationResult {
	r.Confidence = clamp01(r.Confidence)

	if !ev.Found {
		r.Verified = false
		if r.Confidence > 0.25 {
			r.Confidence = 0.25
		}
		if !hasMissingEvidence(r.Discrepancies) {
			desc := "Missing Evidence: no supporting matches were found in the implementation"
			if ev.Error != "" {
				desc = "Missing Evidence: verification program failed: " + ev.Error
			}
			r.Discrepancies = append(r.Discrepancies, Discrepancy{Description: desc, Severity: SeverityHigh})
		}
	}

	if r.Verified {
		if limit := confidenceCap(r.Discrepancies); r.Confidence > limit {
			r.Confidence = limit
		}
		if r.Confidence < 0.5 {
			r.Verified = false
			r.Reasoning = strings.TrimSpace(r.Reasoning + " Downgraded: confidence too low to stand as verified.")
		}
	}

	return r
}

// confidenceCap bounds a verified result's confidence by its worst
// discrepancy.
func confidenceCap(ds []Discrepancy) float64 {
	limit := 1.0
	for _, d := range ds {
		switch d.Severity {
		case SeverityHigh:
			if limit > 0.55 {
				limit = 0.55
			}
		case SeverityMedium:
			if limit > 0.75 {
				limit = 0.75
			}
		}
	}
	return limit
}

func hasGenerationFailure(ds []Discrepancy) bool {
	for _, d := range ds {
		if strings.HasPrefix(d.Description, "Program Generation Failure") {
			return true
		}
	}
	return false
}

func hasMissingEvidence(ds []Discrepancy) bool {
	for _, d := range ds {
		if strings.HasPrefix(d.Description, "Missing Evidence") {
			return true
		}
	}
	return false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
