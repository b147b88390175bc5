package verify

import (
	"context"
	"fmt"

	"cardcheck/internal/logging"
	"cardcheck/internal/perception"
)

// Extractor turns raw card text into an ordered claim list in one
// completion-service round trip.
type Extractor struct {
	client       perception.LLMClient
	maxCardChars int
}

// NewExtractor builds an extractor. maxCardChars is the defensive safety
// bound applied before the text reaches a prompt.
func NewExtractor(client perception.LLMClient, maxCardChars int) *Extractor {
	if maxCardChars <= 0 {
		maxCardChars = 100000
	}
	return &Extractor{client: client, maxCardChars: maxCardChars}
}

const extractorSystemPrompt = `You extract discrete, checkable claims from a model card: a document
describing a machine-learning model's design, data, and performance.

Rules:
- A claim is one assertion about the implementation that evidence in the
  code, notebooks, or saved artifacts could support or contradict.
- Derive "category" from the card's own vocabulary. Do NOT use a fixed
  taxonomy; cards about unfamiliar domains must still produce sensible
  categories.
- "search_queries" are literal strings an engineer would grep for.
- "expected_evidence" describes what a positive match looks like.

## Response Format (JSON array only, no markdown)
[
  {
    "id": "claim-001",
    "category": "category from the card's own language",
    "claim_type": "short type label",
    "description": "the assertion, in one sentence",
    "verification_strategy": "how to check it against the code",
    "search_queries": ["query1", "query2"],
    "expected_evidence": "what a match looks like"
  }
]

Return [] if the text contains no checkable claims. Only the JSON array.`

// Extract performs the single extraction round trip. A payload that does
// not parse yields an empty claim list and a warning, never an error; zero
// claims is a valid outcome. The returned error is reserved for the
// completion service itself being unreachable.
func (e *Extractor) Extract(ctx context.Context, cardText string) ([]Claim, string, error) {
	if len(cardText) > e.maxCardChars {
		logging.Get(logging.CategoryExtract).Warnf("card text %d chars exceeds safety bound %d, truncating", len(cardText), e.maxCardChars)
		cardText = truncateText(cardText, e.maxCardChars)
	}

	userPrompt := fmt.Sprintf("## Model Card\n%s\n\nExtract every checkable claim.", cardText)

	response, err := e.client.CompleteWithSystem(ctx, extractorSystemPrompt, userPrompt)
	if err != nil {
		return nil, "", fmt.Errorf("claim extraction call failed: %w", err)
	}

	var claims []Claim
	if err := decodeResponse(response, &claims); err != nil {
		logging.Get(logging.CategoryExtract).Warnf("unparseable extraction payload: %v", err)
		return []Claim{}, "claim extraction returned an unparseable payload; continuing with zero claims", nil
	}

	ensureClaimIDs(claims)
	logging.Get(logging.CategoryExtract).Infof("extracted %d claims", len(claims))
	return claims, "", nil
}

// ensureClaimIDs backfills and dedupes ids so the join key is unique and
// stable for the run even when the provider omits or repeats them.
func ensureClaimIDs(claims []Claim) {
	seen := make(map[string]bool, len(claims))
	next := 1
	for i := range claims {
		if claims[i].ID == "" || seen[claims[i].ID] {
			for {
				candidate := fmt.Sprintf("claim-%03d", next)
				next++
				if !seen[candidate] {
					claims[i].ID = candidate
					break
				}
			}
		}
		seen[claims[i].ID] = true
	}
}
