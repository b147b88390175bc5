package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cardcheck/internal/logging"
	"cardcheck/internal/perception"
	"cardcheck/internal/sandbox"
)

// Generator produces one sandboxed verification program per claim in a
// single batched round trip. Batching is the engine's dominant scalability
// property: the round-trip count stays constant as the claim count grows.
type Generator struct {
	client perception.LLMClient
}

// NewGenerator builds a generator.
func NewGenerator(client perception.LLMClient) *Generator {
	return &Generator{client: client}
}

const codegenSystemPrompt = `You write small Go verification programs, one per claim, that gather
evidence for or against each claim using a fixed search toolkit.

Each program must be exactly:

package main

import "cardcheck/internal/search"

func RunCheck(t *search.Toolkit) (*search.Result, error) {
	// queries here
}

The toolkit offers ONLY these calls:
- t.Text(query)                  literal text search over sources and notebooks
- t.TextRegex(pattern)           regular-expression text search
- t.Structural(kind, name)       syntax-tree search; kind is one of
                                 search.KindCall, search.KindFunction,
                                 search.KindClass, search.KindImport
- t.Notebook(query)              notebook code-cell search
- t.NotebookOutputs(query)       notebook recorded-output search
- t.Artifact(pattern)            file-existence glob check
- search.Merge(r1, r2, ...)      combine several results

No other imports, no file access, no network. Combine multiple queries with
search.Merge and return the merged result.

## Response Format (JSON array only, no markdown)
[
  {"claim_id": "claim-001", "code": "package main\n\nimport \"cardcheck/internal/search\"\n\nfunc RunCheck(t *search.Toolkit) (*search.Result, error) {\n\t...\n}"}
]

Return exactly one entry per claim, in the same order as the claims.`

// Generate performs the single batched round trip. The returned list always
// has exactly one program per claim, in claim order: any missing or
// unusable entry is replaced by the deterministic no-evidence stub, and the
// warning notes how many were substituted. Only a transport-level failure
// returns an error.
func (g *Generator) Generate(ctx context.Context, claims []Claim) ([]GeneratedProgram, string, error) {
	claimsJSON, err := json.MarshalIndent(claims, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal claims: %w", err)
	}

	userPrompt := fmt.Sprintf("## Claims\n%s\n\nWrite one verification program per claim.", claimsJSON)

	response, err := g.client.CompleteWithSystem(ctx, codegenSystemPrompt, userPrompt)
	if err != nil {
		return nil, "", fmt.Errorf("program generation call failed: %w", err)
	}

	var entries []GeneratedProgram
	if err := decodeResponse(response, &entries); err != nil {
		logging.Get(logging.CategoryCodegen).Warnf("unparseable generation payload: %v", err)
		entries = nil
	}

	programs, substituted := repairPrograms(claims, entries)
	var warning string
	if substituted > 0 {
		warning = fmt.Sprintf("substituted %d stub program(s) for missing or unusable generator output", substituted)
		logging.Get(logging.CategoryCodegen).Warn(warning)
	}
	return programs, warning, nil
}

// repairPrograms aligns generator output with the claim list by id first,
// position second, stubbing every hole. The result is always len(claims)
// entries in claim order.
func repairPrograms(claims []Claim, entries []GeneratedProgram) ([]GeneratedProgram, int) {
	byID := make(map[string]GeneratedProgram, len(entries))
	for _, e := range entries {
		if e.ClaimID != "" {
			byID[e.ClaimID] = e
		}
	}

	programs := make([]GeneratedProgram, len(claims))
	substituted := 0
	for i, claim := range claims {
		entry, ok := byID[claim.ID]
		if !ok && i < len(entries) && entries[i].ClaimID == "" {
			entry = entries[i]
			ok = true
		}
		if !ok || !usableProgram(entry.Code) {
			programs[i] = GeneratedProgram{ClaimID: claim.ID, Code: sandbox.StubProgram, Stub: true}
			substituted++
			continue
		}
		programs[i] = GeneratedProgram{ClaimID: claim.ID, Code: entry.Code}
	}
	return programs, substituted
}

// usableProgram is a cheap shape check; the sandbox still validates imports
// and signature at execution time.
func usableProgram(code string) bool {
	return strings.Contains(code, "func RunCheck(")
}
