package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cardcheck/internal/config"
	"cardcheck/internal/sandbox"
	"cardcheck/internal/search"
	"cardcheck/internal/stream"
)

// fakeClient scripts one response per pipeline stage, recognized by a
// distinctive fragment of the stage's system prompt.
type fakeClient struct {
	mu        sync.Mutex
	calls     []string
	responses map[string]string // system prompt fragment -> response
	err       error
	lastUser  string
}

const (
	stageExtract  = "checkable claims from a model card"
	stageCodegen  = "Go verification programs"
	stageEvaluate = "supported by evidence"
	stageAssess   = "summarize the risk"
)

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.lastUser = userPrompt
	for fragment, response := range f.responses {
		if strings.Contains(systemPrompt, fragment) {
			f.calls = append(f.calls, fragment)
			return response, nil
		}
	}
	f.calls = append(f.calls, "unknown")
	return "", fmt.Errorf("no scripted response for system prompt: %.60s", systemPrompt)
}

func (f *fakeClient) stageCalls(fragment string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == fragment {
			n++
		}
	}
	return n
}

func (f *fakeClient) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeRunner returns canned evidence without touching yaegi.
type fakeRunner struct {
	mu     sync.Mutex
	runs   int
	result func(program string) (*search.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, program string) (*search.Result, error) {
	f.mu.Lock()
	f.runs++
	f.mu.Unlock()
	if f.result != nil {
		return f.result(program)
	}
	return &search.Result{Found: true, Count: 1}, nil
}

func claimFixtures(n int) []Claim {
	claims := make([]Claim, n)
	for i := range claims {
		claims[i] = Claim{
			ID:          fmt.Sprintf("claim-%03d", i+1),
			Category:    "training data",
			ClaimType:   "dataset",
			Description: fmt.Sprintf("assertion %d about the implementation", i+1),
		}
	}
	return claims
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return string(b)
}

func programFixture(id string) GeneratedProgram {
	code := "package main\n\nimport \"cardcheck/internal/search\"\n\nfunc RunCheck(t *search.Toolkit) (*search.Result, error) {\n\treturn t.Text(\"query\")\n}"
	return GeneratedProgram{ClaimID: id, Code: code}
}

// scriptedClient wires a full happy-path script for n claims.
func scriptedClient(t *testing.T, n int) *fakeClient {
	t.Helper()
	claims := claimFixtures(n)
	programs := make([]GeneratedProgram, n)
	results := make([]VerificationResult, n)
	narrative := map[string]interface{}{"summary": "Card and implementation agree.", "claims": []interface{}{}}
	for i, c := range claims {
		programs[i] = programFixture(c.ID)
		results[i] = VerificationResult{ClaimID: c.ID, Verified: true, Confidence: 0.9, Reasoning: "evidence matches"}
	}
	return &fakeClient{responses: map[string]string{
		stageExtract:  mustJSON(t, claims),
		stageCodegen:  mustJSON(t, programs),
		stageEvaluate: mustJSON(t, results),
		stageAssess:   mustJSON(t, narrative),
	}}
}

func testRunConfig() config.RunConfig {
	return config.RunConfig{
		SandboxWorkers: 5,
		SandboxTimeout: 5 * time.Second,
		MaxMatches:     50,
		MaxCardChars:   100000,
	}
}

func TestRunCallCountInvariance(t *testing.T) {
	for _, n := range []int{0, 1, 5, 50} {
		t.Run(fmt.Sprintf("claims_%d", n), func(t *testing.T) {
			client := scriptedClient(t, n)
			runner := &fakeRunner{}
			streamer := stream.New(1024, 50*time.Millisecond)

			engine := NewEngine(client, runner, testRunConfig(), streamer)
			report, err := engine.Run(context.Background(), "model card text")
			if err != nil {
				t.Fatalf("Run: %v", err)
			}

			// One round trip per batched stage, no matter how many claims.
			if got := client.totalCalls(); got != 4 {
				t.Fatalf("made %d completion calls, want 4", got)
			}
			for _, stage := range []string{stageExtract, stageCodegen, stageEvaluate, stageAssess} {
				if got := client.stageCalls(stage); got != 1 {
					t.Fatalf("stage %q made %d calls, want 1", stage, got)
				}
			}

			if runner.runs != n {
				t.Fatalf("ran %d programs, want %d", runner.runs, n)
			}
			if len(report.Results) != n {
				t.Fatalf("report has %d results, want %d", len(report.Results), n)
			}
		})
	}
}

func TestRunAllClaimsSupported(t *testing.T) {
	client := scriptedClient(t, 5)
	streamer := stream.New(256, 50*time.Millisecond)
	engine := NewEngine(client, &fakeRunner{}, testRunConfig(), streamer)

	report, err := engine.Run(context.Background(), "card")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for i, r := range report.Results {
		if !r.Verified {
			t.Fatalf("result %d unverified: %+v", i, r)
		}
		if r.ClaimID != report.Claims[i].ID {
			t.Fatalf("result %d out of order: %s vs %s", i, r.ClaimID, report.Claims[i].ID)
		}
	}
	if report.Risk.OverallRisk != RiskLow {
		t.Fatalf("overall risk = %s, want LOW", report.Risk.OverallRisk)
	}
	if report.Stats.Verified != 5 || report.Stats.Unverified != 0 {
		t.Fatalf("stats = %+v", report.Stats)
	}

	select {
	case ev := <-streamer.Terminal():
		if ev.Type != stream.EventComplete {
			t.Fatalf("terminal type = %s", ev.Type)
		}
		if ev.Report == nil {
			t.Fatal("terminal event carries no report")
		}
	default:
		t.Fatal("no terminal event delivered")
	}
}

func TestRunNoEvidenceNeverVerified(t *testing.T) {
	client := scriptedClient(t, 3)
	runner := &fakeRunner{result: func(string) (*search.Result, error) {
		return &search.Result{Found: false}, nil
	}}
	streamer := stream.New(256, 50*time.Millisecond)
	engine := NewEngine(client, runner, testRunConfig(), streamer)

	report, err := engine.Run(context.Background(), "card")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, r := range report.Results {
		if r.Verified {
			t.Fatalf("claim %s verified without evidence", r.ClaimID)
		}
		if r.Confidence >= 0.3 {
			t.Fatalf("claim %s confidence %.2f, want < 0.3", r.ClaimID, r.Confidence)
		}
		if !hasMissingEvidence(r.Discrepancies) {
			t.Fatalf("claim %s missing the Missing Evidence discrepancy: %+v", r.ClaimID, r.Discrepancies)
		}
	}
	if report.Risk.OverallRisk == RiskLow {
		t.Fatal("three unsupported claims cannot be LOW risk")
	}
}

func TestRunShortGeneratorOutput(t *testing.T) {
	// The generator drops the last two entries; the run still completes
	// with stubs in their place and order intact.
	const n = 5
	client := scriptedClient(t, n)
	short := make([]GeneratedProgram, 0, n-2)
	for _, c := range claimFixtures(n)[:n-2] {
		short = append(short, programFixture(c.ID))
	}
	client.responses[stageCodegen] = mustJSON(t, short)

	runner := &fakeRunner{result: func(program string) (*search.Result, error) {
		if program == sandbox.StubProgram {
			return &search.Result{Found: false}, nil
		}
		return &search.Result{Found: true, Count: 1}, nil
	}}
	streamer := stream.New(256, 50*time.Millisecond)
	engine := NewEngine(client, runner, testRunConfig(), streamer)

	report, err := engine.Run(context.Background(), "card")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Results) != n {
		t.Fatalf("got %d results, want %d", len(report.Results), n)
	}
	for i, r := range report.Results {
		if r.ClaimID != report.Claims[i].ID {
			t.Fatalf("result %d out of order: %s", i, r.ClaimID)
		}
	}
	if runner.runs != n {
		t.Fatalf("ran %d programs, want %d (stubs execute too)", runner.runs, n)
	}

	// The stubbed claims end unverified and say why: the generator failed
	// them, not the evidence search.
	for _, r := range report.Results[n-2:] {
		if r.Verified {
			t.Fatalf("stubbed claim %s must not be verified", r.ClaimID)
		}
		if !hasGenerationFailure(r.Discrepancies) {
			t.Fatalf("stubbed claim %s has no generation-failure discrepancy: %+v", r.ClaimID, r.Discrepancies)
		}
	}
	for _, r := range report.Results[:n-2] {
		if hasGenerationFailure(r.Discrepancies) {
			t.Fatalf("generated claim %s wrongly marked as a generation failure: %+v", r.ClaimID, r.Discrepancies)
		}
	}
}

func TestRunTransportFailure(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}
	streamer := stream.New(256, 50*time.Millisecond)
	engine := NewEngine(client, &fakeRunner{}, testRunConfig(), streamer)

	_, err := engine.Run(context.Background(), "card")
	if err == nil {
		t.Fatal("expected error when the provider is unreachable")
	}

	select {
	case ev := <-streamer.Terminal():
		if ev.Type != stream.EventError {
			t.Fatalf("terminal type = %s, want error", ev.Type)
		}
		// The user-facing message must not leak the transport error.
		if strings.Contains(ev.Message, "connection refused") {
			t.Fatalf("terminal message leaks internals: %q", ev.Message)
		}
	default:
		t.Fatal("no terminal event on failure")
	}
	if streamer.CurrentState() != stream.StateFailed {
		t.Fatalf("state = %s, want failed", streamer.CurrentState())
	}
}

func TestExecuteProgramsPreservesOrder(t *testing.T) {
	// Workers finish in reverse submission order; evidence must still line
	// up with claims by position.
	const n = 8
	claims := claimFixtures(n)
	programs := make([]GeneratedProgram, n)
	for i, c := range claims {
		p := programFixture(c.ID)
		p.Code = fmt.Sprintf("// slot %d\n%s", i, p.Code)
		programs[i] = p
	}

	runner := &fakeRunner{result: func(program string) (*search.Result, error) {
		var slot int
		fmt.Sscanf(program, "// slot %d", &slot)
		time.Sleep(time.Duration(n-slot) * 2 * time.Millisecond)
		return &search.Result{Found: true, Count: slot}, nil
	}}

	streamer := stream.New(256, 50*time.Millisecond)
	streamer.Start()
	defer streamer.Close()
	engine := NewEngine(&fakeClient{}, runner, testRunConfig(), streamer)

	evidence := engine.executePrograms(context.Background(), claims, programs)
	for i, ev := range evidence {
		if ev.Count != i {
			t.Fatalf("evidence[%d].Count = %d, want %d", i, ev.Count, i)
		}
	}
}

func TestExecuteProgramsIsolatesFailures(t *testing.T) {
	claims := claimFixtures(3)
	programs := make([]GeneratedProgram, 3)
	for i, c := range claims {
		p := programFixture(c.ID)
		p.Code = fmt.Sprintf("// slot %d\n%s", i, p.Code)
		programs[i] = p
	}

	runner := &fakeRunner{result: func(program string) (*search.Result, error) {
		if strings.HasPrefix(program, "// slot 1") {
			return nil, errors.New("interpreter panic: nil dereference")
		}
		return &search.Result{Found: true, Count: 1}, nil
	}}

	streamer := stream.New(256, 50*time.Millisecond)
	streamer.Start()
	defer streamer.Close()
	engine := NewEngine(&fakeClient{}, runner, testRunConfig(), streamer)

	evidence := engine.executePrograms(context.Background(), claims, programs)
	if evidence[0].Error != "" || evidence[2].Error != "" {
		t.Fatalf("siblings affected by one failure: %+v", evidence)
	}
	if evidence[1].Error == "" || evidence[1].Found {
		t.Fatalf("failed program should yield no-evidence with a note: %+v", evidence[1])
	}
}

func TestRunOversizedCardTruncated(t *testing.T) {
	client := scriptedClient(t, 1)
	cfg := testRunConfig()
	cfg.MaxCardChars = 1000
	streamer := stream.New(256, 50*time.Millisecond)
	engine := NewEngine(client, &fakeRunner{}, cfg, streamer)

	huge := strings.Repeat("The model achieves 92% accuracy on held-out data. ", 4000)
	report, err := engine.Run(context.Background(), huge)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Claims) != 1 {
		t.Fatalf("got %d claims, want 1", len(report.Claims))
	}
}
