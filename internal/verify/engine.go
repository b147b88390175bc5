package verify

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"cardcheck/internal/config"
	"cardcheck/internal/logging"
	"cardcheck/internal/perception"
	"cardcheck/internal/sandbox"
	"cardcheck/internal/search"
	"cardcheck/internal/snapshot"
	"cardcheck/internal/stream"
)

// Engine runs the claim verification pipeline for a single run. It owns no
// shared state: configuration is an immutable value, the snapshot is
// read-only, and all entities it creates belong to this run alone.
type Engine struct {
	client   perception.LLMClient
	runner   sandbox.Runner
	cfg      config.RunConfig
	streamer *stream.Streamer

	cleanupOnce sync.Once
}

// NewEngine wires a pipeline from its collaborators.
func NewEngine(client perception.LLMClient, runner sandbox.Runner, cfg config.RunConfig, streamer *stream.Streamer) *Engine {
	return &Engine{
		client:   client,
		runner:   runner,
		cfg:      cfg,
		streamer: streamer,
	}
}

// NewEngineForSnapshot builds the default engine over a loaded snapshot:
// a search toolkit with the configured match cap, executed in the yaegi
// sandbox.
func NewEngineForSnapshot(client perception.LLMClient, snap *snapshot.Snapshot, cfg config.RunConfig, streamer *stream.Streamer) *Engine {
	toolkit := search.NewToolkit(snap, cfg.MaxMatches)
	return NewEngine(client, sandbox.NewExecutor(toolkit, cfg.SandboxTimeout), cfg, streamer)
}

// Run executes the full pipeline: extract -> generate -> execute (bounded
// fan-out) -> evaluate -> assess. Exactly four completion-service round
// trips are made regardless of claim count. Cleanup runs exactly once on
// every exit path.
func (e *Engine) Run(ctx context.Context, cardText string) (*Report, error) {
	defer e.cleanup()

	runID := uuid.NewString()
	e.streamer.Start()
	e.streamer.Progress("verification started", map[string]interface{}{"run_id": runID})
	logging.Engine("run %s started (%d chars of card text)", runID, len(cardText))

	// Stage 1: claim extraction.
	extractor := NewExtractor(e.client, e.cfg.MaxCardChars)
	claims, warning, err := extractor.Extract(ctx, cardText)
	if err != nil {
		return nil, e.fail(runID, "claim extraction", err)
	}
	e.warn(warning)
	e.streamer.Progress("claims extracted", map[string]interface{}{"claims": len(claims)})

	// Stage 2: batched program generation.
	programs, warning, err := NewGenerator(e.client).Generate(ctx, claims)
	if err != nil {
		return nil, e.fail(runID, "program generation", err)
	}
	e.warn(warning)
	e.streamer.Progress("verification programs generated", map[string]interface{}{"programs": len(programs)})

	// Stage 3: sandboxed execution, bounded fan-out, collected by claim
	// order so the report ignores completion order.
	evidence := e.executePrograms(ctx, claims, programs)

	// Stage 4: batched evaluation.
	results, warning, err := NewEvaluator(e.client).Evaluate(ctx, claims, programs, evidence)
	if err != nil {
		return nil, e.fail(runID, "evaluation", err)
	}
	e.warn(warning)
	e.streamer.Progress("claims evaluated", map[string]interface{}{"results": len(results)})

	// Stage 5: risk assessment.
	risk, warning, err := NewAssessor(e.client).Assess(ctx, claims, results)
	if err != nil {
		return nil, e.fail(runID, "risk assessment", err)
	}
	e.warn(warning)

	report := &Report{
		RunID:   runID,
		Claims:  claims,
		Results: results,
		Risk:    risk,
		Stats:   BuildStats(results, risk),
	}
	e.streamer.Complete("verification complete", report)
	logging.Engine("run %s completed: %d claims, overall risk %s", runID, len(claims), risk.OverallRisk)
	return report, nil
}

// executePrograms fans the generated programs out over the bounded worker
// pool. A failed or timed-out program becomes no-evidence with a captured
// note; siblings are unaffected.
func (e *Engine) executePrograms(ctx context.Context, claims []Claim, programs []GeneratedProgram) []Evidence {
	workers := int64(e.cfg.SandboxWorkers)
	if workers <= 0 {
		workers = 5
	}
	sem := semaphore.NewWeighted(workers)
	evidence := make([]Evidence, len(programs))

	var wg sync.WaitGroup
	for i := range programs {
		if err := sem.Acquire(ctx, 1); err != nil {
			evidence[i] = Evidence{Error: "execution cancelled"}
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)

			result, err := e.runner.Run(ctx, programs[i].Code)
			if err != nil {
				logging.SandboxWarn("program for %s failed: %v", claims[i].ID, err)
				evidence[i] = Evidence{Error: err.Error()}
			} else {
				evidence[i] = Evidence{Result: *result}
			}

			e.streamer.Progress(
				fmt.Sprintf("evidence gathered for %s", claims[i].ID),
				map[string]interface{}{
					"claim_id": claims[i].ID,
					"found":    evidence[i].Found,
					"count":    evidence[i].Count,
				},
			)
		}(i)
	}
	wg.Wait()
	return evidence
}

// warn emits a warning-level progress event for a recovered upstream-shape
// failure. The run continues and completes normally.
func (e *Engine) warn(message string) {
	if message == "" {
		return
	}
	e.streamer.Progress("warning: "+message, nil)
}

// fail logs the stage failure in full and emits a short, user-facing
// terminal error with no internal detail.
func (e *Engine) fail(runID, stage string, err error) error {
	logging.EngineError("run %s aborted at %s: %v", runID, stage, err)
	e.streamer.Fail(fmt.Sprintf("verification failed during %s; the completion service did not respond usably", stage))
	return fmt.Errorf("%s: %w", stage, err)
}

// cleanup releases the run's transient resources. Guaranteed to run once
// per run on success, failure, or consumer disconnect.
func (e *Engine) cleanup() {
	e.cleanupOnce.Do(func() {
		e.streamer.Close()
		logging.EngineDebug("run resources released (dropped %d progress events)", e.streamer.Dropped())
	})
}
