// Package server exposes the verification engine over HTTP. Responses
// stream newline-delimited JSON events, each line independently parseable.
// The completion-service credential arrives in a header and is never
// logged or echoed into events.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"cardcheck/internal/config"
	"cardcheck/internal/logging"
	"cardcheck/internal/perception"
	"cardcheck/internal/rulepack"
	"cardcheck/internal/search"
	"cardcheck/internal/snapshot"
	"cardcheck/internal/stream"
	"cardcheck/internal/verify"
)

// Server hosts the claim-driven and legacy endpoints. Terminal reports are
// retained in a TTL registry so a consumer that lost its stream can fetch
// the result until cleanup evicts it.
type Server struct {
	cfg  config.Config
	runs *cache.Cache
	mux  *http.ServeMux
}

// New builds a server from loaded configuration.
func New(cfg config.Config) *Server {
	retention := config.ParseDuration(cfg.Engine.ReportRetention, 10*time.Minute)
	s := &Server{
		cfg:  cfg,
		runs: cache.New(retention, retention/2),
		mux:  http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /api/v1/verify", s.handleVerify)
	s.mux.HandleFunc("POST /api/v1/scan", s.handleScan)
	s.mux.HandleFunc("GET /api/v1/runs/{id}", s.handleRun)
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe blocks serving on the configured address.
func (s *Server) ListenAndServe() error {
	logging.Server("listening on %s", s.cfg.Server.Addr)
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

// verifyRequest is the claim-driven request body.
type verifyRequest struct {
	CardText string `json:"card_text"`
	Snapshot string `json:"snapshot"` // locator: local path or git URL
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// handleVerify runs the engine and streams its events. The pipeline runs
// on a detached context: a consumer that disconnects mid-stream does not
// abort the run, and the terminal report stays fetchable from the registry.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}
	if req.CardText == "" || req.Snapshot == "" {
		httpError(w, http.StatusBadRequest, "card_text and snapshot are required")
		return
	}

	rc := s.runConfig(r, req.Provider, req.Model)
	client, err := perception.NewClientFromRun(r.Context(), rc)
	if err != nil {
		httpError(w, http.StatusBadRequest, "unknown completion-service provider")
		return
	}

	root, cleanupSnap, err := snapshot.Resolve(r.Context(), req.Snapshot)
	if err != nil {
		httpError(w, http.StatusBadRequest, "snapshot locator could not be resolved")
		return
	}
	snap, err := snapshot.Load(root)
	if err != nil {
		cleanupSnap()
		httpError(w, http.StatusBadRequest, "snapshot could not be loaded")
		return
	}

	streamer := stream.New(rc.QueueCapacity, rc.EnqueueTimeout)
	engine := verify.NewEngineForSnapshot(client, snap, rc, streamer)

	go func() {
		defer cleanupSnap()
		// Detached from the request: the run outlives a disconnected
		// consumer.
		report, err := engine.Run(context.Background(), req.CardText)
		if err == nil {
			s.runs.Set(report.RunID, report, cache.DefaultExpiration)
		}
	}()

	s.streamEvents(w, r, streamer)
}

// streamEvents forwards progress events until the terminal event or the
// consumer goes away. Each event is one JSON line.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, streamer *stream.Streamer) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	flusher, canFlush := w.(http.Flusher)

	enc := json.NewEncoder(w)
	writeEvent := func(ev stream.Event) bool {
		if err := enc.Encode(ev); err != nil {
			return false
		}
		if canFlush {
			flusher.Flush()
		}
		return true
	}

	for {
		select {
		case ev := <-streamer.Events():
			if !writeEvent(ev) {
				return
			}
		case ev := <-streamer.Terminal():
			writeEvent(ev)
			return
		case <-r.Context().Done():
			logging.ServerWarn("consumer disconnected mid-stream; run continues")
			return
		}
	}
}

// scanRequest is the legacy pattern-rulepack request body.
type scanRequest struct {
	Snapshot string `json:"snapshot"`
	Rulepack string `json:"rulepack"` // server-side rulepack path
}

// handleScan serves the legacy mode: fixed patterns, synchronous JSON
// response, no completion service involved.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "request body must be JSON")
		return
	}

	pack, err := rulepack.Load(req.Rulepack)
	if err != nil {
		httpError(w, http.StatusBadRequest, "rulepack could not be loaded")
		return
	}

	root, cleanupSnap, err := snapshot.Resolve(r.Context(), req.Snapshot)
	if err != nil {
		httpError(w, http.StatusBadRequest, "snapshot locator could not be resolved")
		return
	}
	defer cleanupSnap()

	snap, err := snapshot.Load(root)
	if err != nil {
		httpError(w, http.StatusBadRequest, "snapshot could not be loaded")
		return
	}

	toolkit := search.NewToolkit(snap, s.cfg.Engine.MaxMatches)
	findings := rulepack.Scan(toolkit, pack)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"pack":     pack.Name,
		"findings": findings,
	})
}

// handleRun serves a retained terminal report to a reconnecting consumer.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	report, ok := s.runs.Get(id)
	if !ok {
		httpError(w, http.StatusNotFound, "run not found or already cleaned up")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}

// runConfig assembles the immutable per-run configuration. The credential
// comes from the request headers, falling back to server config; it is
// never logged.
func (s *Server) runConfig(r *http.Request, provider, model string) config.RunConfig {
	rc := config.RunConfigFrom(s.cfg)
	if provider != "" {
		rc.Provider = provider
	}
	if model != "" {
		rc.Model = model
	}
	if key := credentialFrom(r); key != "" {
		rc.APIKey = key
	}
	return rc
}

// credentialFrom extracts the completion-service credential from transport
// headers.
func credentialFrom(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// httpError writes a short, user-facing JSON error with no internal
// detail.
func httpError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"type":"error","message":%q}`+"\n", message)
}
