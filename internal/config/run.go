package config

import "time"

// RunConfig is the immutable configuration for one verification run.
// It is assembled once at pipeline construction and passed by value; no
// stage reads ambient/global state.
type RunConfig struct {
	Provider string        // completion-service provider name
	Model    string        // model identifier, empty for provider default
	APIKey   string        // access credential; never logged or persisted
	BaseURL  string        // provider endpoint override, empty for default
	Timeout  time.Duration // per-request completion-service timeout

	SandboxWorkers int           // bounded fan-out width
	SandboxTimeout time.Duration // per-program execution limit
	MaxMatches     int           // per-query match cap
	MaxCardChars   int           // card-text safety bound

	QueueCapacity  int           // progress queue size
	EnqueueTimeout time.Duration // producer wait before dropping
}

// RunConfigFrom derives a RunConfig from the file/env configuration.
// Zero or negative limits fall back to the built-in defaults.
func RunConfigFrom(cfg Config) RunConfig {
	def := Default()
	rc := RunConfig{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Timeout:        ParseDuration(cfg.LLM.Timeout, 120*time.Second),
		SandboxWorkers: cfg.Engine.SandboxWorkers,
		SandboxTimeout: ParseDuration(cfg.Engine.SandboxTimeout, 15*time.Second),
		MaxMatches:     cfg.Engine.MaxMatches,
		MaxCardChars:   cfg.Engine.MaxCardChars,
		QueueCapacity:  cfg.Engine.QueueCapacity,
		EnqueueTimeout: ParseDuration(cfg.Engine.EnqueueTimeout, 50*time.Millisecond),
	}
	if rc.SandboxWorkers <= 0 {
		rc.SandboxWorkers = def.Engine.SandboxWorkers
	}
	if rc.MaxMatches <= 0 {
		rc.MaxMatches = def.Engine.MaxMatches
	}
	if rc.MaxCardChars <= 0 {
		rc.MaxCardChars = def.Engine.MaxCardChars
	}
	if rc.QueueCapacity <= 0 {
		rc.QueueCapacity = def.Engine.QueueCapacity
	}
	return rc
}
