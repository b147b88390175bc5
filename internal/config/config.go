// Package config holds cardcheck configuration: the YAML file layout, the
// environment-variable overrides, and the immutable per-run configuration
// value handed to the verification engine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cardcheck configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Engine  EngineConfig  `yaml:"engine"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the completion-service provider.
type LLMConfig struct {
	Provider string `yaml:"provider"` // anthropic, openai, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// EngineConfig configures pipeline limits.
type EngineConfig struct {
	SandboxWorkers  int    `yaml:"sandbox_workers"`   // concurrent generated-program executions
	SandboxTimeout  string `yaml:"sandbox_timeout"`   // per-program wall clock limit
	MaxMatches      int    `yaml:"max_matches"`       // per-query match cap
	MaxCardChars    int    `yaml:"max_card_chars"`    // defensive card-text truncation bound
	QueueCapacity   int    `yaml:"queue_capacity"`    // progress event queue size
	EnqueueTimeout  string `yaml:"enqueue_timeout"`   // producer wait before dropping an event
	ReportRetention string `yaml:"report_retention"`  // how long terminal reports stay fetchable
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures logging verbosity.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "",
			Timeout:  "120s",
		},
		Engine: EngineConfig{
			SandboxWorkers:  5,
			SandboxTimeout:  "15s",
			MaxMatches:      50,
			MaxCardChars:    100000,
			QueueCapacity:   256,
			EnqueueTimeout:  "50ms",
			ReportRetention: "10m",
		},
		Server: ServerConfig{
			Addr: ":8085",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults for
// anything unset, then applies environment overrides. A missing file is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays environment variables onto the loaded config.
// Provider keys follow the same precedence as provider detection.
func (c *Config) applyEnv() {
	if v := os.Getenv("CARDCHECK_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("CARDCHECK_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if c.LLM.APIKey == "" {
		for _, env := range []string{"ANTHROPIC_API_KEY", "OPENAI_API_KEY", "GEMINI_API_KEY"} {
			if v := os.Getenv(env); v != "" {
				c.LLM.APIKey = v
				break
			}
		}
	}
	if v := os.Getenv("CARDCHECK_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

// ParseDuration parses a config duration string, returning fallback when
// the field is empty or malformed.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
