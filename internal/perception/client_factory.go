package perception

import (
	"context"
	"fmt"
	"os"

	"cardcheck/internal/config"
)

// Provider identifies a completion-service backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
)

// NewClientFromRun builds the client for one run's immutable configuration.
func NewClientFromRun(ctx context.Context, rc config.RunConfig) (LLMClient, error) {
	switch Provider(rc.Provider) {
	case ProviderAnthropic, "":
		acfg := DefaultAnthropicConfig(rc.APIKey)
		if rc.BaseURL != "" {
			acfg.BaseURL = rc.BaseURL
		}
		if rc.Timeout > 0 {
			acfg.Timeout = rc.Timeout
		}
		if rc.Model != "" {
			acfg.Model = rc.Model
		}
		return NewAnthropicClientWithConfig(acfg), nil

	case ProviderOpenAI:
		client := NewOpenAIClient(rc.APIKey, rc.BaseURL)
		if rc.Model != "" {
			client.SetModel(rc.Model)
		}
		return client, nil

	case ProviderGemini:
		client, err := NewGeminiClient(ctx, rc.APIKey)
		if err != nil {
			return nil, err
		}
		if rc.Model != "" {
			client.SetModel(rc.Model)
		}
		return client, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", rc.Provider)
	}
}

// DetectProvider resolves a provider from environment variables when none
// was configured. Priority: ANTHROPIC > OPENAI > GEMINI.
func DetectProvider() (Provider, string, error) {
	providers := []struct {
		envVar   string
		provider Provider
	}{
		{"ANTHROPIC_API_KEY", ProviderAnthropic},
		{"OPENAI_API_KEY", ProviderOpenAI},
		{"GEMINI_API_KEY", ProviderGemini},
	}
	for _, p := range providers {
		if key := os.Getenv(p.envVar); key != "" {
			return p.provider, key, nil
		}
	}
	return "", "", fmt.Errorf("no API key found; set one of: ANTHROPIC_API_KEY, OPENAI_API_KEY, GEMINI_API_KEY")
}
