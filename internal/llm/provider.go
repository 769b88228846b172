// Package llm provides the text-generation adapters used by hallucheck.
//
// Generation is treated as a black box: a prompt goes in, untrusted text
// comes out. Three backends are supported:
// - ollama: runs the local `ollama run` CLI
// - openai: any OpenAI-compatible chat endpoint (OpenAI, DeepSeek, vLLM,
//   Ollama's /v1 API) via go-openai
// - openrouter: the OpenRouter API, through the same go-openai client
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Provider is the interface for LLM completions.
type Provider interface {
	// Complete sends a prompt and returns the response text.
	Complete(ctx context.Context, prompt string, opts CompletionOpts) (string, error)
	// Name returns a human-readable provider name (e.g., "ollama/qwen2.5:1.5b").
	Name() string
}

// CompletionOpts configures a single completion request.
type CompletionOpts struct {
	MaxTokens   int     // Max tokens to generate (0 = provider default)
	Temperature float64 // 0 = deterministic
	Format      string  // "json" for structured output, empty for plain text
	System      string  // System prompt (optional)
	FirstLine   bool    // Keep only the first non-empty line of output
}

// Config holds provider configuration.
type Config struct {
	Provider string // "ollama", "openai", "deepseek", "openrouter"
	Model    string // e.g., "qwen2.5:1.5b", "gpt-4o-mini"
	APIKey   string // API key (empty = read from env)
	BaseURL  string // Optional URL override
	Binary   string // ollama binary (default "ollama")
}

// openrouterHeaders identify hallucheck to OpenRouter.
var openrouterHeaders = map[string]string{
	"HTTP-Referer": "https://github.com/hurttlocker/hallucheck",
	"X-Title":      "hallucheck",
}

// DefaultModel is used when a flag names only a provider.
const DefaultModel = "qwen2.5:1.5b"

// NewProvider creates an LLM provider from the given config.
func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		model := cfg.Model
		if model == "" {
			model = DefaultModel
		}
		bin := cfg.Binary
		if bin == "" {
			bin = "ollama"
		}
		return &ollamaProvider{binary: bin, model: model}, nil

	case "openai", "deepseek":
		provider := strings.ToLower(cfg.Provider)
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv(strings.ToUpper(provider) + "_API_KEY")
		}
		baseURL := cfg.BaseURL
		if baseURL == "" && provider == "deepseek" {
			baseURL = "https://api.deepseek.com/v1"
		}
		// A local OpenAI-compatible server (Ollama /v1, vLLM) needs no key.
		if key == "" && baseURL == "" {
			return nil, fmt.Errorf("%s provider requires %s_API_KEY env var or a base URL", provider, strings.ToUpper(provider))
		}
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return newOpenAIProvider(provider, key, model, baseURL, nil), nil

	case "openrouter":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENROUTER_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("openrouter provider requires OPENROUTER_API_KEY env var")
		}
		model := cfg.Model
		if model == "" {
			model = "openai/gpt-4o-mini"
		}
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "https://openrouter.ai/api/v1"
		}
		return newOpenAIProvider("openrouter", key, model, baseURL, openrouterHeaders), nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: ollama, openai, deepseek, openrouter)", cfg.Provider)
	}
}

// ParseLLMFlag parses a --llm flag value into a Config.
// Format: "provider/model" e.g., "ollama/qwen2.5:1.5b", "openrouter/openai/gpt-4o-mini".
// An empty flag selects the local ollama default.
func ParseLLMFlag(flag string) (Config, error) {
	if flag == "" {
		return Config{Provider: "ollama", Model: DefaultModel}, nil
	}

	parts := strings.SplitN(flag, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		return Config{}, fmt.Errorf("invalid --llm format %q: expected provider/model (e.g., ollama/qwen2.5:1.5b)", flag)
	}

	provider := strings.ToLower(parts[0])
	model := parts[1]

	switch provider {
	case "ollama", "openai", "deepseek", "openrouter":
		return Config{Provider: provider, Model: model}, nil
	default:
		return Config{}, fmt.Errorf("unknown provider %q in --llm flag (supported: ollama, openai, deepseek, openrouter)", provider)
	}
}
