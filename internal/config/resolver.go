package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hurttlocker/hallucheck/internal/llm"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

// Built-in defaults.
const (
	DefaultDBPath      = "~/.hallucheck/hallucheck.db"
	DefaultLLM         = "ollama/qwen2.5:1.5b"
	DefaultTimeoutSecs = 60
	DefaultMode        = "grounded"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath string
	CLIDBPath  string
	CLISeed    string
	CLILLM     string
	CLIBaseURL string
	CLITimeout string
	CLIMode    string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath     ResolvedValue `json:"db_path"`
	SeedPath   ResolvedValue `json:"seed_path"`
	LLM        ResolvedValue `json:"llm"`
	LLMBaseURL ResolvedValue `json:"llm_base_url"`
	LLMTimeout ResolvedValue `json:"llm_timeout_secs"`
	Mode       ResolvedValue `json:"mode"`

	// LLMKeys holds secrets and is never serialized; LLMKeyNames reports
	// which providers have a key and where it came from.
	LLMKeys     map[string]ResolvedValue `json:"-"`
	LLMKeyNames map[string]ValueSource   `json:"llm_keys,omitempty"`
}

type fileConfig struct {
	DBPath   string `yaml:"db_path"`
	SeedPath string `yaml:"seed_path"`
	Mode     string `yaml:"mode"`
	LLM      struct {
		Provider    string `yaml:"provider"`
		BaseURL     string `yaml:"base_url"`
		APIKey      string `yaml:"api_key"`
		TimeoutSecs int    `yaml:"timeout_secs"`
	} `yaml:"llm"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".hallucheck", "config.yaml")
}

// ResolveConfig layers built-in defaults, the config file, the environment
// and CLI flags, in that order. A missing config file is not an error.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath:  path,
		DBPath:      defaultValue(DefaultDBPath),
		LLM:         defaultValue(DefaultLLM),
		LLMTimeout:  defaultValue(strconv.Itoa(DefaultTimeoutSecs)),
		Mode:        defaultValue(DefaultMode),
		LLMKeys:     map[string]ResolvedValue{},
		LLMKeyNames: map[string]ValueSource{},
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.SeedPath, cfg.SeedPath, SourceConfig, path)
		apply(&out.LLM, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.LLMBaseURL, cfg.LLM.BaseURL, SourceConfig, path)
		apply(&out.Mode, cfg.Mode, SourceConfig, path)
		if cfg.LLM.TimeoutSecs > 0 {
			apply(&out.LLMTimeout, strconv.Itoa(cfg.LLM.TimeoutSecs), SourceConfig, path)
		}
		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			p := providerOf(cfg.LLM.Provider)
			if p == "" {
				p = "default"
			}
			out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
	}

	applyEnv(&out.DBPath, "HALLUCHECK_DB")
	applyEnv(&out.SeedPath, "HALLUCHECK_SEED")
	applyEnv(&out.LLM, "HALLUCHECK_LLM")
	applyEnv(&out.LLMBaseURL, "HALLUCHECK_LLM_BASE_URL")
	applyEnv(&out.LLMTimeout, "HALLUCHECK_LLM_TIMEOUT")
	applyEnv(&out.Mode, "HALLUCHECK_MODE")

	for env, provider := range map[string]string{
		"OPENROUTER_API_KEY": "openrouter",
		"OPENAI_API_KEY":     "openai",
		"DEEPSEEK_API_KEY":   "deepseek",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.SeedPath, opts.CLISeed, SourceCLI, "--seed")
	apply(&out.LLM, opts.CLILLM, SourceCLI, "--llm")
	apply(&out.LLMBaseURL, opts.CLIBaseURL, SourceCLI, "--llm-base-url")
	apply(&out.LLMTimeout, opts.CLITimeout, SourceCLI, "--llm-timeout")
	apply(&out.Mode, opts.CLIMode, SourceCLI, "--mode")

	out.DBPath.Value = expandUserPath(out.DBPath.Value)
	out.SeedPath.Value = expandUserPath(out.SeedPath.Value)

	if _, err := out.Timeout(); err != nil {
		return out, err
	}
	for p, v := range out.LLMKeys {
		out.LLMKeyNames[p] = v.Source
	}
	return out, nil
}

// Timeout returns the per-call generation timeout.
func (r ResolvedConfig) Timeout() (time.Duration, error) {
	v := strings.TrimSpace(r.LLMTimeout.Value)
	if v == "" {
		return DefaultTimeoutSecs * time.Second, nil
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0, fmt.Errorf("invalid llm timeout %q from %s: expected a positive number of seconds", v, r.LLMTimeout.Source)
	}
	return time.Duration(secs) * time.Second, nil
}

// GeneratorDisabled reports whether the generator was switched off with
// llm "none". Extraction then runs on rules alone.
func (r ResolvedConfig) GeneratorDisabled() bool {
	return strings.EqualFold(strings.TrimSpace(r.LLM.Value), "none")
}

// LLMConfig turns the resolved llm settings into a provider config.
func (r ResolvedConfig) LLMConfig() (llm.Config, error) {
	cfg, err := llm.ParseLLMFlag(r.LLM.Value)
	if err != nil {
		return llm.Config{}, fmt.Errorf("llm from %s: %w", r.LLM.Source, err)
	}
	cfg.BaseURL = r.LLMBaseURL.Value
	cfg.APIKey = r.APIKeyForProvider(cfg.Provider).Value
	return cfg, nil
}

// APIKeyForProvider returns the key for the provider named by a
// "provider/model" value, falling back to a provider-less config key.
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func defaultValue(v string) ResolvedValue {
	return ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
