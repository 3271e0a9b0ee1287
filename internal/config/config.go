// Package config holds all cite-agent configuration.
// Configuration is loaded from a YAML file with environment variable
// overrides applied on top; a missing file yields defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cite-agent configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Backend API settings
	Backend BackendConfig `yaml:"backend"`

	// Session/auth settings
	Auth AuthConfig `yaml:"auth"`

	// Orchestrator settings
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Quality gate settings
	Gate GateConfig `yaml:"gate"`

	// Usage ledger settings
	Usage UsageConfig `yaml:"usage"`

	// Debug enables verbose logging.
	Debug bool `yaml:"debug"`
}

// BackendConfig configures the remote cite-agent backend.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`

	// ToolTimeout bounds a single tool-backend call.
	ToolTimeout string `yaml:"tool_timeout"`

	// ChatTimeout bounds a chat-completion call.
	ChatTimeout string `yaml:"chat_timeout"`

	// RetryScheduleSeconds is the backoff schedule for retryable failures.
	RetryScheduleSeconds []int `yaml:"retry_schedule_seconds"`

	// ProbeRecheck is how long a failed health probe stays cached.
	ProbeRecheck string `yaml:"probe_recheck"`

	// FunctionCalling enables the direct provider path when the session
	// carries a temporary provider key.
	FunctionCalling bool `yaml:"function_calling"`
}

// AuthConfig configures session management.
type AuthConfig struct {
	// CredentialsDir is where the session file and offline store live.
	// Defaults to ~/.citeagent.
	CredentialsDir string `yaml:"credentials_dir"`

	// DefaultSessionDays is the session lifetime assigned when the server
	// omits an expiry.
	DefaultSessionDays int `yaml:"default_session_days"`

	// DailyTokenLimit overrides the per-user daily quota when > 0.
	DailyTokenLimit int64 `yaml:"daily_token_limit"`

	// LoginRetrySeconds is the short schedule used before falling back
	// to offline validation.
	LoginRetrySeconds []int `yaml:"login_retry_seconds"`
}

// OrchestratorConfig configures plan building and execution.
type OrchestratorConfig struct {
	// StepBudget caps the number of steps in one plan.
	StepBudget int `yaml:"step_budget"`

	// MaxTurns caps retained conversation turns (FIFO eviction).
	MaxTurns int `yaml:"max_turns"`

	// HistoryWindow is how many recent turns the classifier inspects.
	HistoryWindow int `yaml:"history_window"`

	// MaxConcurrentPlans bounds concurrently executing conversations.
	MaxConcurrentPlans int `yaml:"max_concurrent_plans"`
}

// GateConfig configures the response quality gate.
type GateConfig struct {
	// MinAnswerChars maps a question category to its answer length floor.
	MinAnswerChars map[string]int `yaml:"min_answer_chars"`
}

// UsageConfig configures the daily token-usage ledger.
type UsageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Name:    "cite-agent",
		Version: "1.0.0",

		Backend: BackendConfig{
			BaseURL:              "https://api.cite-agent.io",
			ToolTimeout:          "30s",
			ChatTimeout:          "120s",
			RetryScheduleSeconds: []int{5, 15, 30},
			ProbeRecheck:         "1h",
			FunctionCalling:      false,
		},

		Auth: AuthConfig{
			CredentialsDir:     filepath.Join(home, ".citeagent"),
			DefaultSessionDays: 30,
			LoginRetrySeconds:  []int{2},
		},

		Orchestrator: OrchestratorConfig{
			StepBudget:         5,
			MaxTurns:           50,
			HistoryWindow:      6,
			MaxConcurrentPlans: 4,
		},

		Gate: GateConfig{
			MinAnswerChars: map[string]int{
				"factual":    40,
				"analytical": 120,
				"general":    20,
			},
		},

		Usage: UsageConfig{
			DatabasePath: filepath.Join(home, ".citeagent", "usage.db"),
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("CITEAGENT_API_URL"); url != "" {
		c.Backend.BaseURL = url
	}
	if v := os.Getenv("CITEAGENT_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Debug = b
		}
	}
	if v := os.Getenv("CITEAGENT_FUNCTION_CALLING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Backend.FunctionCalling = b
		}
	}
	if v := os.Getenv("CITEAGENT_DAILY_LIMIT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Auth.DailyTokenLimit = n
		}
	}
}

// GetToolTimeout returns the tool-backend call timeout as a duration.
func (c *Config) GetToolTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backend.ToolTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetChatTimeout returns the chat-completion timeout as a duration.
func (c *Config) GetChatTimeout() time.Duration {
	d, err := time.ParseDuration(c.Backend.ChatTimeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetProbeRecheck returns the probe recheck interval as a duration.
func (c *Config) GetProbeRecheck() time.Duration {
	d, err := time.ParseDuration(c.Backend.ProbeRecheck)
	if err != nil {
		return time.Hour
	}
	return d
}

// RetrySchedule converts the configured schedule to durations.
func (c *Config) RetrySchedule() []time.Duration {
	return secondsToDurations(c.Backend.RetryScheduleSeconds, []time.Duration{
		5 * time.Second, 15 * time.Second, 30 * time.Second,
	})
}

// LoginRetrySchedule is the short schedule used by login before the
// offline fallback kicks in.
func (c *Config) LoginRetrySchedule() []time.Duration {
	return secondsToDurations(c.Auth.LoginRetrySeconds, []time.Duration{
		2 * time.Second,
	})
}

func secondsToDurations(seconds []int, fallback []time.Duration) []time.Duration {
	if len(seconds) == 0 {
		return fallback
	}
	out := make([]time.Duration, len(seconds))
	for i, s := range seconds {
		out[i] = time.Duration(s) * time.Second
	}
	return out
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".citeagent/config.yaml"
	}
	return filepath.Join(home, ".citeagent", "config.yaml")
}
