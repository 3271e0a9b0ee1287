package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Orchestrator.StepBudget != 5 {
		t.Errorf("default step budget = %d, want 5", cfg.Orchestrator.StepBudget)
	}
	if cfg.Backend.BaseURL == "" {
		t.Error("default base URL should not be empty")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig()
	cfg.Backend.BaseURL = "http://localhost:9999"
	cfg.Orchestrator.StepBudget = 3
	require.NoError(t, cfg.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", got.Backend.BaseURL)
	assert.Equal(t, 3, got.Orchestrator.StepBudget)
}

func TestEnvOverrides(t *testing.T) {
	os.Setenv("CITEAGENT_API_URL", "http://override:8000")
	os.Setenv("CITEAGENT_DEBUG", "true")
	os.Setenv("CITEAGENT_FUNCTION_CALLING", "1")
	os.Setenv("CITEAGENT_DAILY_LIMIT", "12345")
	defer func() {
		os.Unsetenv("CITEAGENT_API_URL")
		os.Unsetenv("CITEAGENT_DEBUG")
		os.Unsetenv("CITEAGENT_FUNCTION_CALLING")
		os.Unsetenv("CITEAGENT_DAILY_LIMIT")
	}()

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.BaseURL != "http://override:8000" {
		t.Errorf("base URL = %q", cfg.Backend.BaseURL)
	}
	if !cfg.Debug {
		t.Error("debug override not applied")
	}
	if !cfg.Backend.FunctionCalling {
		t.Error("function calling override not applied")
	}
	if cfg.Auth.DailyTokenLimit != 12345 {
		t.Errorf("daily limit = %d, want 12345", cfg.Auth.DailyTokenLimit)
	}
}

func TestDurationFallbacks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.ToolTimeout = "not-a-duration"
	cfg.Backend.ChatTimeout = ""
	cfg.Backend.ProbeRecheck = "bogus"

	if got := cfg.GetToolTimeout(); got != 30*time.Second {
		t.Errorf("tool timeout fallback = %v", got)
	}
	if got := cfg.GetChatTimeout(); got != 120*time.Second {
		t.Errorf("chat timeout fallback = %v", got)
	}
	if got := cfg.GetProbeRecheck(); got != time.Hour {
		t.Errorf("probe recheck fallback = %v", got)
	}
}

func TestRetrySchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.RetryScheduleSeconds = []int{1, 2}
	sched := cfg.RetrySchedule()
	if len(sched) != 2 || sched[0] != time.Second || sched[1] != 2*time.Second {
		t.Errorf("schedule = %v", sched)
	}

	cfg.Backend.RetryScheduleSeconds = nil
	sched = cfg.RetrySchedule()
	if len(sched) != 3 || sched[0] != 5*time.Second {
		t.Errorf("fallback schedule = %v", sched)
	}
}
