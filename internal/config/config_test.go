package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Orchestrator.MaxDepth != 3 {
		t.Errorf("MaxDepth = %d, want 3", cfg.Orchestrator.MaxDepth)
	}
	if cfg.Orchestrator.MaxSubtasks != 10 {
		t.Errorf("MaxSubtasks = %d, want 10", cfg.Orchestrator.MaxSubtasks)
	}
	if cfg.Orchestrator.MaxCIRetries != 3 {
		t.Errorf("MaxCIRetries = %d, want 3", cfg.Orchestrator.MaxCIRetries)
	}
	if cfg.Orchestrator.VerificationTimeout != 10*time.Minute {
		t.Errorf("VerificationTimeout = %v, want 10m", cfg.Orchestrator.VerificationTimeout)
	}
	if cfg.Orchestrator.BaseBranch != "main" {
		t.Errorf("BaseBranch = %q, want main", cfg.Orchestrator.BaseBranch)
	}
	if cfg.Matcher.QualityThreshold != 60 {
		t.Errorf("QualityThreshold = %v, want 60", cfg.Matcher.QualityThreshold)
	}
	if cfg.Matcher.OverloadThreshold != 10 {
		t.Errorf("OverloadThreshold = %d, want 10", cfg.Matcher.OverloadThreshold)
	}
	if cfg.Uncertainty.MinDescriptionLength != 50 {
		t.Errorf("MinDescriptionLength = %d, want 50", cfg.Uncertainty.MinDescriptionLength)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadFromPath(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	configContent := `
anthropic:
  api_key: test-key
orchestrator:
  max_depth: 2
  verification_timeout: 2m
  verification_poll_interval: 5s
  base_branch: develop
matcher:
  quality_threshold: 70
quality_gates:
  test: true
state:
  driver: sqlite3
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Anthropic.APIKey)
	assert.Equal(t, 2, cfg.Orchestrator.MaxDepth)
	assert.Equal(t, 2*time.Minute, cfg.Orchestrator.VerificationTimeout)
	assert.Equal(t, 5*time.Second, cfg.Orchestrator.VerificationPollInterval)
	assert.Equal(t, "develop", cfg.Orchestrator.BaseBranch)
	assert.Equal(t, 10, cfg.Orchestrator.MaxSubtasks, "unset keys keep defaults")
	assert.Equal(t, 70.0, cfg.Matcher.QualityThreshold)
	assert.True(t, cfg.QualityGates.Test)
	assert.Equal(t, "sqlite3", cfg.State.Driver)
}

func TestLoadFromPath_EnvOverride(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("orchestrator:\n  max_subtasks: 4\n"), 0644))

	t.Setenv("HOLLON_ORCHESTRATOR_MAX_SUBTASKS", "7")
	cfg, err := LoadFromPath(configPath)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Orchestrator.MaxSubtasks)
}

func TestLoadFromPath_Invalid(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("state:\n  driver: postgres\n"), 0644))

	_, err := LoadFromPath(configPath)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero depth", func(c *Config) { c.Orchestrator.MaxDepth = 0 }},
		{"zero fan-out", func(c *Config) { c.Orchestrator.MaxSubtasks = 0 }},
		{"negative retries", func(c *Config) { c.Orchestrator.MaxCIRetries = -1 }},
		{"zero poll", func(c *Config) { c.Orchestrator.VerificationPollInterval = 0 }},
		{"timeout shorter than poll", func(c *Config) { c.Orchestrator.VerificationTimeout = time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Orchestrator.BaseBranch = "trunk"
	cfg.Matcher.MaxAlternatives = 5

	require.NoError(t, SaveTo(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "trunk", loaded.Orchestrator.BaseBranch)
	assert.Equal(t, 5, loaded.Matcher.MaxAlternatives)
	assert.Equal(t, cfg.Orchestrator.VerificationTimeout, loaded.Orchestrator.VerificationTimeout)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TEST_VAR", "expanded-value")

	if got := expandEnv("${TEST_VAR}"); got != "expanded-value" {
		t.Errorf("expandEnv = %q, want expanded-value", got)
	}
	if got := expandEnv("prefix-${TEST_VAR}-suffix"); got != "prefix-expanded-value-suffix" {
		t.Errorf("expandEnv = %q", got)
	}
}

func TestGetUserConfigDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	if dir := getUserConfigDir(); dir != "/custom/config/hollon" {
		t.Errorf("getUserConfigDir() = %q, want /custom/config/hollon", dir)
	}
}

func TestAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := APIKey(Default())
	assert.ErrorIs(t, err, ErrNoAPIKey)

	cfg := Default()
	cfg.Anthropic.APIKey = "sk-ant-from-config"
	key, err := APIKey(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-from-config", key)

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env")
	key, err = APIKey(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-from-env", key)
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "(not set)"},
		{"short", "***"},
		{"sk-ant-abcdefghijklmnop", "sk-ant-...mnop"},
	}
	for _, tt := range tests {
		if got := MaskAPIKey(tt.in); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	defer goleak.VerifyNone(t)
	t.Setenv("ANTHROPIC_API_KEY", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("orchestrator:\n  max_depth: 2\n"), 0644))

	reloaded := make(chan *Config, 8)
	w, err := Watch(path, func(c *Config) { reloaded <- c }, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("orchestrator:\n  max_depth: 5\n"), 0644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Orchestrator.MaxDepth == 5 {
				require.NoError(t, w.Close())
				return
			}
		case <-deadline:
			w.Close()
			t.Fatal("config was not reloaded")
		}
	}
}

func TestWatcher_CloseIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0644))

	w, err := Watch(path, func(*Config) {}, nil)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}
