// Package config handles configuration loading and management for Hollon.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrNoAPIKey is returned when no Anthropic API key is configured.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// Config holds all configuration for Hollon.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Matcher      MatcherConfig      `mapstructure:"matcher"`
	Uncertainty  UncertaintyConfig  `mapstructure:"uncertainty"`
	QualityGates QualityGatesConfig `mapstructure:"quality_gates"`
	State        StateConfig        `mapstructure:"state"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	VCS          VCSConfig          `mapstructure:"vcs"`
}

// AnthropicConfig holds inference settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	MaxTokens  int    `mapstructure:"max_tokens"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// OrchestratorConfig holds execution and decomposition bounds.
type OrchestratorConfig struct {
	// MaxDepth bounds task depth below its aggregate root.
	MaxDepth int `mapstructure:"max_depth"`
	// MaxSubtasks bounds the number of children a task may have.
	MaxSubtasks int `mapstructure:"max_subtasks"`
	// MaxCIRetries is the number of verification retries per task.
	MaxCIRetries int `mapstructure:"max_ci_retries"`
	// VerificationTimeout is how long to wait for checks to finish.
	VerificationTimeout time.Duration `mapstructure:"verification_timeout"`
	// VerificationPollInterval is the delay between check polls.
	VerificationPollInterval time.Duration `mapstructure:"verification_poll_interval"`
	BaseBranch               string        `mapstructure:"base_branch"`
	Remote                   string        `mapstructure:"remote"`
	// WorkspaceDirName is created next to the repository to hold worktrees.
	WorkspaceDirName string `mapstructure:"workspace_dir_name"`
}

// MatcherConfig holds worker matching thresholds.
type MatcherConfig struct {
	QualityThreshold  float64 `mapstructure:"quality_threshold"`
	OverloadThreshold int     `mapstructure:"overload_threshold"`
	MaxAlternatives   int     `mapstructure:"max_alternatives"`
}

// UncertaintyConfig holds ambiguity detection settings.
type UncertaintyConfig struct {
	MinDescriptionLength int  `mapstructure:"min_description_length"`
	GenerateSpikes       bool `mapstructure:"generate_spikes"`
}

// QualityGatesConfig holds quality gate toggles.
type QualityGatesConfig struct {
	MinOutputLength int           `mapstructure:"min_output_length"`
	MaxCostCents    float64       `mapstructure:"max_cost_cents"`
	Timeout         time.Duration `mapstructure:"timeout"`
	Test            bool          `mapstructure:"test"`
	Build           bool          `mapstructure:"build"`
	Lint            bool          `mapstructure:"lint"`
	Typecheck       bool          `mapstructure:"typecheck"`
}

// StateConfig selects the persistence backend.
type StateConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `mapstructure:"driver"`
	// Path is the database file. Empty means <repo>/.hollon/state.db.
	Path string `mapstructure:"path"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// VCSConfig controls the change-request CLI.
type VCSConfig struct {
	GHBinary          string  `mapstructure:"gh_binary"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	Repository        string  `mapstructure:"repository"`
	// Reviewers are requested on every change request handed off for review.
	Reviewers []string `mapstructure:"reviewers"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (HOLLON_*, ANTHROPIC_API_KEY)
// 2. Project config (.hollon.yaml in current directory or parent)
// 3. User config (~/.config/hollon/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("HOLLON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "HOLLON_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	o := c.Orchestrator
	switch {
	case o.MaxDepth < 1:
		return fmt.Errorf("orchestrator.max_depth must be at least 1, got %d", o.MaxDepth)
	case o.MaxSubtasks < 1:
		return fmt.Errorf("orchestrator.max_subtasks must be at least 1, got %d", o.MaxSubtasks)
	case o.MaxCIRetries < 0:
		return fmt.Errorf("orchestrator.max_ci_retries must not be negative, got %d", o.MaxCIRetries)
	case o.VerificationPollInterval <= 0:
		return fmt.Errorf("orchestrator.verification_poll_interval must be positive")
	case o.VerificationTimeout < o.VerificationPollInterval:
		return fmt.Errorf("orchestrator.verification_timeout must not be shorter than the poll interval")
	}
	switch c.State.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("state.driver must be sqlite or sqlite3, got %q", c.State.Driver)
	}
	return nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	return SaveTo(cfg, GetUserConfigPath())
}

// SaveTo writes the configuration to path as YAML.
func SaveTo(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.max_tokens", cfg.Anthropic.MaxTokens)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("orchestrator.max_depth", cfg.Orchestrator.MaxDepth)
	v.Set("orchestrator.max_subtasks", cfg.Orchestrator.MaxSubtasks)
	v.Set("orchestrator.max_ci_retries", cfg.Orchestrator.MaxCIRetries)
	v.Set("orchestrator.verification_timeout", cfg.Orchestrator.VerificationTimeout.String())
	v.Set("orchestrator.verification_poll_interval", cfg.Orchestrator.VerificationPollInterval.String())
	v.Set("orchestrator.base_branch", cfg.Orchestrator.BaseBranch)
	v.Set("orchestrator.remote", cfg.Orchestrator.Remote)
	v.Set("orchestrator.workspace_dir_name", cfg.Orchestrator.WorkspaceDirName)
	v.Set("matcher.quality_threshold", cfg.Matcher.QualityThreshold)
	v.Set("matcher.overload_threshold", cfg.Matcher.OverloadThreshold)
	v.Set("matcher.max_alternatives", cfg.Matcher.MaxAlternatives)
	v.Set("uncertainty.min_description_length", cfg.Uncertainty.MinDescriptionLength)
	v.Set("uncertainty.generate_spikes", cfg.Uncertainty.GenerateSpikes)
	v.Set("quality_gates.min_output_length", cfg.QualityGates.MinOutputLength)
	v.Set("quality_gates.max_cost_cents", cfg.QualityGates.MaxCostCents)
	v.Set("quality_gates.timeout", cfg.QualityGates.Timeout.String())
	v.Set("quality_gates.test", cfg.QualityGates.Test)
	v.Set("quality_gates.build", cfg.QualityGates.Build)
	v.Set("quality_gates.lint", cfg.QualityGates.Lint)
	v.Set("quality_gates.typecheck", cfg.QualityGates.Typecheck)
	v.Set("state.driver", cfg.State.Driver)
	v.Set("state.path", cfg.State.Path)
	v.Set("logging.level", cfg.Logging.Level)
	v.Set("logging.format", cfg.Logging.Format)
	v.Set("logging.file", cfg.Logging.File)
	v.Set("vcs.gh_binary", cfg.VCS.GHBinary)
	v.Set("vcs.requests_per_second", cfg.VCS.RequestsPerSecond)
	v.Set("vcs.burst", cfg.VCS.Burst)
	v.Set("vcs.repository", cfg.VCS.Repository)
	v.Set("vcs.reviewers", cfg.VCS.Reviewers)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", d.Anthropic.Model)
	v.SetDefault("anthropic.max_tokens", d.Anthropic.MaxTokens)
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", d.Anthropic.AWSRegion)
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("orchestrator.max_depth", d.Orchestrator.MaxDepth)
	v.SetDefault("orchestrator.max_subtasks", d.Orchestrator.MaxSubtasks)
	v.SetDefault("orchestrator.max_ci_retries", d.Orchestrator.MaxCIRetries)
	v.SetDefault("orchestrator.verification_timeout", "10m")
	v.SetDefault("orchestrator.verification_poll_interval", "30s")
	v.SetDefault("orchestrator.base_branch", d.Orchestrator.BaseBranch)
	v.SetDefault("orchestrator.remote", d.Orchestrator.Remote)
	v.SetDefault("orchestrator.workspace_dir_name", d.Orchestrator.WorkspaceDirName)

	v.SetDefault("matcher.quality_threshold", d.Matcher.QualityThreshold)
	v.SetDefault("matcher.overload_threshold", d.Matcher.OverloadThreshold)
	v.SetDefault("matcher.max_alternatives", d.Matcher.MaxAlternatives)

	v.SetDefault("uncertainty.min_description_length", d.Uncertainty.MinDescriptionLength)
	v.SetDefault("uncertainty.generate_spikes", d.Uncertainty.GenerateSpikes)

	v.SetDefault("quality_gates.min_output_length", d.QualityGates.MinOutputLength)
	v.SetDefault("quality_gates.max_cost_cents", d.QualityGates.MaxCostCents)
	v.SetDefault("quality_gates.timeout", "5m")
	v.SetDefault("quality_gates.test", false)
	v.SetDefault("quality_gates.build", false)
	v.SetDefault("quality_gates.lint", false)
	v.SetDefault("quality_gates.typecheck", false)

	v.SetDefault("state.driver", d.State.Driver)
	v.SetDefault("state.path", "")

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", "")

	v.SetDefault("vcs.gh_binary", d.VCS.GHBinary)
	v.SetDefault("vcs.requests_per_second", d.VCS.RequestsPerSecond)
	v.SetDefault("vcs.burst", d.VCS.Burst)
	v.SetDefault("vcs.repository", "")
	v.SetDefault("vcs.reviewers", []string{})
}

// getUserConfigDir returns the XDG config directory for Hollon.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "hollon")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "hollon")
	}
	return filepath.Join(home, ".config", "hollon")
}

// findProjectConfig searches for .hollon.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".hollon.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 8192,
			AWSRegion: "us-east-1",
		},
		Orchestrator: OrchestratorConfig{
			MaxDepth:                 3,
			MaxSubtasks:              10,
			MaxCIRetries:             3,
			VerificationTimeout:      10 * time.Minute,
			VerificationPollInterval: 30 * time.Second,
			BaseBranch:               "main",
			Remote:                   "origin",
			WorkspaceDirName:         ".workspaces",
		},
		Matcher: MatcherConfig{
			QualityThreshold:  60,
			OverloadThreshold: 10,
			MaxAlternatives:   3,
		},
		Uncertainty: UncertaintyConfig{
			MinDescriptionLength: 50,
			GenerateSpikes:       true,
		},
		QualityGates: QualityGatesConfig{
			MinOutputLength: 1,
			MaxCostCents:    500,
			Timeout:         5 * time.Minute,
		},
		State: StateConfig{
			Driver: "sqlite",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		VCS: VCSConfig{
			GHBinary:          "gh",
			RequestsPerSecond: 2,
			Burst:             4,
		},
	}
}

// APIKey returns the Anthropic API key, preferring the environment.
func APIKey(cfg *Config) (string, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, nil
	}
	if cfg != nil && cfg.Anthropic.APIKey != "" {
		key := os.ExpandEnv(cfg.Anthropic.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, nil
		}
	}
	return "", ErrNoAPIKey
}

// MaskAPIKey returns a masked version of the API key for display.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}
