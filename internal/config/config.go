// Package config handles configuration loading and management for Forge.
// It supports XDG config paths, project-level overrides, and environment
// variables (spec.md §6 "Configuration").
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"github.com/tidwall/match"

	"github.com/forgehq/forge/internal/hooks"
	"github.com/forgehq/forge/pkg/models"
)

// Config holds all run-level configuration for Forge, recognized options
// per spec.md §6.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`

	Budget               int                  `mapstructure:"budget"`
	AutoApproveThreshold int                  `mapstructure:"auto_approve_threshold"`
	PermissionMode       models.PermissionMode `mapstructure:"permission_mode"`
	ContextLimit         string               `mapstructure:"context_limit"`
	SkipPermissions      bool                 `mapstructure:"skip_permissions"`
	SessionContinuity    bool                 `mapstructure:"session_continuity"`
	IterationFeedback    bool                 `mapstructure:"iteration_feedback"`

	Phases PhasesConfig `mapstructure:"phases"`
	Hooks  []hooks.Definition `mapstructure:"hooks"`
	Skills SkillsConfig `mapstructure:"skills"`
}

// AnthropicConfig holds Anthropic API settings, used only by the API-mode
// worker backend (internal/worker.NewAPI); the subprocess backend reads
// credentials from the `claude` CLI's own environment instead.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
}

// PhasesConfig holds the `phases.overrides."glob"` section: per-phase
// overrides of the top-level defaults, keyed by a glob matched against
// the phase name.
type PhasesConfig struct {
	Overrides map[string]PhaseOverride `mapstructure:"overrides"`
}

// PhaseOverride mirrors Config's overridable fields; zero values mean
// "inherit the run default".
type PhaseOverride struct {
	Budget               int                   `mapstructure:"budget"`
	AutoApproveThreshold *int                  `mapstructure:"auto_approve_threshold"`
	PermissionMode       models.PermissionMode `mapstructure:"permission_mode"`
	ContextLimit         string                `mapstructure:"context_limit"`
}

// SkillsConfig holds skill names injected into every phase.
type SkillsConfig struct {
	Global []string `mapstructure:"global"`
}

// ApplyOverrides returns cfg's defaults for phaseName after applying one
// matching `phases.overrides` glob entry. When several globs match, the
// longest pattern wins; which of several equally long matching patterns
// wins is not defined, since it follows Go's map iteration order.
func (c *Config) ApplyOverrides(phaseName string) PhaseOverride {
	result := PhaseOverride{
		Budget:         c.Budget,
		PermissionMode: c.PermissionMode,
		ContextLimit:   c.ContextLimit,
	}
	if c.AutoApproveThreshold != 0 {
		t := c.AutoApproveThreshold
		result.AutoApproveThreshold = &t
	}

	var bestGlob string
	var best PhaseOverride
	found := false
	for glob, override := range c.Phases.Overrides {
		if !match.Match(phaseName, glob) {
			continue
		}
		if !found || len(glob) > len(bestGlob) {
			bestGlob = glob
			best = override
			found = true
		}
	}
	if !found {
		return result
	}
	if best.Budget != 0 {
		result.Budget = best.Budget
	}
	if best.AutoApproveThreshold != nil {
		result.AutoApproveThreshold = best.AutoApproveThreshold
	}
	if best.PermissionMode != "" {
		result.PermissionMode = best.PermissionMode
	}
	if best.ContextLimit != "" {
		result.ContextLimit = best.ContextLimit
	}
	return result
}

// Load loads configuration from XDG paths, project overrides, and
// environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.forge.yaml in current directory or parent)
// 3. User config (~/.config/forge/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

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

	v.AutomaticEnv()
	v.SetEnvPrefix("")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific project config file,
// skipping the XDG user-config and environment-variable layers (for
// tests and `forge run --config <path>`).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// setDefaults configures the defaults spec.md §6 documents.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("budget", 10)
	v.SetDefault("auto_approve_threshold", 5)
	v.SetDefault("permission_mode", string(models.PermissionStandard))
	v.SetDefault("context_limit", "80%")
	v.SetDefault("skip_permissions", false)
	v.SetDefault("session_continuity", true)
	v.SetDefault("iteration_feedback", true)
}

// getUserConfigDir returns the XDG config directory for Forge.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "forge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "forge")
	}
	return filepath.Join(home, ".config", "forge")
}

// findProjectConfig searches for .forge.yaml in the current directory and
// its parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".forge.yaml")
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

// Default returns a Config with spec.md §6's default values, for callers
// that never touch disk (e.g. `forge run` invoked against a phase file
// with no accompanying project config).
func Default() *Config {
	return &Config{
		Budget:               10,
		AutoApproveThreshold: 5,
		PermissionMode:       models.PermissionStandard,
		ContextLimit:         "80%",
		SessionContinuity:    true,
		IterationFeedback:    true,
	}
}
