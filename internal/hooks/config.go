package hooks

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultTimeoutSeconds is applied to a hook definition that doesn't
// specify its own timeout (spec.md §4.7).
const DefaultTimeoutSeconds = 60

// Definition is one configured hook: a command bound to an event, an
// optional phase-name glob, and a timeout.
type Definition struct {
	Event          Event  `yaml:"event" mapstructure:"event"`
	Match          string `yaml:"match,omitempty" mapstructure:"match"`
	Command        string `yaml:"command" mapstructure:"command"`
	TimeoutSeconds int    `yaml:"timeout_secs,omitempty" mapstructure:"timeout_secs"`
}

// EffectiveTimeoutSeconds returns the configured timeout, or the default.
func (d Definition) EffectiveTimeoutSeconds() int {
	if d.TimeoutSeconds > 0 {
		return d.TimeoutSeconds
	}
	return DefaultTimeoutSeconds
}

// Config is the parsed `hooks:` section of the project configuration file
// (spec.md §4.7; the `hooks:` key of `.forge.yaml`, or a standalone hooks
// file read with LoadConfig).
type Config struct {
	Hooks []Definition `yaml:"hooks"`
}

// LoadConfig reads and parses a hooks configuration file. A missing file is
// not an error — it yields an empty Config, since hooks are optional.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read hooks config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse hooks config %s: %w", path, err)
	}
	for i, h := range cfg.Hooks {
		if h.Command == "" {
			return Config{}, fmt.Errorf("hooks config %s: entry %d missing command", path, i)
		}
		if h.Event == "" {
			return Config{}, fmt.Errorf("hooks config %s: entry %d missing event", path, i)
		}
	}
	return cfg, nil
}

// ForEvent returns the definitions bound to a given event, preserving
// configuration order (hooks run in the order they were declared).
func (c Config) ForEvent(e Event) []Definition {
	var out []Definition
	for _, h := range c.Hooks {
		if h.Event == e {
			out = append(out, h)
		}
	}
	return out
}
