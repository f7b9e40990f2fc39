// Package config loads and validates the lemos.yml configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lemos-dev/lemos/pkg/core"
)

// DefaultFileName is looked for in the working directory when no --config
// flag is given.
const DefaultFileName = "lemos.yml"

// Config is the top-level lemos.yml structure.
type Config struct {
	Version  string                  `yaml:"version"`
	Instance string                  `yaml:"instance"`
	Redis    *RedisConfig            `yaml:"redis,omitempty"`
	Context  *ContextConfig          `yaml:"context,omitempty"`
	Rewards  *RewardsConfig          `yaml:"rewards,omitempty"`
	Rituals  []core.RitualDefinition `yaml:"rituals,omitempty"`
}

// RedisConfig points at the storage server. When the whole section is
// omitted, LemOS runs without persistence.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// Duration wraps time.Duration so yaml can decode "90m" style strings.
type Duration time.Duration

// UnmarshalYAML decodes a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes back to the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ContextConfig tunes the idle-timeout sweep.
type ContextConfig struct {
	IdleTimeout   *Duration `yaml:"idle_timeout,omitempty"`   // default 2h
	SweepSchedule string    `yaml:"sweep_schedule,omitempty"` // default @every 10m
}

// RewardsConfig tunes the reward engine.
type RewardsConfig struct {
	EnergyPerTick *int                    `yaml:"energy_per_tick,omitempty"` // default 1
	Rituals       map[string]RitualReward `yaml:"rituals,omitempty"`
}

// RitualReward is the static grant for completing one ritual.
type RitualReward struct {
	Energy int `yaml:"energy"`
	XP     int `yaml:"xp"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: instance name (namespaces every Redis key)
	if c.Instance == "" {
		return fmt.Errorf("instance name is required")
	}

	if c.Redis != nil && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when the redis section is present")
	}

	if c.Context != nil && c.Context.IdleTimeout != nil && time.Duration(*c.Context.IdleTimeout) <= 0 {
		return fmt.Errorf("context.idle_timeout must be positive, got %s", time.Duration(*c.Context.IdleTimeout))
	}

	if c.Rewards != nil {
		if c.Rewards.EnergyPerTick != nil && *c.Rewards.EnergyPerTick < 0 {
			return fmt.Errorf("rewards.energy_per_tick must be >= 0, got %d", *c.Rewards.EnergyPerTick)
		}
		for ritualID, reward := range c.Rewards.Rituals {
			if reward.Energy < 0 || reward.XP < 0 {
				return fmt.Errorf("rewards.rituals.%s: energy and xp must be >= 0", ritualID)
			}
		}
	}

	// Ritual definitions must be well-formed with unique ids
	seen := make(map[string]bool, len(c.Rituals))
	for i, ritual := range c.Rituals {
		if ritual.ID == "" {
			return fmt.Errorf("rituals[%d]: id is required", i)
		}
		if ritual.Name == "" {
			return fmt.Errorf("ritual '%s': name is required", ritual.ID)
		}
		if len(ritual.Steps) == 0 {
			return fmt.Errorf("ritual '%s': at least one step is required", ritual.ID)
		}
		if seen[ritual.ID] {
			return fmt.Errorf("duplicate ritual id '%s'", ritual.ID)
		}
		seen[ritual.ID] = true

		for j, step := range ritual.Steps {
			if step.ID == "" {
				return fmt.Errorf("ritual '%s': steps[%d]: id is required", ritual.ID, j)
			}
			if step.Prompt == "" {
				return fmt.Errorf("ritual '%s': step '%s': prompt is required", ritual.ID, step.ID)
			}
		}
	}

	return nil
}
