package jit

import (
	"encoding/json"
	"os"

	"tlog.app/go/errors"

	"github.com/sarchlab/m2dbt/cache"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid jit configuration")

// Config holds the pipeline settings.
type Config struct {
	// CacheSets is the number of translation cache sets. Must be a power
	// of two.
	CacheSets int `json:"cache_sets"`

	// CacheWays is the translation cache associativity.
	CacheWays int `json:"cache_ways"`

	// StepCounting emits the step counter check at every unit entry.
	StepCounting bool `json:"step_counting"`

	// MaxUnitInstructions caps the guest instructions in one unit.
	// Zero means no limit.
	MaxUnitInstructions int `json:"max_unit_instructions"`

	// Workers bounds the parallel compilations in CompileAll.
	Workers int `json:"workers"`
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() *Config {
	cc := cache.DefaultConfig()

	return &Config{
		CacheSets:           cc.Sets,
		CacheWays:           cc.Ways,
		StepCounting:        true,
		MaxUnitInstructions: 256,
		Workers:             4,
	}
}

// LoadConfig reads a Config from a JSON file. Fields missing from the
// file keep their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read jit config")
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "parse jit config")
	}

	return config, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "serialize jit config")
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "write jit config")
	}

	return nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	if c.CacheSets <= 0 {
		return errors.Wrap(ErrInvalidConfig, "cache_sets must be > 0")
	}
	if c.CacheSets&(c.CacheSets-1) != 0 {
		return errors.Wrap(ErrInvalidConfig, "cache_sets must be a power of two")
	}
	if c.CacheWays <= 0 {
		return errors.Wrap(ErrInvalidConfig, "cache_ways must be > 0")
	}
	if c.MaxUnitInstructions < 0 {
		return errors.Wrap(ErrInvalidConfig, "max_unit_instructions must be >= 0")
	}
	if c.Workers <= 0 {
		return errors.Wrap(ErrInvalidConfig, "workers must be > 0")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// CacheConfig returns the translation cache geometry.
func (c *Config) CacheConfig() cache.Config {
	return cache.Config{Sets: c.CacheSets, Ways: c.CacheWays}
}
