// Package config loads engine limits and logging settings from TOML.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"

	"github.com/nooga/esvm/pkg/errors"
)

// DefaultFileName is the configuration file looked up by the CLI.
const DefaultFileName = "esvm.toml"

// Config is the root of the configuration file.
type Config struct {
	Engine Engine `toml:"engine"`
	Log    Log    `toml:"log"`
}

// Engine holds execution limits. Zero values are replaced by defaults in
// Load; Validate rejects negative or inconsistent values.
type Engine struct {
	MaxRecursionDepth     int      `toml:"max-recursion-depth"`
	MaxNativeDepth        int      `toml:"max-native-depth"`
	MaxRegisters          int      `toml:"max-registers"`
	MaxObjectSlots        int      `toml:"max-object-slots"`
	HashTableThreshold    int      `toml:"hash-table-threshold"`
	DeleteChurnThreshold  int      `toml:"delete-churn-threshold"`
	StackTraceDepth       int      `toml:"stack-trace-depth"`
	TimesliceQuota        int      `toml:"timeslice-quota"`
	TimesliceQuotaMax     int      `toml:"timeslice-quota-max"`
	MaxRunTime            Duration `toml:"max-run-time"`
	GCAllocationThreshold int      `toml:"gc-allocation-threshold"`
}

// Log configures the zap logger built by the CLI.
type Log struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Duration is a time.Duration that decodes from TOML strings like "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Engine: Engine{
			MaxRecursionDepth:     1000,
			MaxNativeDepth:        64,
			MaxRegisters:          1 << 20,
			MaxObjectSlots:        1 << 20,
			HashTableThreshold:    64,
			DeleteChurnThreshold:  16,
			StackTraceDepth:       32,
			TimesliceQuota:        1000,
			TimesliceQuotaMax:     1 << 20,
			GCAllocationThreshold: 4096,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads and validates the configuration at path. A missing file yields
// the defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := Default()
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, &errors.ConfigError{Msg: fmt.Sprintf("stat %s", path), Cause: err}
	}
	if !exists {
		return cfg, nil
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, &errors.ConfigError{Msg: fmt.Sprintf("read %s", path), Cause: err}
	}
	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes TOML data over cfg, so unset keys keep their prior values.
func Parse(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return &errors.ConfigError{Msg: "invalid TOML", Cause: err}
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return &errors.ConfigError{Field: undecoded[0].String(), Msg: "unknown key"}
	}
	return cfg.Validate()
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	e := &c.Engine
	positive := []struct {
		name string
		v    int
	}{
		{"engine.max-recursion-depth", e.MaxRecursionDepth},
		{"engine.max-native-depth", e.MaxNativeDepth},
		{"engine.max-registers", e.MaxRegisters},
		{"engine.max-object-slots", e.MaxObjectSlots},
		{"engine.hash-table-threshold", e.HashTableThreshold},
		{"engine.delete-churn-threshold", e.DeleteChurnThreshold},
		{"engine.timeslice-quota", e.TimesliceQuota},
		{"engine.timeslice-quota-max", e.TimesliceQuotaMax},
		{"engine.gc-allocation-threshold", e.GCAllocationThreshold},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return &errors.ConfigError{Field: p.name, Msg: "must be positive"}
		}
	}
	if e.StackTraceDepth < 0 {
		return &errors.ConfigError{Field: "engine.stack-trace-depth", Msg: "must not be negative"}
	}
	if e.TimesliceQuotaMax < e.TimesliceQuota {
		return &errors.ConfigError{Field: "engine.timeslice-quota-max", Msg: "must be at least timeslice-quota"}
	}
	if e.MaxRunTime.Duration < 0 {
		return &errors.ConfigError{Field: "engine.max-run-time", Msg: "must not be negative"}
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error", "":
	default:
		return &errors.ConfigError{Field: "log.level", Msg: fmt.Sprintf("unknown level %q", c.Log.Level)}
	}
	return nil
}
