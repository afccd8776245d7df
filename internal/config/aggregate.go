package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// AggregateConfig holds configuration for aggregation.
type AggregateConfig struct {
	Journal       string
	Pool          string
	Window        time.Duration
	PGDSN         string
	BatchSize     int
	State         string
	RecomputeFrom uint64
	LogLevel      string
}

// LoadAggregate merges config file, environment variables, and flags into AggregateConfig.
func LoadAggregate(cfgFile string, flags *pflag.FlagSet) (AggregateConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		v.SetDefault("journal", "./data/operations.jsonl")
		v.SetDefault("window", time.Hour)
		v.SetDefault("batch-size", 1000)
		v.SetDefault("log-level", "info")
	})
	if err != nil {
		return AggregateConfig{}, err
	}

	cfg := AggregateConfig{
		Journal:       v.GetString("journal"),
		Pool:          v.GetString("pool"),
		Window:        v.GetDuration("window"),
		PGDSN:         v.GetString("pg-dsn"),
		BatchSize:     v.GetInt("batch-size"),
		State:         v.GetString("state"),
		RecomputeFrom: v.GetUint64("recompute-from"),
		LogLevel:      v.GetString("log-level"),
	}

	if cfg.Journal == "" {
		return AggregateConfig{}, fmt.Errorf("journal is required")
	}
	if cfg.PGDSN == "" {
		return AggregateConfig{}, fmt.Errorf("pg-dsn is required")
	}
	if cfg.Window < time.Second || cfg.Window%time.Second != 0 {
		return AggregateConfig{}, fmt.Errorf("window must be a whole number of seconds")
	}
	return cfg, nil
}

// WindowSeconds returns the window size in seconds.
func (c AggregateConfig) WindowSeconds() uint64 {
	return uint64(c.Window / time.Second)
}
