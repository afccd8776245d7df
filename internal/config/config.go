package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "METAPOOL"

// Pool host backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	Backend        string
	StateFile      string
	PGDSN          string
	Pool           string
	Journal        string
	RedisAddr      string
	RPCURL         string
	StakePool      string
	Rate           string
	RateTTL        time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
	FeeNumerator   uint32
	FeeDenominator uint32
	Authority      string
	LogLevel       string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v, err := newViper(cfgFile, flags, setDefaults)
	if err != nil {
		return Config{}, err
	}
	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend", BackendFile)
	v.SetDefault("state-file", "./data/pool.json")
	v.SetDefault("pool", "metapool")
	v.SetDefault("journal", "./data/operations.jsonl")
	v.SetDefault("rate", "1")
	v.SetDefault("rate-ttl", 30*time.Second)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("fee-numerator", uint32(3))
	v.SetDefault("fee-denominator", uint32(100))
	v.SetDefault("log-level", "info")
}

func fromViper(v *viper.Viper) Config {
	return Config{
		Backend:        strings.ToLower(v.GetString("backend")),
		StateFile:      v.GetString("state-file"),
		PGDSN:          v.GetString("pg-dsn"),
		Pool:           v.GetString("pool"),
		Journal:        v.GetString("journal"),
		RedisAddr:      v.GetString("redis-addr"),
		RPCURL:         v.GetString("rpc"),
		StakePool:      v.GetString("stake-pool"),
		Rate:           v.GetString("rate"),
		RateTTL:        v.GetDuration("rate-ttl"),
		MaxRetries:     v.GetInt("max-retries"),
		RetryBackoff:   v.GetDuration("retry-backoff"),
		FeeNumerator:   v.GetUint32("fee-numerator"),
		FeeDenominator: v.GetUint32("fee-denominator"),
		Authority:      v.GetString("authority"),
		LogLevel:       v.GetString("log-level"),
	}
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
	case BackendFile:
		if c.StateFile == "" {
			return fmt.Errorf("state-file is required for the file backend")
		}
	case BackendPostgres:
		if c.PGDSN == "" {
			return fmt.Errorf("pg-dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Pool == "" {
		return fmt.Errorf("pool name is required")
	}
	if c.StakePool != "" && c.RPCURL == "" {
		return fmt.Errorf("rpc is required when stake-pool is set")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max-retries must be >= 0")
	}
	return nil
}

func newViper(cfgFile string, flags *pflag.FlagSet, defaults func(*viper.Viper)) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if defaults != nil {
		defaults(v)
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("metapool")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return v, nil
}
