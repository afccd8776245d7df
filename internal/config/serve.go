package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ServeConfig holds configuration for the HTTP API.
type ServeConfig struct {
	Config
	Listen string
	APIKey string
}

// LoadServe merges config file, environment variables, and flags into ServeConfig.
func LoadServe(cfgFile string, flags *pflag.FlagSet) (ServeConfig, error) {
	v, err := newViper(cfgFile, flags, func(v *viper.Viper) {
		setDefaults(v)
		v.SetDefault("listen", ":8080")
	})
	if err != nil {
		return ServeConfig{}, err
	}

	cfg := ServeConfig{
		Config: fromViper(v),
		Listen: v.GetString("listen"),
		APIKey: v.GetString("api-key"),
	}
	if err := cfg.Validate(); err != nil {
		return ServeConfig{}, err
	}
	if cfg.Listen == "" {
		return ServeConfig{}, fmt.Errorf("listen address is required")
	}
	return cfg, nil
}
