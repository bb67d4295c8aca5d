// Package config loads CLI configuration from file and environment.
// Env var overrides use the prefix CAMPAIGNSYNC_.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Backend BackendConfig
	Media   MediaConfig
	Log     LogConfig
}

// BackendConfig holds pipeline backend settings.
type BackendConfig struct {
	URL            string
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// MediaConfig holds content resolution settings.
type MediaConfig struct {
	Dir string

	// DirectS3 fetches store objects with local credentials instead of
	// asking the backend to mirror them.
	DirectS3 bool `mapstructure:"direct_s3"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// Load reads configuration. Precedence: env vars over config file over
// defaults.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.timeout_seconds", 30)
	v.SetDefault("media.dir", "media")
	v.SetDefault("media.direct_s3", false)
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")

	if cfgPath := os.Getenv("CAMPAIGNSYNC_CONFIG"); cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "campaignsync"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("CAMPAIGNSYNC")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
