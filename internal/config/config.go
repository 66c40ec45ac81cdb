package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/arkologystudio/lumen/pkg/utils"
)

type Config struct {
	Listen        string          `yaml:"listen" json:"listen"`
	DataDir       string          `yaml:"data_dir" json:"data_dir"`
	CacheTTL      time.Duration   `yaml:"cache_ttl" json:"cache_ttl"`
	PageTimeout   time.Duration   `yaml:"page_timeout" json:"page_timeout"`
	MaxConcurrent int             `yaml:"max_concurrent" json:"max_concurrent"`
	RateLimit     float64         `yaml:"rate_limit" json:"rate_limit"`
	UserAgent     string          `yaml:"user_agent" json:"user_agent"`
	JWTSecret     string          `yaml:"jwt_secret" json:"jwt_secret"`
	Log           utils.LogConfig `yaml:"log" json:"log"`
}

func SetDefaults() {
	viper.SetDefault("listen", ":8080")
	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("cache_ttl", "24h")
	viper.SetDefault("page_timeout", "15s")
	viper.SetDefault("max_concurrent", 3)
	viper.SetDefault("rate_limit", 4.0)
	viper.SetDefault("user_agent", "")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "json")
	viper.SetDefault("log_file", "")
}

// Load materializes the typed config from whatever viper has resolved from
// flags, environment and config file.
func Load() (*Config, error) {
	cfg := &Config{
		Listen:        viper.GetString("listen"),
		DataDir:       viper.GetString("data_dir"),
		CacheTTL:      viper.GetDuration("cache_ttl"),
		PageTimeout:   viper.GetDuration("page_timeout"),
		MaxConcurrent: viper.GetInt("max_concurrent"),
		RateLimit:     viper.GetFloat64("rate_limit"),
		UserAgent:     viper.GetString("user_agent"),
		JWTSecret:     viper.GetString("jwt_secret"),
		Log: utils.LogConfig{
			Level:         viper.GetString("log_level"),
			Format:        viper.GetString("log_format"),
			FileLocation:  viper.GetString("log_file"),
			EnableConsole: true,
		},
	}
	if cfg.MaxConcurrent <= 0 {
		return nil, fmt.Errorf("max_concurrent must be positive, got %d", cfg.MaxConcurrent)
	}
	if cfg.CacheTTL < 0 {
		return nil, fmt.Errorf("cache_ttl must not be negative")
	}
	return cfg, nil
}

// Save writes the config as a YAML profile.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultProfilePath is where `configure init` writes profiles.
func DefaultProfilePath(profile string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".lumen", profile+".yaml"), nil
}
