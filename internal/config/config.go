package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	// ListenAddr is the TCP address clients connect to.
	ListenAddr string `mapstructure:"listenAddr"`
	// WSListenAddr serves the same protocol over WebSocket. Empty disables it.
	WSListenAddr string `mapstructure:"wsListenAddr"`
	DBFile       string `mapstructure:"dbFile"`
	LogLevel     string `mapstructure:"logLevel"`
	LogFile      string `mapstructure:"logFile"`
	// SaveInterval is how often the directory snapshot is written between
	// shutdowns. Zero disables periodic saves.
	SaveInterval time.Duration `mapstructure:"saveInterval"`
}

// Load reads configuration from an optional config file and PARLEY_*
// environment variables, falling back to defaults.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listenAddr", ":7023")
	v.SetDefault("wsListenAddr", "")
	v.SetDefault("dbFile", "parley.db")
	v.SetDefault("logLevel", "info")
	v.SetDefault("logFile", "")
	v.SetDefault("saveInterval", "5m")

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PARLEY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		logger.Warn("config file not found, relying on defaults and env vars")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listenAddr is required")
	}
	if c.DBFile == "" {
		return fmt.Errorf("dbFile is required")
	}
	if c.SaveInterval < 0 {
		return fmt.Errorf("saveInterval must not be negative")
	}
	return nil
}
