package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/datalik/")
	viper.AddConfigPath("$HOME/.datalik/")

	// Environment variable overrides, e.g. DATALIK_SERVER_PORT.
	viper.SetEnvPrefix("DATALIK")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Ingest.SampleRows <= 0 {
		return fmt.Errorf("invalid sample_rows: %d (must be positive)", config.Ingest.SampleRows)
	}

	if config.Ingest.CategoricalRatio <= 0 || config.Ingest.CategoricalRatio > 1 {
		return fmt.Errorf("invalid categorical_ratio: %v (must be in (0, 1])", config.Ingest.CategoricalRatio)
	}

	if config.Metrics.TopK <= 0 {
		return fmt.Errorf("invalid top_k: %d (must be positive)", config.Metrics.TopK)
	}

	if config.Session.Backend != "memory" && config.Session.Backend != "redis" {
		return fmt.Errorf("invalid session backend: %s (must be memory or redis)", config.Session.Backend)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}
