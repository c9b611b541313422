package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Metrics   MetricsConfig   `yaml:"metrics" mapstructure:"metrics"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `yaml:"port" mapstructure:"port"`
	ReadTimeout   time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxUploadSize int64         `yaml:"max_upload_size" mapstructure:"max_upload_size"`
}

// IngestConfig tunes the inference and validation stages.
type IngestConfig struct {
	// SampleRows bounds how many rows type inference reads.
	SampleRows int `yaml:"sample_rows" mapstructure:"sample_rows"`
	// CategoricalRatio is the distinct/non-empty ceiling below which a
	// text column is promoted to categorical.
	CategoricalRatio float64 `yaml:"categorical_ratio" mapstructure:"categorical_ratio"`
}

// MetricsConfig tunes the KPI calculator.
type MetricsConfig struct {
	// TopK is the default group ranking depth.
	TopK int `yaml:"top_k" mapstructure:"top_k"`
}

// SessionConfig selects the session cache backend.
type SessionConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"` // memory or redis
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// AuthConfig points at the credential file.
type AuthConfig struct {
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// TelemetryConfig configures the optional Datadog backend.
type TelemetryConfig struct {
	Enabled    bool          `yaml:"enabled" mapstructure:"enabled"`
	Service    string        `yaml:"service" mapstructure:"service"`
	Tags       string        `yaml:"tags" mapstructure:"tags"` // comma-separated
	FlushEvery time.Duration `yaml:"flush_every" mapstructure:"flush_every"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,
			IdleTimeout:   60 * time.Second,
			MaxUploadSize: 64 << 20,
		},
		Ingest: IngestConfig{
			SampleRows:       100,
			CategoricalRatio: 0.5,
		},
		Metrics: MetricsConfig{
			TopK: 5,
		},
		Session: SessionConfig{
			Backend: "memory",
			Addr:    "localhost:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:    false,
			Service:    "datalik",
			FlushEvery: 60 * time.Second,
		},
	}
}
