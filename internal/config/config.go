// Package config loads SDK configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all SDK configuration.
type Config struct {
	WorkspaceID string `envconfig:"TRACEKIT_WORKSPACE_ID"`
	ServiceName string `envconfig:"TRACEKIT_SERVICE_NAME" default:"tracekit-go-app"`
	BaseURL     string `envconfig:"TRACEKIT_BASE_URL" default:"https://api.tracekit.dev"`
	TracePath   string `envconfig:"TRACEKIT_TRACE_PATH" default:"/v1/loop/opentelemetry/v1/traces"`

	Auth  AuthConfig
	Trace TraceConfig
	HTTP  HTTPConfig
	Log   LogConfig
}

// AuthConfig holds credential configuration. Exactly one of the token or the
// JWT triple is expected; neither is defaulted.
type AuthConfig struct {
	Token          string `envconfig:"TRACEKIT_API_TOKEN"`
	JWTClientID    string `envconfig:"TRACEKIT_JWT_CLIENT_ID"`
	JWTPrivateKey  string `envconfig:"TRACEKIT_JWT_PRIVATE_KEY"`
	JWTPublicKeyID string `envconfig:"TRACEKIT_JWT_PUBLIC_KEY_ID"`
}

// TraceConfig holds span queue and batching configuration.
type TraceConfig struct {
	MaxQueueSize    int           `envconfig:"TRACEKIT_MAX_QUEUE_SIZE" default:"2048"`
	BatchSize       int           `envconfig:"TRACEKIT_BATCH_SIZE" default:"512"`
	ScheduleDelay   time.Duration `envconfig:"TRACEKIT_SCHEDULE_DELAY" default:"5s"`
	ExportBatchCap  int           `envconfig:"TRACEKIT_EXPORT_BATCH_CAP" default:"25"`
	FlushTimeout    time.Duration `envconfig:"TRACEKIT_FLUSH_TIMEOUT" default:"10s"`
	ShutdownTimeout time.Duration `envconfig:"TRACEKIT_SHUTDOWN_TIMEOUT" default:"10s"`
}

// HTTPConfig holds transport timeouts.
type HTTPConfig struct {
	ConnectTimeout time.Duration `envconfig:"TRACEKIT_CONNECT_TIMEOUT" default:"10s"`
	ReadTimeout    time.Duration `envconfig:"TRACEKIT_READ_TIMEOUT" default:"10s"`
	WriteTimeout   time.Duration `envconfig:"TRACEKIT_WRITE_TIMEOUT" default:"10s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"TRACEKIT_LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"TRACEKIT_LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns defaults.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration. Workspace id and credentials have no
// default; they must be supplied explicitly or via environment.
func Default() *Config {
	return &Config{
		ServiceName: "tracekit-go-app",
		BaseURL:     "https://api.tracekit.dev",
		TracePath:   "/v1/loop/opentelemetry/v1/traces",
		Trace: TraceConfig{
			MaxQueueSize:    2048,
			BatchSize:       512,
			ScheduleDelay:   5 * time.Second,
			ExportBatchCap:  25,
			FlushTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			ConnectTimeout: 10 * time.Second,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
		},
		Log: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
