// Package config provides configuration management for actiond.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for actiond.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP API configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Scheduler is the task scheduler configuration.
	Scheduler SchedulerConfig `mapstructure:"scheduler"`

	// Toast is the toast stack configuration.
	Toast ToastConfig `mapstructure:"toast"`

	// Storage is the registration store configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// Editor is the program file configuration.
	Editor EditorConfig `mapstructure:"editor"`

	// Bridge is the remote action bridge configuration.
	Bridge BridgeConfig `mapstructure:"bridge"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"env"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// RateLimit bounds action ingestion over HTTP.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// MaxWebSocketConnections bounds concurrent toast stream clients.
	MaxWebSocketConnections int `mapstructure:"max_ws_connections" validate:"min=1"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`
}

// CORSConfig holds CORS settings for the browser editor.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins. It also gates websocket upgrades.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age" validate:"min=0"`
}

// RateLimitConfig configures the token bucket in front of POST /api/v1/actions.
type RateLimitConfig struct {
	// RequestsPerSecond is the refill rate. Zero disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`

	// Burst is the bucket size.
	Burst int `mapstructure:"burst" validate:"min=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// SchedulerConfig holds task scheduler settings.
type SchedulerConfig struct {
	// HistorySize is how many finished tasks are kept for inspection.
	HistorySize int `mapstructure:"history_size" validate:"min=0"`
}

// ToastConfig holds toast stack settings.
type ToastConfig struct {
	// MaxToasts is the maximum number of toasts visible at once.
	MaxToasts int `mapstructure:"max_toasts" validate:"min=1"`
}

// StorageConfig holds registration store settings.
type StorageConfig struct {
	// Type is the storage backend (memory, badger).
	Type string `mapstructure:"type" validate:"oneof=memory badger"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size" validate:"min=0"`

	// NumVersionsToKeep is the number of versions to keep per key.
	NumVersionsToKeep int `mapstructure:"num_versions_to_keep" validate:"min=0"`
}

// EditorConfig holds program file settings.
type EditorConfig struct {
	// ProgramPath is the program file kept in sync with the editor.
	ProgramPath string `mapstructure:"program_path" validate:"required"`

	// Watch enables dispatching storage changes made outside actiond.
	Watch bool `mapstructure:"watch"`

	// Debounce coalesces bursts of file events.
	Debounce time.Duration `mapstructure:"debounce"`
}

// BridgeConfig holds remote action bridge settings.
type BridgeConfig struct {
	// Enabled connects the scheduler to a Redis Pub/Sub action bus.
	Enabled bool `mapstructure:"enabled"`

	// NodeID identifies this process on the bus.
	NodeID string `mapstructure:"node_id"`

	// Prefix is the subject prefix shared by all nodes.
	Prefix string `mapstructure:"prefix"`

	// Outbound lists action type patterns forwarded to the bus.
	Outbound []string `mapstructure:"outbound" validate:"dive,subject_pattern"`

	// QueueSize bounds actions waiting to be forwarded.
	QueueSize int `mapstructure:"queue_size" validate:"min=0"`

	// DedupWindow is how many envelope ids are remembered for duplicate suppression.
	DedupWindow int `mapstructure:"dedup_window" validate:"min=0"`

	// Redis is the Redis connection configuration.
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db" validate:"min=0"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlpgrpc).
	Exporter string `mapstructure:"exporter" validate:"oneof=otlpgrpc"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Headers are sent with every export request.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds a single export.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler is the sampling strategy (always_on, always_off, ratio).
	Sampler string `mapstructure:"sampler" validate:"oneof=always_on always_off ratio"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s, Storage: %s}",
		c.App.Name, c.Server.Port, c.App.Environment, c.Storage.Type)
}
