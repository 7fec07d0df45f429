// Package models - Service configuration and operational settings.
// This file defines the configuration structures for all service components.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, breaker, etc.)
// - Environment-friendly defaults that work out of the box
// - Comprehensive validation to catch misconfigurations early
// - Security-first approach with safe defaults
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeJSON     = "json"
	StorageTypeMemory   = "memory"
	StorageTypePostgres = "postgres"
	StorageTypeSQLite   = "sqlite"
)

// Event sink type constants
const (
	EventSinkNone  = "none"
	EventSinkLog   = "log"
	EventSinkKafka = "kafka"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Storage: Limiter registry and breach audit persistence
// - Breaker: Sliding-window tracker parameters
// - Events: Fire-and-forget notification sink
// - Settlement: Deferred-action collaborator policy
// - Security: Admin authentication and HTTP rate limiting
// - Logging: Structured logging and output configuration
// - Metrics / Observability: Monitoring, tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Breaker       BreakerConfig       `yaml:"breaker" json:"breaker"`
	Events        EventsConfig        `yaml:"events" json:"events"`
	Settlement    SettlementConfig    `yaml:"settlement" json:"settlement"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
	CORS         CORSConfig    `yaml:"cors" json:"cors"`
}

type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Path     string         `yaml:"path" json:"path"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// BreakerConfig holds the sliding-window tracker parameters shared by every
// limiter. Window is the trailing evaluation duration; Tick is the bucket
// coarsening granularity, bounding buckets per window to Window/Tick.
type BreakerConfig struct {
	Window time.Duration `yaml:"window" json:"window"`
	Tick   time.Duration `yaml:"tick" json:"tick"`

	// GateIncludesWindow selects whether the in-window total contributes to
	// the enforcement gate alongside the settled total.
	GateIncludesWindow bool `yaml:"gate_includes_window" json:"gate_includes_window"`

	// SyncMaxIterations caps bucket evictions per explicit sync call when the
	// caller does not supply a budget. 0 means unbounded.
	SyncMaxIterations int `yaml:"sync_max_iterations" json:"sync_max_iterations"`
}

type EventsConfig struct {
	Sink  string      `yaml:"sink" json:"sink"`
	Kafka KafkaConfig `yaml:"kafka" json:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers" json:"brokers"`
	Topic   string   `yaml:"topic" json:"topic"`
}

// SettlementConfig configures the deferred-action collaborator that receives
// operations rejected by a triggered limiter.
type SettlementConfig struct {
	MinDelay time.Duration `yaml:"min_delay" json:"min_delay"`
}

type SecurityConfig struct {
	EnableAuth bool            `yaml:"enable_auth" json:"enable_auth"`
	AdminToken string          `yaml:"admin_token" json:"admin_token"`
	RateLimit  RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

type LoggingConfig struct {
	Level    string `yaml:"level" json:"level"`
	Format   string `yaml:"format" json:"format"`
	Output   string `yaml:"output" json:"output"`
	FilePath string `yaml:"file_path" json:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with production-ready defaults.
//
// Default Values Rationale:
// - Port 8080: standard non-privileged HTTP port
// - 30-second timeouts: balance between responsiveness and resource protection
// - JSON storage: simple setup without external dependencies
// - 24h window / 1h ticks: at most 24 buckets per limiter
// - Log event sink: observable without external brokers
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
			TLSEnabled:   false,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
				MaxAge:         300,
			},
		},
		Storage: StorageConfig{
			Type: StorageTypeJSON,
			Path: "./data/limiters.json",
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Breaker: BreakerConfig{
			Window:             24 * time.Hour,
			Tick:               time.Hour,
			GateIncludesWindow: false,
			SyncMaxIterations:  0,
		},
		Events: EventsConfig{
			Sink: EventSinkLog,
			Kafka: KafkaConfig{
				Topic: "flowguard-events",
			},
		},
		Settlement: SettlementConfig{
			MinDelay: time.Hour,
		},
		Security: SecurityConfig{
			EnableAuth: false,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
				BurstSize:         100,
				CleanupInterval:   5 * time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "flowguard",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Breaker.Validate(); err != nil {
		return fmt.Errorf("invalid breaker config: %w", err)
	}

	if err := c.Events.Validate(); err != nil {
		return fmt.Errorf("invalid events config: %w", err)
	}

	if err := c.Settlement.Validate(); err != nil {
		return fmt.Errorf("invalid settlement config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 {
		return errors.New("read timeout cannot be negative")
	}

	if sc.WriteTimeout < 0 {
		return errors.New("write timeout cannot be negative")
	}

	if sc.IdleTimeout < 0 {
		return errors.New("idle timeout cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeJSON:
		if stc.Path == "" {
			return errors.New("path is required for JSON storage")
		}
	case StorageTypeMemory:
		// Memory storage requires no additional configuration
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	return nil
}

func (bc *BreakerConfig) Validate() error {
	if bc.Window <= 0 {
		return errors.New("window must be positive")
	}

	if bc.Tick <= 0 {
		return errors.New("tick must be positive")
	}

	if bc.Tick > bc.Window {
		return errors.New("tick cannot exceed the window")
	}

	if bc.SyncMaxIterations < 0 {
		return errors.New("sync max iterations cannot be negative")
	}

	return nil
}

func (ec *EventsConfig) Validate() error {
	switch ec.Sink {
	case EventSinkNone, EventSinkLog:
	case EventSinkKafka:
		if len(ec.Kafka.Brokers) == 0 {
			return errors.New("kafka brokers are required when sink is kafka")
		}
		if ec.Kafka.Topic == "" {
			return errors.New("kafka topic is required when sink is kafka")
		}
	default:
		return fmt.Errorf("invalid event sink: %s", ec.Sink)
	}

	return nil
}

func (stc *SettlementConfig) Validate() error {
	if stc.MinDelay < 0 {
		return errors.New("settlement min delay cannot be negative")
	}
	return nil
}

func (sec *SecurityConfig) Validate() error {
	if sec.EnableAuth && sec.AdminToken == "" {
		return errors.New("admin token is required when auth is enabled")
	}

	if sec.RateLimit.Enabled {
		if sec.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("requests per minute must be positive")
		}
		if sec.RateLimit.BurstSize <= 0 {
			return errors.New("burst size must be positive")
		}
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	switch lc.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	switch lc.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	switch lc.Output {
	case "stdout", "stderr":
	case "file":
		if lc.FilePath == "" {
			return errors.New("file path is required when output is file")
		}
	default:
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}

	switch oc.Tracing.Exporter {
	case "stdout", "otlp":
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.Exporter == "otlp" && oc.Tracing.OTLPEndpoint == "" {
		return errors.New("OTLP endpoint is required for the otlp exporter")
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}
