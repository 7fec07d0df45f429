package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"flowguard/internal/models"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("FLOWGUARD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("FLOWGUARD_HOST"); host != "" {
		config.Server.Host = host
	}

	if timeout := os.Getenv("FLOWGUARD_READ_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.ReadTimeout = d
		}
	}

	if timeout := os.Getenv("FLOWGUARD_WRITE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.WriteTimeout = d
		}
	}

	if timeout := os.Getenv("FLOWGUARD_IDLE_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Server.IdleTimeout = d
		}
	}

	if tls := os.Getenv("FLOWGUARD_TLS_ENABLED"); tls != "" {
		config.Server.TLSEnabled = strings.ToLower(tls) == "true"
	}

	if certFile := os.Getenv("FLOWGUARD_TLS_CERT_FILE"); certFile != "" {
		config.Server.TLSCertFile = certFile
	}

	if keyFile := os.Getenv("FLOWGUARD_TLS_KEY_FILE"); keyFile != "" {
		config.Server.TLSKeyFile = keyFile
	}

	// Storage configuration
	if storageType := os.Getenv("FLOWGUARD_STORAGE_TYPE"); storageType != "" {
		config.Storage.Type = storageType
	}

	if storagePath := os.Getenv("FLOWGUARD_STORAGE_PATH"); storagePath != "" {
		config.Storage.Path = storagePath
	}

	if dsn := os.Getenv("FLOWGUARD_DATABASE_DSN"); dsn != "" {
		config.Storage.Database.DSN = dsn
	}

	if maxOpen := os.Getenv("FLOWGUARD_DATABASE_MAX_OPEN_CONNS"); maxOpen != "" {
		if conns, err := strconv.Atoi(maxOpen); err == nil {
			config.Storage.Database.MaxOpenConns = conns
		}
	}

	if maxIdle := os.Getenv("FLOWGUARD_DATABASE_MAX_IDLE_CONNS"); maxIdle != "" {
		if conns, err := strconv.Atoi(maxIdle); err == nil {
			config.Storage.Database.MaxIdleConns = conns
		}
	}

	// Breaker configuration
	if window := os.Getenv("FLOWGUARD_BREAKER_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			config.Breaker.Window = d
		}
	}

	if tick := os.Getenv("FLOWGUARD_BREAKER_TICK"); tick != "" {
		if d, err := time.ParseDuration(tick); err == nil {
			config.Breaker.Tick = d
		}
	}

	if gate := os.Getenv("FLOWGUARD_BREAKER_GATE_INCLUDES_WINDOW"); gate != "" {
		config.Breaker.GateIncludesWindow = strings.ToLower(gate) == "true"
	}

	if iters := os.Getenv("FLOWGUARD_BREAKER_SYNC_MAX_ITERATIONS"); iters != "" {
		if n, err := strconv.Atoi(iters); err == nil {
			config.Breaker.SyncMaxIterations = n
		}
	}

	// Events configuration
	if sink := os.Getenv("FLOWGUARD_EVENT_SINK"); sink != "" {
		config.Events.Sink = sink
	}

	if brokers := os.Getenv("FLOWGUARD_KAFKA_BROKERS"); brokers != "" {
		config.Events.Kafka.Brokers = strings.Split(brokers, ",")
	}

	if topic := os.Getenv("FLOWGUARD_KAFKA_TOPIC"); topic != "" {
		config.Events.Kafka.Topic = topic
	}

	// Settlement configuration
	if delay := os.Getenv("FLOWGUARD_SETTLEMENT_MIN_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			config.Settlement.MinDelay = d
		}
	}

	// Security configuration
	if auth := os.Getenv("FLOWGUARD_ENABLE_AUTH"); auth != "" {
		config.Security.EnableAuth = strings.ToLower(auth) == "true"
	}

	if token := os.Getenv("FLOWGUARD_ADMIN_TOKEN"); token != "" {
		config.Security.AdminToken = token
	}

	if rl := os.Getenv("FLOWGUARD_RATE_LIMIT_ENABLED"); rl != "" {
		config.Security.RateLimit.Enabled = strings.ToLower(rl) == "true"
	}

	if rpm := os.Getenv("FLOWGUARD_RATE_LIMIT_RPM"); rpm != "" {
		if n, err := strconv.Atoi(rpm); err == nil {
			config.Security.RateLimit.RequestsPerMinute = n
		}
	}

	if burst := os.Getenv("FLOWGUARD_RATE_LIMIT_BURST"); burst != "" {
		if n, err := strconv.Atoi(burst); err == nil {
			config.Security.RateLimit.BurstSize = n
		}
	}

	// Logging configuration
	if level := os.Getenv("FLOWGUARD_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("FLOWGUARD_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("FLOWGUARD_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("FLOWGUARD_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("FLOWGUARD_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("FLOWGUARD_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	if port := os.Getenv("FLOWGUARD_METRICS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Metrics.Port = p
		}
	}

	// Observability configuration
	if name := os.Getenv("FLOWGUARD_SERVICE_NAME"); name != "" {
		config.Observability.ServiceName = name
	}

	if tracing := os.Getenv("FLOWGUARD_TRACING_ENABLED"); tracing != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(tracing) == "true"
	}

	if exporter := os.Getenv("FLOWGUARD_TRACE_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}

	if endpoint := os.Getenv("FLOWGUARD_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Get default config with some example values
	config := models.NewDefaultConfig()

	// Enable authentication for example
	config.Security.EnableAuth = true
	config.Security.AdminToken = "fg_your-admin-token-here"

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	// Example Kafka sink configuration
	config.Events.Kafka.Brokers = []string{"localhost:9092"}

	// Marshal to YAML
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// Write to file
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
