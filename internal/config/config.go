package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/SteelMorgan/logstream/internal/charset"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML file.
// Values from the file are applied first; environment variables override them.
const ConfigFileEnv = "LOGSTREAM_CONFIG"

// Config holds all configuration for the engine
type Config struct {
	// Tailing and loading
	PollInterval    time.Duration `yaml:"poll_interval"`
	BatchSize       int           `yaml:"batch_size"`
	HashPrefixBytes int           `yaml:"hash_prefix_bytes"`
	LegacyEncoding  string        `yaml:"legacy_encoding"`
	WatchEvents     bool          `yaml:"watch_events"` // Wake the tailer on fsnotify writes

	// Archive of emitted batches, disabled when empty
	ArchivePath string `yaml:"archive_path"`

	// Observability
	LogLevel        string `yaml:"log_level"`
	LogFile         string `yaml:"log_file"`
	TracingEnabled  bool   `yaml:"tracing_enabled"`
	TracingProtocol string `yaml:"tracing_protocol"`
	TracingEndpoint string `yaml:"tracing_endpoint"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		PollInterval:    200 * time.Millisecond,
		BatchSize:       568,
		HashPrefixBytes: 1024,
		LegacyEncoding:  charset.DefaultLegacyEncoding,
		LogLevel:        "info",
		TracingProtocol: "grpc",
	}
}

// Load loads configuration from the optional YAML file and environment variables
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", cfg.PollInterval)
	cfg.BatchSize = getEnvInt("BATCH_SIZE", cfg.BatchSize)
	cfg.HashPrefixBytes = getEnvInt("HASH_PREFIX_BYTES", cfg.HashPrefixBytes)
	cfg.LegacyEncoding = getEnv("LEGACY_ENCODING", cfg.LegacyEncoding)
	cfg.WatchEvents = getEnvBool("WATCH_EVENTS", cfg.WatchEvents)
	cfg.ArchivePath = getEnv("ARCHIVE_PATH", cfg.ArchivePath)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFile = getEnv("LOG_FILE", cfg.LogFile)
	cfg.TracingEnabled = getEnvBool("TRACING_ENABLED", cfg.TracingEnabled)
	cfg.TracingProtocol = getEnv("TRACING_PROTOCOL", cfg.TracingProtocol)
	cfg.TracingEndpoint = getEnv("TRACING_ENDPOINT", cfg.TracingEndpoint)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be at least 1")
	}
	if c.HashPrefixBytes < 1 {
		return fmt.Errorf("HASH_PREFIX_BYTES must be at least 1")
	}
	if _, err := charset.NewNormalizer(c.LegacyEncoding); err != nil {
		return fmt.Errorf("LEGACY_ENCODING: %w", err)
	}
	switch c.TracingProtocol {
	case "grpc", "http":
	default:
		return fmt.Errorf("TRACING_PROTOCOL must be 'grpc' or 'http', got %q", c.TracingProtocol)
	}

	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("250ms") or plain milliseconds ("250")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}
