// Package config provides configuration management and environment variable handling for the application
package config

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/docnum/utils"
	"github.com/hashicorp/go-multierror"
)

// defaultHistoryExportLimit applies only when HISTORY_EXPORT_LIMIT is unset; an explicit 0 disables the cap
const defaultHistoryExportLimit = 10000

// Sequence backends
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendPebble   = "pebble"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database      DatabaseConfig      `json:"database"`
	Server        ServerConfig        `json:"server"`
	Logging       LoggingConfig       `json:"logging"`
	Metrics       MetricsConfig       `json:"metrics"`
	Cache         CacheConfig         `json:"cache"`
	Sequence      SequenceConfig      `json:"sequence"`
	History       HistoryConfig       `json:"history"`
	Events        EventsConfig        `json:"events"`
	Locale        LocaleConfig        `json:"locale"`
	DocumentTypes DocumentTypesConfig `json:"document_types"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
	AutoMigrate     bool          `json:"auto_migrate"`
}

// DSN returns the key/value connection string understood by pgx and lib/pq
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// URL returns the connection string in URL form, as golang-migrate expects
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	AllowedOrigins  []string      `json:"allowed_origins"`
	GlobalRateLimit int           `json:"global_rate_limit"` // requests per minute per IP
	GenerateLimit   int           `json:"generate_limit"`    // generations per window per actor
	GenerateWindow  time.Duration `json:"generate_window"`
}

type LoggingConfig struct {
	Level           string `json:"level"`  // debug, info, warn, error
	Format          string `json:"format"` // json, text
	Output          string `json:"output"` // stdout, file, both
	FilePath        string `json:"file_path"`
	MaxSize         int    `json:"max_size"` // MB
	MaxBackups      int    `json:"max_backups"`
	MaxAge          int    `json:"max_age"` // days
	Compress        bool   `json:"compress"`
	EnableAccessLog bool   `json:"enable_access_log"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled         bool          `json:"enabled"`
	RedisURL        string        `json:"redis_url"`
	RedisDB         int           `json:"redis_db"`
	RedisPrefix     string        `json:"redis_prefix"`
	DocumentTypeTTL time.Duration `json:"document_type_ttl"`
}

type SequenceConfig struct {
	Backend         string        `json:"backend"` // postgres, redis, pebble
	MaxAttempts     int           `json:"max_attempts"`
	RetryBackoff    time.Duration `json:"retry_backoff"` // 0 retries immediately
	RetryBackoffMax time.Duration `json:"retry_backoff_max"`
	PebbleDir       string        `json:"pebble_dir"`
}

type HistoryConfig struct {
	DefaultPageSize int `json:"default_page_size"`
	MaxPageSize     int `json:"max_page_size"`
	ExportLimit     int `json:"export_limit"` // zero or negative disables the cap
}

type EventsConfig struct {
	Brokers []string `json:"brokers"`
	Topic   string   `json:"topic"`
}

// Enabled reports whether audit events are published to Kafka
func (c EventsConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type LocaleConfig struct {
	Timezone string `json:"timezone"`
	MinYear  int    `json:"min_year"`
	MaxYear  int    `json:"max_year"`
}

type DocumentTypesConfig struct {
	// Seed is a "CODE=Name;CODE=Name" list inserted at startup when missing
	Seed string `json:"seed"`
}

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	// Load environment variables from .env file
	if err := loadEnvFile(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "docnum"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 2*time.Minute),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1024*1024), // 1MB
			AllowedOrigins:  getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{}),
			GlobalRateLimit: getEnvInt("GLOBAL_RATE_LIMIT", 2000),
			GenerateLimit:   getEnvInt("GENERATE_RATE_LIMIT", 30),
			GenerateWindow:  getEnvDuration("GENERATE_RATE_WINDOW", 1*time.Minute),
		},
		Logging: LoggingConfig{
			Level:           getEnvString("LOG_LEVEL", "info"),
			Format:          getEnvString("LOG_FORMAT", "json"),
			Output:          getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:        getEnvString("LOG_FILE_PATH", "/var/log/docnum/app.log"),
			MaxSize:         getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:      getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:          getEnvInt("LOG_MAX_AGE", 30),
			Compress:        getEnvBool("LOG_COMPRESS", true),
			EnableAccessLog: getEnvBool("LOG_ENABLE_ACCESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:         getEnvBool("CACHE_ENABLED", true),
			RedisURL:        getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:         getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix:     getEnvString("CACHE_REDIS_PREFIX", "docnum"),
			DocumentTypeTTL: getEnvDuration("CACHE_DOCUMENT_TYPE_TTL", 5*time.Minute),
		},
		Sequence: SequenceConfig{
			Backend:         strings.ToLower(getEnvString("SEQUENCE_BACKEND", BackendPostgres)),
			MaxAttempts:     getEnvInt("SEQUENCE_MAX_ATTEMPTS", 5),
			RetryBackoff:    getEnvDuration("SEQUENCE_RETRY_BACKOFF", 0),
			RetryBackoffMax: getEnvDuration("SEQUENCE_RETRY_BACKOFF_MAX", 200*time.Millisecond),
			PebbleDir:       getEnvString("SEQUENCE_PEBBLE_DIR", "./data/sequences"),
		},
		History: HistoryConfig{
			DefaultPageSize: getEnvInt("HISTORY_DEFAULT_PAGE_SIZE", 50),
			MaxPageSize:     getEnvInt("HISTORY_MAX_PAGE_SIZE", 100),
			ExportLimit:     getEnvInt("HISTORY_EXPORT_LIMIT", defaultHistoryExportLimit),
		},
		Events: EventsConfig{
			Brokers: getEnvStringSlice("KAFKA_BROKERS", []string{}),
			Topic:   getEnvString("KAFKA_AUDIT_TOPIC", "docnum.audit"),
		},
		Locale: LocaleConfig{
			Timezone: getEnvString("APP_TIMEZONE", utils.DefaultTimezone),
			MinYear:  getEnvInt("MIN_DOCUMENT_YEAR", utils.MinDocumentYear),
			MaxYear:  getEnvInt("MAX_DOCUMENT_YEAR", utils.MaxDocumentYear),
		},
		DocumentTypes: DocumentTypesConfig{
			Seed: getEnvString("DOCUMENT_TYPES_SEED", ""),
		},
	}

	// Validate the loaded configuration
	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from path if it exists. Variables already
// present in the environment win.
func loadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		// Remove quotes if present
		if len(value) >= 2 && ((strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`)) ||
			(strings.HasPrefix(value, `'`) && strings.HasSuffix(value, `'`))) {
			value = value[1 : len(value)-1]
		}

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading %s: %w", path, err)
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration and reports every problem at once
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var result *multierror.Error

	// Document types and the audit log live in the database whatever the sequence backend
	if cfg.Database.Host == "" {
		result = multierror.Append(result, fmt.Errorf("DB_HOST is required"))
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("DB_PORT must be between 1 and 65535"))
	}
	if cfg.Database.Name == "" {
		result = multierror.Append(result, fmt.Errorf("DB_NAME is required"))
	}
	if cfg.Database.User == "" {
		result = multierror.Append(result, fmt.Errorf("DB_USER is required"))
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("SERVER_PORT must be between 1 and 65535"))
	}
	if cfg.Server.ReadTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("SERVER_READ_TIMEOUT must be positive"))
	}
	if cfg.Server.WriteTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("SERVER_WRITE_TIMEOUT must be positive"))
	}
	if cfg.Server.GenerateLimit <= 0 {
		result = multierror.Append(result, fmt.Errorf("GENERATE_RATE_LIMIT must be positive"))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if cfg.Logging.Level != "" && !slices.Contains(validLevels, cfg.Logging.Level) {
		result = multierror.Append(result, fmt.Errorf("LOG_LEVEL must be one of: %v", validLevels))
	}
	validOutputs := []string{"stdout", "file", "both"}
	if !slices.Contains(validOutputs, cfg.Logging.Output) {
		result = multierror.Append(result, fmt.Errorf("LOG_OUTPUT must be one of: %v", validOutputs))
	}
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath == "" {
		result = multierror.Append(result, fmt.Errorf("LOG_FILE_PATH is required when logging to a file"))
	}

	if cfg.Metrics.Enabled && (cfg.Metrics.Port <= 0 || cfg.Metrics.Port > 65535) {
		result = multierror.Append(result, fmt.Errorf("METRICS_PORT must be between 1 and 65535"))
	}

	switch cfg.Sequence.Backend {
	case BackendPostgres:
	case BackendRedis:
		if cfg.Cache.RedisURL == "" {
			result = multierror.Append(result, fmt.Errorf("CACHE_REDIS_URL is required for the redis sequence backend"))
		}
	case BackendPebble:
		if cfg.Sequence.PebbleDir == "" {
			result = multierror.Append(result, fmt.Errorf("SEQUENCE_PEBBLE_DIR is required for the pebble sequence backend"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("SEQUENCE_BACKEND must be one of: %s, %s, %s",
			BackendPostgres, BackendRedis, BackendPebble))
	}
	if cfg.Sequence.MaxAttempts <= 0 {
		result = multierror.Append(result, fmt.Errorf("SEQUENCE_MAX_ATTEMPTS must be positive"))
	}
	if cfg.Sequence.RetryBackoff < 0 {
		result = multierror.Append(result, fmt.Errorf("SEQUENCE_RETRY_BACKOFF must not be negative"))
	}

	if cfg.History.DefaultPageSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("HISTORY_DEFAULT_PAGE_SIZE must be positive"))
	}
	if cfg.History.MaxPageSize < cfg.History.DefaultPageSize {
		result = multierror.Append(result, fmt.Errorf("HISTORY_MAX_PAGE_SIZE must not be smaller than HISTORY_DEFAULT_PAGE_SIZE"))
	}

	if cfg.Events.Enabled() && cfg.Events.Topic == "" {
		result = multierror.Append(result, fmt.Errorf("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set"))
	}

	if cfg.Locale.MinYear > cfg.Locale.MaxYear {
		result = multierror.Append(result, fmt.Errorf("MIN_DOCUMENT_YEAR must not exceed MAX_DOCUMENT_YEAR"))
	}

	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		result = multierror.Append(result, fmt.Errorf("CACHE_REDIS_URL is required when cache is enabled"))
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	return nil
}
