package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProductionConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.Sequence.Backend)
	assert.Equal(t, 5, cfg.Sequence.MaxAttempts)
	assert.Zero(t, cfg.Sequence.RetryBackoff)
	assert.Equal(t, 50, cfg.History.DefaultPageSize)
	assert.Equal(t, 100, cfg.History.MaxPageSize)
	assert.Equal(t, 10000, cfg.History.ExportLimit)
	assert.Equal(t, "America/Sao_Paulo", cfg.Locale.Timezone)
	assert.Equal(t, 2020, cfg.Locale.MinYear)
	assert.Equal(t, 2100, cfg.Locale.MaxYear)
	assert.Equal(t, 30, cfg.Server.GenerateLimit)
	assert.Equal(t, time.Minute, cfg.Server.GenerateWindow)
	assert.False(t, cfg.Events.Enabled())
}

func TestLoadProductionConfig_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SEQUENCE_BACKEND", "Pebble")
	t.Setenv("SEQUENCE_PEBBLE_DIR", "/tmp/seq")
	t.Setenv("SEQUENCE_MAX_ATTEMPTS", "8")
	t.Setenv("SEQUENCE_RETRY_BACKOFF", "5ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("HISTORY_EXPORT_LIMIT", "-1")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, BackendPebble, cfg.Sequence.Backend)
	assert.Equal(t, "/tmp/seq", cfg.Sequence.PebbleDir)
	assert.Equal(t, 8, cfg.Sequence.MaxAttempts)
	assert.Equal(t, 5*time.Millisecond, cfg.Sequence.RetryBackoff)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.Brokers)
	assert.True(t, cfg.Events.Enabled())
	assert.Equal(t, -1, cfg.History.ExportLimit)
}

func TestLoadProductionConfig_ZeroExportLimitIsKept(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("HISTORY_EXPORT_LIMIT", "0")

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)
	assert.Zero(t, cfg.History.ExportLimit)

	t.Setenv("HISTORY_EXPORT_LIMIT", "")
	cfg, err = LoadProductionConfig()
	require.NoError(t, err)
	assert.Equal(t, defaultHistoryExportLimit, cfg.History.ExportLimit)
}

func TestLoadProductionConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	content := "# comment\nDOCUMENT_TYPES_SEED=\"OF=Oficio;MEM=Memorando\"\nSERVER_PORT='9000'\nnot a pair\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("DOCUMENT_TYPES_SEED")
		os.Unsetenv("SERVER_PORT")
	})

	cfg, err := LoadProductionConfig()
	require.NoError(t, err)

	assert.Equal(t, "OF=Oficio;MEM=Memorando", cfg.DocumentTypes.Seed)
	assert.Equal(t, 9000, cfg.Server.Port)
}

func TestValidateProductionConfig_ReportsEveryProblem(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SEQUENCE_BACKEND", "cassandra")
	t.Setenv("SEQUENCE_MAX_ATTEMPTS", "0")
	t.Setenv("LOG_LEVEL", "verbose")
	t.Setenv("MIN_DOCUMENT_YEAR", "2200")

	_, err := LoadProductionConfig()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "SEQUENCE_BACKEND must be one of")
	assert.Contains(t, msg, "SEQUENCE_MAX_ATTEMPTS must be positive")
	assert.Contains(t, msg, "LOG_LEVEL must be one of")
	assert.Contains(t, msg, "MIN_DOCUMENT_YEAR must not exceed MAX_DOCUMENT_YEAR")
}

func TestValidateProductionConfig_KafkaTopicRequired(t *testing.T) {
	cfg := validConfig()
	cfg.Events.Brokers = []string{"localhost:9092"}
	cfg.Events.Topic = ""

	err := ValidateProductionConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_AUDIT_TOPIC")

	cfg.Events.Topic = "audit"
	assert.NoError(t, ValidateProductionConfig(cfg))
}

func TestDatabaseConfig_ConnectionStrings(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, Name: "docnum", User: "app", Password: "pw", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5433 user=app password=pw dbname=docnum sslmode=disable", db.DSN())
	assert.Equal(t, "postgres://app:pw@db:5433/docnum?sslmode=disable", db.URL())
}

func validConfig() *ProductionConfig {
	return &ProductionConfig{
		Database: DatabaseConfig{Host: "localhost", Port: 5432, Name: "docnum", User: "postgres"},
		Server: ServerConfig{
			Port:          8080,
			ReadTimeout:   time.Second,
			WriteTimeout:  time.Second,
			GenerateLimit: 30,
		},
		Logging:  LoggingConfig{Level: "info", Output: "stdout"},
		Sequence: SequenceConfig{Backend: BackendPostgres, MaxAttempts: 5},
		History:  HistoryConfig{DefaultPageSize: 50, MaxPageSize: 100},
		Locale:   LocaleConfig{MinYear: 2020, MaxYear: 2100},
	}
}
