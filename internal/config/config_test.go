package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	ic := cfg.InventoryConfig()
	assert.Equal(t, 10*time.Second, ic.OperationDeadline)
	assert.Equal(t, 3, ic.Retry.MaxRetries)
	assert.Equal(t, "purchase_order_number", ic.SequenceKey)
	assert.Equal(t, 5*time.Second, cfg.LockWait())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LOCK_WAIT_MS", "250")
	t.Setenv("OP_DEADLINE_MS", "1500")
	t.Setenv("RETRY_MAX", "1")
	t.Setenv("PO_SEQUENCE_PERSIST_KEY", "po_seq")
	t.Setenv("PO_DEFAULT_RECEIVING_WAREHOUSE_ID", "7")
	t.Setenv("ADVISORY_URL", "http://localhost:8000")
	t.Setenv("ADVISORY_TIMEOUT", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.LockWait())
	assert.Equal(t, "http://localhost:8000", cfg.Advisory.URL)
	assert.Equal(t, 2*time.Second, cfg.Advisory.Timeout)

	ic := cfg.InventoryConfig()
	assert.Equal(t, 1500*time.Millisecond, ic.OperationDeadline)
	assert.Equal(t, 1, ic.Retry.MaxRetries)
	assert.Equal(t, "po_seq", ic.SequenceKey)
	assert.Equal(t, int64(7), ic.DefaultReceivingWarehouseID)
}

func TestLoadYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
db:
  url: postgres://localhost:5432/warehouse?sslmode=disable
lock:
  wait_ms: 1000
advisory:
  url: http://advisor:8000
  sweep_interval: 1h
logging:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RETRY_MAX", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Second, cfg.LockWait())
	assert.Equal(t, time.Hour, cfg.Advisory.SweepInterval)
	assert.Equal(t, 5, cfg.Retry.Max)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.API.Port = 70000 }},
		{"lock wait", func(c *Config) { c.Lock.WaitMS = 0 }},
		{"negative retry", func(c *Config) { c.Retry.Max = -1 }},
		{"sequence key", func(c *Config) { c.PO.Sequence.PersistKey = "" }},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"database host", func(c *Config) { c.Database.Host = "" }},
		{"advisory url", func(c *Config) { c.Advisory.URL = "not a url" }},
		{"database url", func(c *Config) { c.Database.URL = "postgres://db:notaport/warehouse" }},
		{"database key value", func(c *Config) { c.Database.URL = "host=db warehouse" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := Default()
	cfg.Database.Password = "secret"
	assert.Equal(t, "host=localhost port=5432 user=inventory password=secret dbname=inventory_db sslmode=disable", cfg.DSN())

	cfg.Database.URL = "postgres://db:5432/warehouse?sslmode=disable"
	assert.Equal(t, "postgres://inventory:secret@db:5432/warehouse?sslmode=disable", cfg.DSN())

	cfg.Database.URL = "host=db port=5432 dbname=warehouse sslmode=disable"
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "host=db port=5432 dbname=warehouse sslmode=disable user=inventory password=secret", cfg.DSN())
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LoggingConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, logger)

	_, err = NewLogger(LoggingConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)
}
