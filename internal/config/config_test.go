package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("STOREFRONT_PAYMENT_SERVER_KEY", "SB-Mid-server-abc")
	t.Setenv("STOREFRONT_HTTP_PORT", "9090")
	t.Setenv("STOREFRONT_KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("STOREFRONT_PAYMENT_TIMEOUT", "3s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.HTTP.Port)
	assert.Equal(t, "SB-Mid-server-abc", cfg.Payment.ServerKey)
	assert.Equal(t, 3*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 15*time.Minute, cfg.Sweeper.OrphanAfter)
	assert.Equal(t, "IDR", cfg.Checkout.Currency)
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: memory
payment:
  server_key: file-key
checkout:
  currency: usd
kafka:
  brokers: ["localhost:9092"]
`), 0o600))
	t.Setenv("STOREFRONT_PAYMENT_SERVER_KEY", "env-key")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "env-key", cfg.Payment.ServerKey)
	assert.Equal(t, "USD", cfg.Checkout.Currency)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("STOREFRONT_STORAGE_DRIVER", "sqlite")
	t.Setenv("STOREFRONT_SWEEPER_ORPHAN_AFTER", "5s")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage.driver")
	assert.Contains(t, err.Error(), "payment.server_key")
	assert.Contains(t, err.Error(), "sweeper.orphan_after")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
