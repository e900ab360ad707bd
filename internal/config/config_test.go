package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "http://localhost:5000", cfg.Upstream.BaseURL)
	assert.Equal(t, "Electricity_Consumption_kWh", cfg.Upstream.YColumn)
	assert.Equal(t, 30, cfg.Billing.BillingDays)
	assert.Empty(t, cfg.Billing.DefaultTariff)
	assert.Empty(t, cfg.WorkerTariff())
	assert.Equal(t, 30*time.Second, cfg.Upstream.Timeout)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Empty(t, cfg.Worker.Sources)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("EBILL_SERVER_PORT", "9090")
	t.Setenv("EBILL_DATABASE_DRIVER", "sqlite")
	t.Setenv("EBILL_DATABASE_DSN", "bills.db")
	t.Setenv("EBILL_WORKER_SOURCES", "a.csv, b.csv")
	t.Setenv("EBILL_WORKER_TARIFF", "flat-default")
	t.Setenv("EBILL_UPSTREAM_TIMEOUT", "5s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "bills.db", cfg.Database.DSN)
	assert.Equal(t, []string{"a.csv", "b.csv"}, cfg.Worker.Sources)
	assert.Equal(t, "flat-default", cfg.WorkerTariff())
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout)
}

func TestLoad_WorkerSourcesNeedTariff(t *testing.T) {
	chdirTemp(t)
	t.Setenv("EBILL_WORKER_SOURCES", "a.csv")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker.tariff")

	t.Setenv("EBILL_BILLING_DEFAULT_TARIFF", "msedcl-residential-2023")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "msedcl-residential-2023", cfg.WorkerTariff())
}

func TestLoad_File(t *testing.T) {
	dir := chdirTemp(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8123
billing:
  default_tariff: tou-default
  billing_days: 31
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8123, cfg.Server.Port)
	assert.Equal(t, "tou-default", cfg.Billing.DefaultTariff)
	assert.Equal(t, 31, cfg.Billing.BillingDays)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "ebill.bills", cfg.Kafka.Topic)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"no upstream", func(c *Config) { c.Upstream.BaseURL = "" }},
		{"zero billing days", func(c *Config) { c.Billing.BillingDays = 0 }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }},
		{"negative rate limit", func(c *Config) { c.RateLimit.RequestsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := *base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLoad_SQLiteDefaultDSN(t *testing.T) {
	chdirTemp(t)
	t.Setenv("EBILL_DATABASE_DRIVER", "sqlite")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSQLiteDSN, cfg.Database.DSN)
}
