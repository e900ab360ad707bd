package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/bher20/ebillmanager/internal/logging"
)

// EnvPrefix namespaces every environment override, e.g. EBILL_SERVER_PORT.
const EnvPrefix = "EBILL"

// DefaultSQLiteDSN is the database file used when sqlite has no DSN.
const DefaultSQLiteDSN = "ebillmanager.db"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   logging.Config  `mapstructure:"logging"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects the storage backend: memory, sqlite, postgres or
// postgrespool.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// UpstreamConfig points at the analytics backend and bill document service.
type UpstreamConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	XColumn string        `mapstructure:"x_column"`
	YColumn string        `mapstructure:"y_column"`
}

type BillingConfig struct {
	DefaultTariff string `mapstructure:"default_tariff"`
	PeriodLabel   string `mapstructure:"period_label"`
	BillingDays   int    `mapstructure:"billing_days"`
}

// WorkerConfig drives the scheduled billing run. Interval is either a number
// of seconds or a standard cron expression.
type WorkerConfig struct {
	Interval string   `mapstructure:"interval"`
	Sources  []string `mapstructure:"sources"`
	Tariff   string   `mapstructure:"tariff"`
	LockKey  int64    `mapstructure:"lock_key"`
}

type AlertingConfig struct {
	WebhookURL  string        `mapstructure:"webhook_url"`
	WebhookType string        `mapstructure:"webhook_type"`
	MinFailures int           `mapstructure:"min_failures"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	Topic        string   `mapstructure:"topic"`
	RequiredAcks string   `mapstructure:"required_acks"`
	Compression  string   `mapstructure:"compression"`
}

type AuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// RateLimitConfig bounds /api/v1/calculate. Zero disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.development", false)

	v.SetDefault("upstream.base_url", "http://localhost:5000")
	v.SetDefault("upstream.timeout", 30*time.Second)
	v.SetDefault("upstream.x_column", "Date")
	v.SetDefault("upstream.y_column", "Electricity_Consumption_kWh")

	v.SetDefault("billing.default_tariff", "")
	v.SetDefault("billing.period_label", "Current Period")
	v.SetDefault("billing.billing_days", 30)

	v.SetDefault("worker.interval", "3600")
	v.SetDefault("worker.sources", []string{})
	v.SetDefault("worker.tariff", "")
	v.SetDefault("worker.lock_key", 4201)

	v.SetDefault("alerting.webhook_url", "")
	v.SetDefault("alerting.webhook_type", "")
	v.SetDefault("alerting.min_failures", 1)
	v.SetDefault("alerting.timeout", 10*time.Second)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "ebill.bills")
	v.SetDefault("kafka.required_acks", "leader")
	v.SetDefault("kafka.compression", "snappy")

	v.SetDefault("auth.enabled", false)

	v.SetDefault("ratelimit.requests_per_second", 20.0)
	v.SetDefault("ratelimit.burst", 40)
}

// Load reads defaults, then the optional config file, then EBILL_*
// environment variables. An explicit path must exist; without one the file is
// looked up as ebillmanager.yaml in the working directory and /etc/ebillmanager.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ebillmanager")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ebillmanager")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	cfg.Worker.Sources = splitList(cfg.Worker.Sources)
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN == "" {
		cfg.Database.DSN = DefaultSQLiteDSN
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList flattens comma separated entries, which is how lists arrive from
// the environment.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be in 1..65535 (got %d)", c.Server.Port)
	}
	switch c.Database.Driver {
	case "memory", "sqlite", "postgres", "postgrespool":
	default:
		return fmt.Errorf("config: unsupported database.driver %q", c.Database.Driver)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("config: logging.level: %w", err)
	}
	if c.Upstream.BaseURL == "" {
		return errors.New("config: upstream.base_url must be set")
	}
	if c.Upstream.Timeout <= 0 {
		return errors.New("config: upstream.timeout must be positive")
	}
	if c.Billing.BillingDays <= 0 {
		return fmt.Errorf("config: billing.billing_days must be positive (got %d)", c.Billing.BillingDays)
	}
	if len(c.Worker.Sources) > 0 && c.WorkerTariff() == "" {
		return errors.New("config: worker.sources need worker.tariff or billing.default_tariff")
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("config: kafka.brokers must be specified when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			return errors.New("config: kafka.topic must be specified when kafka is enabled")
		}
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("config: ratelimit values must not be negative")
	}
	return nil
}

// WorkerTariff is the preset the scheduled run bills with.
func (c *Config) WorkerTariff() string {
	if c.Worker.Tariff != "" {
		return c.Worker.Tariff
	}
	return c.Billing.DefaultTariff
}
