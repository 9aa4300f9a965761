package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "STOREFRONT"

type Config struct {
	Env      string         `mapstructure:"env"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Port            string        `mapstructure:"port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

type GRPCConfig struct {
	Port string `mapstructure:"port"`
}

// StorageConfig selects where orders and carts live: "postgres" (with mongo
// and redis for carts) or "memory" for local runs.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"dbname"`
	SSLMode        string `mapstructure:"sslmode"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxOpenConns   int    `mapstructure:"max_open_conns"`
	MaxIdleConns   int    `mapstructure:"max_idle_conns"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CartTTL  time.Duration `mapstructure:"cart_ttl"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type OutboxConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Batch    int           `mapstructure:"batch"`
}

type SweeperConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	OrphanAfter time.Duration `mapstructure:"orphan_after"`
}

type PaymentConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	ServerKey        string        `mapstructure:"server_key"`
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxFailures      uint32        `mapstructure:"max_failures"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	HalfOpenRequests uint32        `mapstructure:"half_open_requests"`
}

type CheckoutConfig struct {
	Currency string `mapstructure:"currency"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "prod")
	v.SetDefault("log.level", "info")

	v.SetDefault("http.port", "8080")
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_body_bytes", 1<<20)
	v.SetDefault("grpc.port", "50060")

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "storefront")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.migrations_path", "./internal/repository/migrations")
	v.SetDefault("postgres.max_open_conns", 50)
	v.SetDefault("postgres.max_idle_conns", 10)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "storefront")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cart_ttl", 15*time.Minute)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "storefront.orders")
	v.SetDefault("outbox.interval", time.Second)
	v.SetDefault("outbox.batch", 100)
	v.SetDefault("sweeper.interval", time.Minute)
	v.SetDefault("sweeper.orphan_after", 15*time.Minute)

	v.SetDefault("payment.base_url", "https://app.sandbox.midtrans.com")
	v.SetDefault("payment.server_key", "")
	v.SetDefault("payment.timeout", 10*time.Second)
	v.SetDefault("payment.max_failures", 5)
	v.SetDefault("payment.open_timeout", 30*time.Second)
	v.SetDefault("payment.half_open_requests", 1)

	v.SetDefault("checkout.currency", "IDR")
}

// Load reads defaults, then the optional file at path, then STOREFRONT_*
// environment variables (payment.server_key is STOREFRONT_PAYMENT_SERVER_KEY).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Checkout.Currency = strings.ToUpper(cfg.Checkout.Currency)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be postgres or memory, got %q", c.Storage.Driver))
	}
	if c.Payment.ServerKey == "" {
		errs = append(errs, errors.New("payment.server_key is required"))
	}
	if c.Payment.Timeout <= 0 {
		errs = append(errs, errors.New("payment.timeout must be positive"))
	}
	if c.Sweeper.OrphanAfter <= c.Payment.Timeout {
		errs = append(errs, fmt.Errorf("sweeper.orphan_after (%s) must exceed payment.timeout (%s)", c.Sweeper.OrphanAfter, c.Payment.Timeout))
	}
	if len(c.Checkout.Currency) != 3 {
		errs = append(errs, fmt.Errorf("checkout.currency must be an ISO 4217 code, got %q", c.Checkout.Currency))
	}
	return errors.Join(errs...)
}

// splitList accepts both a YAML list and a single comma separated env value.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
