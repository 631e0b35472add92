package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
)

const envPrefix = "ORCHESTRATOR_"

type Config struct {
	Primary  Primary        `koanf:"primary"`
	Server   ServerConfig   `koanf:"server"`
	Store    StoreConfig    `koanf:"store"`
	Database DatabaseConfig `koanf:"database"`
	Lock     LockConfig     `koanf:"lock"`
	Redis    RedisConfig    `koanf:"redis"`
	Gateway  GatewayConfig  `koanf:"gateway"`
	Retry    RetryConfig    `koanf:"retry"`
	Logger   LoggerConfig   `koanf:"logger"`
	Worker   WorkerConfig   `koanf:"worker"`
	Kafka    KafkaConfig    `koanf:"kafka"`
	Tracing  TracingConfig  `koanf:"tracing"`
	Payments PaymentsConfig `koanf:"payments"`
}

type Primary struct {
	Env string `koanf:"env" validate:"required"`
}

type ServerConfig struct {
	Port           string        `koanf:"port" validate:"required"`
	ReadTimeout    time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout   time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout    time.Duration `koanf:"idle_timeout" validate:"required"`
	RequestTimeout time.Duration `koanf:"request_timeout" validate:"required"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

// StoreConfig selects the PaymentStore backend.
type StoreConfig struct {
	Driver     string `koanf:"driver" validate:"required,oneof=postgres sqlite memory"`
	SQLitePath string `koanf:"sqlite_path"`
}

type DatabaseConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"required"`
	User            string        `koanf:"user" validate:"required"`
	Password        string        `koanf:"password"`
	Name            string        `koanf:"name" validate:"required"`
	SSLMode         string        `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time" validate:"required"`
}

// LockConfig selects how per-payment serialization is enforced.
type LockConfig struct {
	Backend string        `koanf:"backend" validate:"required,oneof=local redis"`
	TTL     time.Duration `koanf:"ttl" validate:"required"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type GatewayConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"required"`
	// Routes maps payment methods to adapter names.
	Routes   map[string]string `koanf:"routes"`
	Stripe   StripeConfig      `koanf:"stripe"`
	YooKassa YooKassaConfig    `koanf:"yookassa"`
	Sandbox  SandboxConfig     `koanf:"sandbox"`
}

type StripeConfig struct {
	Enabled       bool   `koanf:"enabled"`
	BaseURL       string `koanf:"base_url"`
	SecretKey     string `koanf:"secret_key"`
	WebhookSecret string `koanf:"webhook_secret"`
}

type YooKassaConfig struct {
	Enabled       bool   `koanf:"enabled"`
	BaseURL       string `koanf:"base_url"`
	ShopID        string `koanf:"shop_id"`
	SecretKey     string `koanf:"secret_key"`
	WebhookSecret string `koanf:"webhook_secret"`
	ReturnURL     string `koanf:"return_url"`
}

type SandboxConfig struct {
	Enabled       bool          `koanf:"enabled"`
	WebhookSecret string        `koanf:"webhook_secret"`
	Latency       time.Duration `koanf:"latency"`
}

type RetryConfig struct {
	BaseDelay  time.Duration `koanf:"base_delay"`
	MaxRetries int32         `koanf:"max_retries" validate:"min=1"`
}

type LoggerConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format" validate:"omitempty,oneof=json text"`
}

type WorkerConfig struct {
	Interval   time.Duration `koanf:"interval" validate:"required"`
	BatchSize  int           `koanf:"batch_size" validate:"required"`
	StaleAfter time.Duration `koanf:"stale_after" validate:"required"`

	// Concurrency bounds how many stale payments are re-driven at once.
	Concurrency int `koanf:"concurrency" validate:"min=0"`
}

type KafkaConfig struct {
	Enabled bool     `koanf:"enabled"`
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
	Endpoint    string `koanf:"endpoint"`
}

type PaymentsConfig struct {
	DefaultCurrency string `koanf:"default_currency" validate:"required,len=3"`
	PaymentURLBase  string `koanf:"payment_url_base" validate:"required"`
}

func defaults() map[string]any {
	return map[string]any{
		"primary.env":                 "development",
		"server.port":                 "8080",
		"server.read_timeout":         "15s",
		"server.write_timeout":        "45s",
		"server.idle_timeout":         "60s",
		"server.request_timeout":      "40s",
		"store.driver":                "memory",
		"store.sqlite_path":           "orchestrator.db",
		"database.host":               "localhost",
		"database.port":               5432,
		"database.user":               "postgres",
		"database.name":               "payments",
		"database.ssl_mode":           "disable",
		"database.max_open_conns":     10,
		"database.max_idle_conns":     2,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "10m",
		"lock.backend":                "local",
		"lock.ttl":                    "45s",
		"redis.addr":                  "localhost:6379",
		"gateway.timeout":             "30s",
		"gateway.stripe.base_url":     "https://api.stripe.com/v1",
		"gateway.yookassa.base_url":   "https://api.yookassa.ru/v3",
		"gateway.sandbox.enabled":     true,
		"retry.base_delay":            "500ms",
		"retry.max_retries":           3,
		"logger.level":                "info",
		"logger.format":               "text",
		"worker.interval":             "30s",
		"worker.batch_size":           50,
		"worker.stale_after":          "2m",
		"worker.concurrency":          4,
		"kafka.topic":                 "payments.lifecycle",
		"tracing.service_name":        "payment-orchestrator",
		"tracing.endpoint":            "http://localhost:14268/api/traces",
		"payments.default_currency":   "RUB",
		"payments.payment_url_base":   "https://pay.example.com",
	}
}

func LoadConfig() (*Config, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		logger.Error("failed to load defaults", "error", err)
		return nil, err
	}

	err := k.Load(env.ProviderWithValue(envPrefix, ".", func(s, v string) (string, any) {
		key := strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(s, envPrefix)),
			"__",
			".",
		)
		if isListKey(key) {
			return key, splitList(v)
		}
		return key, v
	}), nil)
	if err != nil {
		logger.Error("failed to load environment variables", "error", err)
		return nil, err
	}

	mainConfig := &Config{}

	err = k.Unmarshal("", mainConfig)
	if err != nil {
		logger.Error("could not unmarshal main config", "error", err)
		return nil, err
	}

	validate := validator.New()

	err = validate.Struct(mainConfig)
	if err != nil {
		logger.Error("config validation failed", "error", err)
		return nil, err
	}

	if mainConfig.Lock.Backend == "redis" && mainConfig.Redis.Addr == "" {
		return nil, fmt.Errorf("redis.addr is required when lock.backend is redis")
	}
	if mainConfig.Kafka.Enabled && len(mainConfig.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}

	return mainConfig, nil
}

func isListKey(key string) bool {
	return key == "kafka.brokers" || key == "server.allowed_origins"
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewLogger builds the process logger from the configured level and format.
func (c LoggerConfig) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
