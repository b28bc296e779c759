package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/LeventeLantos/delivery-tracker/internal/model"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Gateway   GatewayConfig
	Scheduler SchedulerConfig
	Delivery  DeliveryConfig
	Webhook   WebhookConfig
	LogLevel  slog.Level
}

type ServerConfig struct {
	Address string
}

// DatabaseConfig selects Postgres when PostgresURL is set and in-memory
// stores otherwise.
type DatabaseConfig struct {
	PostgresURL string
}

type RedisConfig struct {
	Enabled   bool
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

type GatewayConfig struct {
	URL     string
	Timeout time.Duration
}

type SchedulerConfig struct {
	Interval    time.Duration
	BatchSize   int
	Concurrency int
	AutoStart   bool
}

type DeliveryConfig struct {
	MaxRetries     int
	InitialDelay   time.Duration
	Multiplier     float64
	AttemptTimeout time.Duration
	StaleAfter     time.Duration
	ContentMax     int
}

type WebhookConfig struct {
	Secret string
}

// LoadAll reads the environment and reports every problem at once.
func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		collect(err)
		return v
	}
	secondsVar := func(key string, def int) time.Duration {
		return time.Duration(intVar(key, def)) * time.Second
	}

	gatewayURL, err := requireEnv("GATEWAY_URL")
	collect(err)

	multiplier, err := getEnvFloat("RETRY_MULTIPLIER", 2)
	collect(err)
	autoStart, err := getEnvBool("SCHED_AUTOSTART", true)
	collect(err)

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			PostgresURL: os.Getenv("POSTGRES_URL"),
		},
		Gateway: GatewayConfig{
			URL:     gatewayURL,
			Timeout: secondsVar("GATEWAY_TIMEOUT_SECONDS", 10),
		},
		Scheduler: SchedulerConfig{
			Interval:    secondsVar("SCHED_INTERVAL_SECONDS", 10),
			BatchSize:   intVar("SCHED_BATCH_SIZE", 100),
			Concurrency: intVar("SCHED_CONCURRENCY", 4),
			AutoStart:   autoStart,
		},
		Delivery: DeliveryConfig{
			MaxRetries:     intVar("RETRY_MAX", 3),
			InitialDelay:   secondsVar("RETRY_INITIAL_DELAY_SECONDS", 5),
			Multiplier:     multiplier,
			AttemptTimeout: secondsVar("ATTEMPT_TIMEOUT_SECONDS", 10),
			StaleAfter:     secondsVar("STALE_SENDING_SECONDS", 600),
			ContentMax:     intVar("CONTENT_MAX", model.MaxTextLength),
		},
		Webhook: WebhookConfig{
			Secret: os.Getenv("WEBHOOK_SECRET"),
		},
	}

	redisCfg, err := loadRedisConfig()
	collect(err)
	cfg.Redis = redisCfg

	if err := cfg.LogLevel.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		collect(fmt.Errorf("invalid LOG_LEVEL: %w", err))
	}

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	return RedisConfig{
		Enabled:   true,
		Address:   addr,
		Password:  os.Getenv("REDIS_PASSWORD"),
		DB:        db,
		KeyPrefix: getEnv("REDIS_KEY_PREFIX", "delivery"),
	}, err
}

func validate(cfg *Config) []error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	check(cfg.Gateway.Timeout > 0, "GATEWAY_TIMEOUT_SECONDS must be > 0")
	check(cfg.Scheduler.Interval > 0, "SCHED_INTERVAL_SECONDS must be > 0")
	check(cfg.Scheduler.BatchSize > 0, "SCHED_BATCH_SIZE must be > 0")
	check(cfg.Scheduler.Concurrency > 0, "SCHED_CONCURRENCY must be > 0")
	check(cfg.Delivery.MaxRetries >= 0, "RETRY_MAX must be >= 0")
	check(cfg.Delivery.InitialDelay > 0, "RETRY_INITIAL_DELAY_SECONDS must be > 0")
	check(cfg.Delivery.Multiplier >= 1, "RETRY_MULTIPLIER must be >= 1")
	check(cfg.Delivery.AttemptTimeout > 0, "ATTEMPT_TIMEOUT_SECONDS must be > 0")
	check(cfg.Delivery.StaleAfter >= 0, "STALE_SENDING_SECONDS must be >= 0")
	check(cfg.Delivery.ContentMax > 0 && cfg.Delivery.ContentMax <= model.MaxTextLength,
		fmt.Sprintf("CONTENT_MAX must be between 1 and %d", model.MaxTextLength))
	return errs
}

func requireEnv(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("invalid number for env %s: %q", key, v)
	}
	return f, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}
