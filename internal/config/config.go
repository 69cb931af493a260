package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Ledger   LedgerConfig
	Redis    RedisConfig
	Webhook  WebhookConfig
	Auth     AuthConfig
	Messages MessageConfig
	Refunds  RefundConfig
}

type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level slog.Level
}

// LedgerConfig selects where credits live: a Postgres database we own, or
// the hosted backend reached over its RPC gateway. Exactly one is set.
type LedgerConfig struct {
	PostgresURL string
	BaaSURL     string
	BaaSAPIKey  string
	Timeout     time.Duration
}

func (c LedgerConfig) UsesBaaS() bool { return c.BaaSURL != "" }

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type WebhookConfig struct {
	URL     string
	Timeout time.Duration
}

type AuthConfig struct {
	JWTSecret    string
	SignOutDelay time.Duration
	// IdleTimeout signs out sessions left unused this long; zero disables it.
	IdleTimeout  time.Duration
}

type MessageConfig struct {
	TextMax     int
	AliasMax    int
	InflightTTL time.Duration
}

type RefundConfig struct {
	Interval       time.Duration
	BatchSize      int
	MaxAttempts    int
	InlineAttempts int
	InlineBase     time.Duration
}

func LoadAll() (*Config, error) {
	var errs []error

	str := func(key string) string {
		v, err := requireEnv(key)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	num := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	seconds := func(key string, def int) time.Duration {
		return time.Duration(num(key, def)) * time.Second
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:         getEnv("SERVER_ADDRESS", ":8080"),
			ShutdownTimeout: seconds("SHUTDOWN_TIMEOUT_SECONDS", 15),
		},
		Webhook: WebhookConfig{
			URL:     str("WEBHOOK_URL"),
			Timeout: seconds("WEBHOOK_TIMEOUT_SECONDS", 30),
		},
		Auth: AuthConfig{
			JWTSecret:    str("JWT_SECRET"),
			SignOutDelay: time.Duration(num("SIGNOUT_DELAY_MS", 2000)) * time.Millisecond,
			IdleTimeout:  time.Duration(num("SESSION_IDLE_MINUTES", 60)) * time.Minute,
		},
		Messages: MessageConfig{
			TextMax:     num("MESSAGE_MAX", 500),
			AliasMax:    num("ALIAS_MAX", 30),
			InflightTTL: seconds("INFLIGHT_TTL_SECONDS", 120),
		},
		Refunds: RefundConfig{
			Interval:       seconds("REFUND_INTERVAL_SECONDS", 30),
			BatchSize:      num("REFUND_BATCH_SIZE", 20),
			MaxAttempts:    num("REFUND_MAX_ATTEMPTS", 12),
			InlineAttempts: num("REFUND_INLINE_ATTEMPTS", 2),
			InlineBase:     time.Duration(num("REFUND_INLINE_BASE_MS", 200)) * time.Millisecond,
		},
	}

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Log.Level = level

	ledger, err := loadLedgerConfig()
	if err != nil {
		errs = append(errs, err)
	}
	ledger.Timeout = seconds("LEDGER_TIMEOUT_SECONDS", 10)
	cfg.Ledger = ledger

	redisCfg, err := loadRedisConfig()
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Redis = redisCfg

	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadLedgerConfig() (LedgerConfig, error) {
	c := LedgerConfig{
		PostgresURL: os.Getenv("POSTGRES_URL"),
		BaaSURL:     os.Getenv("BAAS_URL"),
		BaaSAPIKey:  os.Getenv("BAAS_API_KEY"),
	}

	switch {
	case c.PostgresURL == "" && c.BaaSURL == "":
		return c, errors.New("missing required env var: POSTGRES_URL or BAAS_URL")
	case c.PostgresURL != "" && c.BaaSURL != "":
		return c, errors.New("POSTGRES_URL and BAAS_URL are mutually exclusive")
	case c.BaaSURL != "" && c.BaaSAPIKey == "":
		return c, errors.New("missing required env var: BAAS_API_KEY")
	}
	return c, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err := getEnvInt("REDIS_DB", 0)
	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	}, err
}

func validate(cfg *Config) error {
	var errs []error
	if cfg.Messages.TextMax <= 0 {
		errs = append(errs, errors.New("MESSAGE_MAX must be > 0"))
	}
	if cfg.Messages.AliasMax <= 0 {
		errs = append(errs, errors.New("ALIAS_MAX must be > 0"))
	}
	if cfg.Messages.InflightTTL <= 0 {
		errs = append(errs, errors.New("INFLIGHT_TTL_SECONDS must be > 0"))
	}
	if cfg.Webhook.Timeout <= 0 {
		errs = append(errs, errors.New("WEBHOOK_TIMEOUT_SECONDS must be > 0"))
	}
	// The in-flight token has to outlive the slowest webhook call.
	if cfg.Messages.InflightTTL > 0 && cfg.Webhook.Timeout > 0 && cfg.Messages.InflightTTL <= cfg.Webhook.Timeout {
		errs = append(errs, errors.New("INFLIGHT_TTL_SECONDS must exceed WEBHOOK_TIMEOUT_SECONDS"))
	}
	if cfg.Refunds.Interval <= 0 {
		errs = append(errs, errors.New("REFUND_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Refunds.BatchSize <= 0 {
		errs = append(errs, errors.New("REFUND_BATCH_SIZE must be > 0"))
	}
	if cfg.Refunds.MaxAttempts <= 0 {
		errs = append(errs, errors.New("REFUND_MAX_ATTEMPTS must be > 0"))
	}
	if cfg.Refunds.InlineAttempts < 0 {
		errs = append(errs, errors.New("REFUND_INLINE_ATTEMPTS must be >= 0"))
	}
	if cfg.Refunds.InlineBase <= 0 {
		errs = append(errs, errors.New("REFUND_INLINE_BASE_MS must be > 0"))
	}
	if cfg.Auth.SignOutDelay < 0 {
		errs = append(errs, errors.New("SIGNOUT_DELAY_MS must be >= 0"))
	}
	if cfg.Auth.IdleTimeout < 0 {
		errs = append(errs, errors.New("SESSION_IDLE_MINUTES must be >= 0"))
	}
	return joinErrors(errs)
}

func parseLevel(raw string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL: %s", raw)
	}
	return l, nil
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
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
