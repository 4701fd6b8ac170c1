// Package config loads service settings from the environment.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/sudo-init-do/agriloop/internal/alerts"
	"github.com/sudo-init-do/agriloop/internal/db"
	"github.com/sudo-init-do/agriloop/internal/payments"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Payments payments.Config
	Notify   NotifyConfig
	Log      LogConfig
	JWT      JWTConfig
}

type ServerConfig struct {
	Port string
	Env  string
	// Store is "postgres" or "memory".
	Store string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type KafkaConfig struct {
	Brokers    []string
	OrderTopic string
}

type NotifyConfig struct {
	Enabled           bool
	WorkerConcurrency int
	Mail              alerts.MailConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type JWTConfig struct {
	Secret string
}

// Load reads .env when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return &Config{
		Server: ServerConfig{
			Port:  getEnv("PORT", "8080"),
			Env:   getEnv("ENV", "development"),
			Store: getEnv("STORE", "postgres"),
		},
		Database: DatabaseConfig{
			URL: databaseURL(),
		},
		Redis: RedisConfig{
			Addr:     redisAddr(),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(getEnv("KAFKA_BROKERS", "")),
			OrderTopic: getEnv("KAFKA_ORDER_TOPIC", "order-events"),
		},
		Payments: payments.Config{
			StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			StripeTolerance:     time.Duration(getEnvInt("STRIPE_WEBHOOK_TOLERANCE_SECONDS", 300)) * time.Second,
			RazorpayKeySecret:   getEnv("RAZORPAY_KEY_SECRET", ""),
		},
		Notify: NotifyConfig{
			Enabled:           getEnvBool("NOTIFY_ENABLED", true),
			WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 5),
			Mail: alerts.MailConfig{
				Provider: getEnv("MAIL_PROVIDER", ""),
				SMTP: alerts.SMTPConfig{
					Host:     getEnv("SMTP_HOST", ""),
					Port:     getEnv("SMTP_PORT", ""),
					Username: getEnv("SMTP_USERNAME", ""),
					Password: getEnv("SMTP_PASSWORD", ""),
					From:     getEnv("SMTP_FROM", ""),
				},
				Plunk: alerts.PlunkConfig{
					APIKey: getEnv("PLUNK_API_KEY", ""),
					From:   getEnv("PLUNK_FROM", ""),
					APIURL: getEnv("PLUNK_API_URL", ""),
				},
				ReplyTo: getEnv("MAIL_REPLY_TO", ""),
			},
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
	}, nil
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Server.Store {
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL or DB_HOST/DB_NAME is required for STORE=postgres"))
		}
	case "memory":
	default:
		errs = append(errs, errors.New("STORE must be postgres or memory"))
	}
	return errors.Join(errs...)
}

// RedisOptions is the go-redis client configuration.
func (c *Config) RedisOptions() *redis.Options {
	return &redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

// AsynqRedis is the asynq connection to the same Redis.
func (c *Config) AsynqRedis() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	}
}

func databaseURL() string {
	if u := os.Getenv("DATABASE_URL"); u != "" {
		return u
	}
	host, name := os.Getenv("DB_HOST"), os.Getenv("DB_NAME")
	if host == "" || name == "" {
		return ""
	}
	return db.DSN(os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD"), host, getEnv("DB_PORT", "5432"), name)
}

// redisAddr prefers REDIS_ADDR, then REDIS_HOST/REDIS_PORT, then the
// docker-compose service name, or localhost when RUN_LOCAL=true.
func redisAddr() string {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		return addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		return host + ":" + getEnv("REDIS_PORT", "6379")
	}
	if getEnvBool("RUN_LOCAL", false) {
		return "127.0.0.1:6379"
	}
	return "redis:6379"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// NewLogger builds the process logger and installs it as the slog default.
func NewLogger(c LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if strings.EqualFold(c.Format, "json") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}
