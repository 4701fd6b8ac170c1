package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/sudo-init-do/agriloop/internal/alerts"
	"github.com/sudo-init-do/agriloop/internal/config"
	"github.com/sudo-init-do/agriloop/internal/db"
	"github.com/sudo-init-do/agriloop/internal/events"
	"github.com/sudo-init-do/agriloop/internal/live"
	"github.com/sudo-init-do/agriloop/internal/marketplace"
	mware "github.com/sudo-init-do/agriloop/internal/middleware"
	"github.com/sudo-init-do/agriloop/internal/payments"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(cfg.Log)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store  marketplace.Store
		inbox  alerts.Inbox
		dedupe payments.Deduper
	)
	switch cfg.Server.Store {
	case "memory":
		store = marketplace.NewMemoryStore()
		inbox = alerts.NewMemoryInbox()
		dedupe = payments.NewMemoryDeduper(payments.DefaultEventTTL)
		logger.Warn("using in-memory store; data is lost on exit")
	default:
		pool, err := db.Connect(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		if err := db.EnsureSchema(ctx, pool); err != nil {
			logger.Error("database schema", "error", err)
			os.Exit(1)
		}
		store = db.NewStore(pool)
		inbox = alerts.NewPGInbox(pool)

		rdb := redis.NewClient(cfg.RedisOptions())
		defer rdb.Close()
		dedupe = payments.NewRedisDeduper(rdb, payments.DefaultEventTTL)
	}

	hub := live.NewHub(logger)
	notifiers := marketplace.MultiNotifier{alerts.InboxNotifier{Inbox: inbox}, hub}
	if cfg.Notify.Enabled && cfg.Server.Store != "memory" {
		client := asynq.NewClient(cfg.AsynqRedis())
		defer client.Close()
		notifiers = append(notifiers, alerts.NewTaskNotifier(client))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		pub := events.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.OrderTopic, logger)
		defer pub.Close()
		notifiers = append(notifiers, pub)
		logger.Info("publishing order events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.OrderTopic)
	}

	svc := marketplace.NewService(store, notifiers, marketplace.WithLogger(logger))
	e := newServer(cfg, svc, hub, inbox, dedupe, logger)

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port, "env", cfg.Server.Env, "store", cfg.Server.Store)
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}
	logger.Info("server stopped")
}

func newServer(cfg *config.Config, svc *marketplace.Service, hub *live.Hub, inbox alerts.Inbox, dedupe payments.Deduper, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = marketplace.NewRequestValidator()
	e.HTTPErrorHandler = marketplace.ErrorHandler(e)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency}
			if v.Error != nil {
				logger.Warn("request", append(attrs, "error", v.Error)...)
				return nil
			}
			logger.Info("request", attrs...)
			return nil
		},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/ready", func(c echo.Context) error {
		if p, ok := svc.Store().(pinger); ok {
			if err := p.Ping(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
			}
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	trade := marketplace.NewHandler(svc)
	trade.RegisterPublic(e)

	api := e.Group("")
	api.Use(mware.JWT(cfg.JWT.Secret))
	api.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(50)))

	admin := e.Group("/admin")
	admin.Use(mware.JWT(cfg.JWT.Secret))
	admin.Use(mware.AdminGuard)

	trade.Register(api, admin)
	payments.NewHandler(svc, dedupe, cfg.Payments, logger).Register(e, api)
	alerts.NewHandler(inbox).Register(api)
	live.NewHandler(hub, svc).Register(api)

	// api.Use claims every unmatched path behind JWT; unknown routes are 404.
	e.RouteNotFound("/", echo.NotFoundHandler)
	e.RouteNotFound("/*", echo.NotFoundHandler)
	return e
}
