package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tokenledger/internal/chain"
	"github.com/congo-pay/tokenledger/internal/config"
	"github.com/congo-pay/tokenledger/internal/ledger"
	"github.com/congo-pay/tokenledger/internal/metrics"
	"github.com/congo-pay/tokenledger/internal/middleware"
	"github.com/congo-pay/tokenledger/internal/notification"
	"github.com/congo-pay/tokenledger/internal/token"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg        config.Config
	DB         *pgxpool.Pool
	Cache      *redis.Client
	Repository ledger.Repository
	Height     chain.HeightSource
	Sink       notification.Sink
	Registry   *prometheus.Registry
	Logger     *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	var treasury *ledger.AccountID
	if d.Cfg.TreasuryAccount != nil {
		acc := ledger.AccountID(*d.Cfg.TreasuryAccount)
		treasury = &acc
	}
	dust, err := token.ParseDustPolicy(d.Cfg.DustPolicy, treasury)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if d.Cfg.MetricsEnabled && d.Registry != nil {
		m = metrics.New(d.Registry)
	}
	svc, err := token.NewService(token.Options{
		Repository: d.Repository,
		Height:     d.Height,
		Sink:       d.Sink,
		Dust:       dust,
		Metrics:    m,
		Logger:     d.Logger,
	})
	if err != nil {
		return err
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)
	if m != nil {
		RegisterMetricsRoute(app, d.Registry)
	}

	api := app.Group("/api/v1", middleware.CallerAuth(d.Cfg.JWTSecret))
	if d.Cache != nil {
		api.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}
	api.Get("/ping", func(c *fiber.Ctx) error {
		caller, _ := middleware.CallerAccount(c)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":         "ok",
			"caller_account": caller,
			"request_id":     middleware.RequestIDFrom(c),
			"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	RegisterTokenRoutes(api, token.NewHandler(svc))

	return nil
}
