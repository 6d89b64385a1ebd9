package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/minishop/internal/httpapi"
	"github.com/xenking/minishop/internal/repository"
	"github.com/xenking/minishop/pkg/health"
)

// RunProduct wires and runs the product service: the catalog CRUD API,
// search, and the conditional stock decrement endpoint.
func RunProduct(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *ProductConfig) error {
	lg.Info("Initializing product service", zap.String("addr", cfg.Addr))

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	productRepo := repository.NewProductRepository(pool)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	httpapi.NewProductHandler(productRepo).Register(mux)

	return serve(ctx, lg, m, serveConfig{
		addr:      cfg.Addr,
		operation: "product-api",
		rateLimit: cfg.RateLimit,
		cors:      cfg.CORS,
		graceful:  cfg.Graceful,
	}, mux, healthSvc)
}
