package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/minishop/internal/domain/order"
	"github.com/xenking/minishop/internal/httpapi"
	"github.com/xenking/minishop/internal/inventory"
	"github.com/xenking/minishop/internal/repository"
	"github.com/xenking/minishop/pkg/health"
)

// RunOrder wires and runs the order service: the placement workflow, the
// order query API, and the HTTP client for the product service's stock
// endpoints.
func RunOrder(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *OrderConfig) error {
	lg.Info("Initializing order service",
		zap.String("addr", cfg.Addr),
		zap.String("product_url", cfg.ProductURL),
	)

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
	healthSvc.AddReadinessCheck("product-service", 5*time.Second,
		health.HTTPGetCheck(nil, cfg.ProductURL+"/livez"))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	orderRepo := repository.NewOrderRepository(pool)

	stock := inventory.NewClient(inventory.Config{
		BaseURL: cfg.ProductURL,
		Timeout: cfg.Inventory.Timeout,
		Retries: cfg.Inventory.Retries,
		Backoff: cfg.Inventory.Backoff,
	})
	workflow := order.NewWorkflow(stock, orderRepo)

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("/readyz", healthSvc.ReadyEndpoint)
	httpapi.NewOrderHandler(workflow, orderRepo).Register(mux)

	return serve(ctx, lg, m, serveConfig{
		addr:      cfg.Addr,
		operation: "order-api",
		rateLimit: cfg.RateLimit,
		cors:      cfg.CORS,
		graceful:  cfg.Graceful,
	}, mux, healthSvc)
}
