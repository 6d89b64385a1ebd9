package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// OrderConfig holds the order service configuration, loadable from
// environment variables (MINISHOP_ prefix), flags, or YAML config files.
type OrderConfig struct {
	Addr        string `default:"0.0.0.0:8080" usage:"order API listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (MINISHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ProductURL  string `default:"http://localhost:8081" usage:"Base URL of the product service" flag:"product-url"`
	Inventory   InventoryConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// ProductConfig holds the product service configuration.
type ProductConfig struct {
	Addr        string `default:"0.0.0.0:8081" usage:"product API listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (MINISHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// InventoryConfig controls the order service's stock gateway call policy.
type InventoryConfig struct {
	Timeout time.Duration `default:"5s"    usage:"Per-attempt timeout for stock calls"`
	Retries int           `default:"2"     usage:"Extra attempts for availability reads (deducts never retry)"`
	Backoff time.Duration `default:"100ms" usage:"Initial retry backoff, doubled per attempt"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadOrderConfig loads the order service configuration.
func LoadOrderConfig() (*OrderConfig, error) {
	var cfg OrderConfig
	if err := load(&cfg); err != nil {
		return nil, err
	}
	cfg.DatabaseURL = withPlatformDatabase(cfg.DatabaseURL)
	cfg.Addr = withPlatformPort(cfg.Addr, "0.0.0.0:8080")

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set MINISHOP_DATABASE_URL or DATABASE_URL")
	}
	return &cfg, nil
}

// LoadProductConfig loads the product service configuration.
func LoadProductConfig() (*ProductConfig, error) {
	var cfg ProductConfig
	if err := load(&cfg); err != nil {
		return nil, err
	}
	cfg.DatabaseURL = withPlatformDatabase(cfg.DatabaseURL)
	cfg.Addr = withPlatformPort(cfg.Addr, "0.0.0.0:8081")

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set MINISHOP_DATABASE_URL or DATABASE_URL")
	}
	return &cfg, nil
}

func load(dst any) error {
	loader := aconfig.LoaderFor(dst, aconfig.Config{
		EnvPrefix: "MINISHOP",
		Files:     []string{"config.yaml", "/etc/minishop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return errors.Wrap(err, "load config")
	}
	return nil
}

// Platform-provided environment variables (Railway, Render, etc.) use
// standard names like DATABASE_URL and PORT; map them onto the MINISHOP_
// configuration when the prefixed values are unset.
func withPlatformDatabase(current string) string {
	if current != "" {
		return current
	}
	return os.Getenv("DATABASE_URL")
}

func withPlatformPort(current, def string) string {
	if port := os.Getenv("PORT"); port != "" && current == def {
		return "0.0.0.0:" + port
	}
	return current
}
