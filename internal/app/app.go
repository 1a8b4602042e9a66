package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alex-user-go/luxsearch/internal/config"
	"github.com/alex-user-go/luxsearch/internal/handler"
	"github.com/alex-user-go/luxsearch/internal/middleware"
	"github.com/alex-user-go/luxsearch/internal/obs"
	"github.com/alex-user-go/luxsearch/internal/providers"
	"github.com/alex-user-go/luxsearch/internal/search"
	"github.com/alex-user-go/luxsearch/internal/search/cache"
	"github.com/alex-user-go/luxsearch/internal/search/normalize"
	"github.com/alex-user-go/luxsearch/internal/search/ratelimit"
)

// App holds the wired service components.
type App struct {
	Handler http.Handler
	Metrics *obs.Metrics

	cache   *cache.Cache
	limiter *ratelimit.Limiter
	redis   *cache.RedisStore
}

// Close releases background goroutines and connections.
func (a *App) Close() {
	a.cache.Close()
	a.limiter.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

// Policy builds the normalization policy from config, keeping defaults for
// anything left blank.
func Policy(cfg config.NormalizeConfig) normalize.Policy {
	policy := normalize.DefaultPolicy()
	if cfg.DefaultCurrency != "" {
		policy.DefaultCurrency = cfg.DefaultCurrency
	}
	if cfg.SearchSource != "" {
		policy.SearchSource = cfg.SearchSource
	}
	if cfg.PlanSource != "" {
		policy.PlanSource = cfg.PlanSource
	}
	if len(cfg.PriceFields) > 0 {
		gbp := cfg.GBPPriceFields
		if gbp == nil {
			gbp = normalize.DefaultGBPPriceFields
		}
		policy.Prices = normalize.PriceFields(cfg.PriceFields, gbp)
	}
	return policy
}

// Providers creates one MCP provider per enabled backend.
func Providers(cfg *config.Config, logger *slog.Logger) []providers.Provider {
	backends := cfg.EnabledBackends()
	out := make([]providers.Provider, 0, len(backends))
	for _, b := range backends {
		out = append(out, providers.NewMCPProvider(b.Name, b.URL, b.Tool, providers.Options{
			Timeout: b.Timeout(),
			Retry:   cfg.Retry,
			RPS:     cfg.RateLimit.OutboundRPS,
			Burst:   cfg.RateLimit.OutboundBurst,
			Logger:  logger,
		}))
	}
	return out
}

// New wires the service from cfg.
func New(cfg *config.Config, logger *slog.Logger) *App {
	metrics := obs.NewMetrics(logger)
	normalizer := normalize.New(Policy(cfg.Normalize), logger)

	aggregator := search.NewAggregator(
		Providers(cfg, logger),
		normalizer,
		cfg.SearchTimeout(),
		metrics,
		logger,
	)

	a := &App{Metrics: metrics}

	var opts []cache.Option
	if cfg.Cache.RedisAddr != "" {
		a.redis = cache.DialRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPrefix, cfg.Cache.TTL())

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := a.redis.Ping(ctx)
		cancel()
		if err != nil {
			// Store errors are misses, so keep going without shared cache hits.
			logger.Warn("redis unreachable", "addr", cfg.Cache.RedisAddr, "error", err)
		}
		opts = append(opts, cache.WithStore(a.redis))
	}
	a.cache = cache.NewCache(cfg.Cache.TTL(), opts...)
	a.limiter = ratelimit.New(cfg.RateLimit.Requests, cfg.RateLimit.Window())

	h := handler.New(aggregator, normalizer, a.cache, a.limiter, metrics, logger)
	a.Handler = NewRouter(h, metrics, logger, cfg.Server.AllowedOrigin)

	return a
}

// NewRouter registers the HTTP routes.
func NewRouter(h *handler.Handler, metrics *obs.Metrics, logger *slog.Logger, allowedOrigin string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(allowedOrigin))

	r.Get("/search", h.SearchHandler)
	r.Post("/search", h.SearchPostHandler)
	r.Post("/normalize", h.NormalizeHandler)
	r.Get("/healthz", obs.HealthHandler(logger))
	r.Get("/metrics", metrics.MetricsHandler())

	return r
}

// Run initializes and runs the application until SIGINT or SIGTERM.
func Run(cfg *config.Config) error {
	logger, _ := obs.NewLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	a := New(cfg, logger)
	defer a.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      a.Handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", srv.Addr,
			"backends", len(cfg.EnabledBackends()),
			"redis", cfg.Cache.RedisAddr != "",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("server error", "error", err)
		return err
	case <-quit:
	}

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}
