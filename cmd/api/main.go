package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/backend-metal/internal/app"
	"github.com/noah-isme/backend-metal/internal/calculator"
	"github.com/noah-isme/backend-metal/internal/cart"
	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/common"
	"github.com/noah-isme/backend-metal/internal/config"
	"github.com/noah-isme/backend-metal/internal/health"
	"github.com/noah-isme/backend-metal/internal/obs"
	"github.com/noah-isme/backend-metal/internal/order"
	"github.com/noah-isme/backend-metal/internal/ratelimit"
	"github.com/noah-isme/backend-metal/internal/resilience"
	"github.com/noah-isme/backend-metal/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	if err := resilience.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logger.Error().Err(err).Msg("register resilience metrics")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := cfg.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "metal-api",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.New(initCtx, cfg, logger, app.Options{})
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Service: deps.Catalog})
	quoteHandler := &calculator.Handler{Items: deps.Catalog, Engine: deps.Engine, MinimumTons: cfg.MinimumOrderTons}
	cartHandler := &cart.Handler{Svc: deps.Carts, Items: deps.Catalog, Pricer: deps.Engine, MinimumTons: cfg.MinimumOrderTons}

	idem := common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL}
	limitErr := func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") }

	var orderLimiter ratelimit.Allower = ratelimit.FixedWindow{Store: deps.LimiterStore}
	if deps.Redis != nil {
		orderLimiter = ratelimit.SlidingWindow{Client: deps.Redis, Prefix: "metal:rl:orders:"}
	}
	orderLimit := ratelimit.Handler{
		Limiter: orderLimiter,
		Config:  ratelimit.Config{Key: ratelimit.KeyByClientIP("orders:"), Window: time.Minute, Max: cfg.RateLimitOrdersPerMinute},
		OnError: limitErr,
	}
	quoteLimit := ratelimit.Handler{
		Limiter: ratelimit.FixedWindow{Store: deps.LimiterStore},
		Config:  ratelimit.Config{Key: ratelimit.KeyByClientIP("quotes:"), Window: time.Minute, Max: cfg.RateLimitQuotesPerMinute},
		OnError: limitErr,
	}
	orderHandler := &order.Handler{
		Svc:   deps.Orders,
		Guard: []func(http.Handler) http.Handler{orderLimit.Middleware, idem.Middleware},
	}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBuckets), nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	if envOrDefault("OBS_ENABLE_PPROF", "false") == "true" {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	checks := []health.Check{health.Catalog(deps.Catalog, time.Second)}
	if deps.Redis != nil {
		checks = append(checks, health.Redis(deps.Redis, 300*time.Millisecond))
	}
	if deps.DB != nil {
		checks = append(checks, health.Database(deps.DB, 500*time.Millisecond))
	}
	healthHandler := health.Handler{Checks: checks}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.Headers{Enable: true, NoStore: true}.Middleware)
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)

		catalogHandler.Routes(v)
		v.With(quoteLimit.Middleware).Post("/quote", quoteHandler.Quote)
		cartHandler.Routes(v)
		orderHandler.Routes(v)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()
	health.SetReady(true)

	<-ctx.Done()
	health.SetReady(false)
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	logger.Info().Msg("server stopped")
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
		mux.Handle("/"+name, pprof.Handler(name))
	}
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
