package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-metal/internal/app"
	"github.com/noah-isme/backend-metal/internal/config"
	"github.com/noah-isme/backend-metal/internal/events"
	"github.com/noah-isme/backend-metal/internal/lock"
	"github.com/noah-isme/backend-metal/internal/notify"
	"github.com/noah-isme/backend-metal/internal/obs"
	"github.com/noah-isme/backend-metal/internal/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()
	if !cfg.RedisEnabled() {
		logger.Fatal().Msg("REDIS_URL is required for the intake worker")
	}

	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	if err := resilience.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		logger.Error().Err(err).Msg("register resilience metrics")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "metal-worker",
			Endpoint:      cfg.OTLPEndpoint,
			Exporter:      cfg.TracingExporter,
			SamplingRatio: cfg.TracingSampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	redisClient, err := app.NewRedis(initCtx, cfg.RedisURL, cfg.MetricsEnabled)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("connect redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	deliverer := &notify.Deliverer{
		URL:    cfg.OrderWebhookURL,
		Secret: cfg.WebhookSecret,
		HTTP: &resilience.HTTPClient{
			Client: notify.NewHTTPClient(cfg.WebhookTimeout, cfg.WebhookInsecure),
			Breaker: resilience.NewBreaker(cfg.BreakerMinReq, cfg.BreakerFailRatio, cfg.BreakerOpenFor).
				WithTarget("order-intake").
				WithLogger(logger),
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.RetryMaxAttempts,
			Jitter:      cfg.RetryJitter,
			Timeout:     cfg.WebhookTimeout,
		},
		Replay:    notify.RedisReplayProtector{Client: redisClient},
		ReplayTTL: cfg.WebhookReplayTTL,
	}
	if !deliverer.Enabled() {
		logger.Warn().Msg("ORDER_WEBHOOK_URL not set; order requests will only be logged")
	}

	worker := notify.IntakeWorker{
		Deliverer: deliverer,
		Locker:    lock.Redis{R: redisClient, Prefix: "metal:"},
		LockTTL:   cfg.WebhookTimeout * time.Duration(max(cfg.RetryMaxAttempts, 1)+1),
		Logger:    logger,
	}

	connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis uri")
	}
	srv := asynq.NewServer(connOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{cfg.OrderQueue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logTaskError(logger, task, err, retried, maxRetry)
		}),
		ShutdownTimeout: 10 * time.Second,
	})

	mux := asynq.NewServeMux()
	mux.Handle(events.TaskOrderIntake, worker)

	logger.Info().Str("queue", cfg.OrderQueue).Int("concurrency", cfg.WorkerConcurrency).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	<-ctx.Done()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}

func logTaskError(logger zerolog.Logger, task *asynq.Task, err error, retried, maxRetry int) {
	evt := logger.Warn()
	if retried >= maxRetry {
		evt = logger.Error()
	}
	evt.Err(err).Str("task", task.Type()).Int("retried", retried).Int("max_retry", maxRetry).Msg("intake_task_failed")
}
