// Package app assembles the shared services used by the api, worker and calc binaries.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	limiter "github.com/ulule/limiter/v3"

	"github.com/noah-isme/backend-metal/internal/cart"
	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/config"
	"github.com/noah-isme/backend-metal/internal/events"
	"github.com/noah-isme/backend-metal/internal/kv"
	"github.com/noah-isme/backend-metal/internal/lock"
	"github.com/noah-isme/backend-metal/internal/obs"
	"github.com/noah-isme/backend-metal/internal/order"
	"github.com/noah-isme/backend-metal/internal/pricing"
	"github.com/noah-isme/backend-metal/internal/ratelimit"
)

// Dependencies holds the services shared across handlers.
type Dependencies struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Redis        *redis.Client
	DB           *pgxpool.Pool
	Engine       *pricing.Engine
	Catalog      *catalog.Service
	Carts        *cart.Service
	Bus          *events.Bus
	Orders       *order.Service
	TaskClient   *asynq.Client
	LimiterStore limiter.Store

	closers []func() error
}

// Options tweaks how New connects to infrastructure.
type Options struct {
	// CartStore overrides the cart store; used by cmd/calc to keep carts on disk.
	CartStore kv.Store
	// SkipQueue disables the asynq notifier even when Redis is configured.
	SkipQueue bool
}

// New connects to Redis and Postgres when configured and builds every service.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts Options) (*Dependencies, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	d := &Dependencies{Config: cfg, Logger: logger}
	if err := d.build(ctx, opts); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dependencies) build(ctx context.Context, opts Options) error {
	cfg := d.Config
	engine, err := NewPricingEngine(cfg)
	if err != nil {
		return err
	}
	d.Engine = engine

	if cfg.RedisEnabled() {
		client, err := NewRedis(ctx, cfg.RedisURL, cfg.MetricsEnabled)
		if err != nil {
			return err
		}
		d.Redis = client
		d.closers = append(d.closers, client.Close)
	}

	source, err := d.catalogSource(ctx)
	if err != nil {
		return err
	}
	d.Catalog, err = catalog.NewService(catalog.ServiceConfig{
		Source:       source,
		Cache:        catalog.NewCache(d.Redis, cfg.CatalogCacheTTL),
		DefaultLimit: cfg.CatalogDefaultLimit,
		MaxLimit:     cfg.CatalogMaxLimit,
		Refresh:      cfg.CatalogRefresh,
	})
	if err != nil {
		return err
	}

	d.Carts = &cart.Service{
		Store:      opts.CartStore,
		Locker:     lock.NewLocal(),
		Delivery:   engine,
		KeyPrefix:  cfg.CartKeyPrefix,
		StorageKey: cfg.CartStorageKey,
		LockTTL:    cfg.CartLockTTL,
		Logger:     d.Logger.With().Str("component", "cart").Logger(),
	}
	if d.Redis != nil {
		if d.Carts.Store == nil {
			d.Carts.Store = kv.NewRedisStore(d.Redis, cfg.CartTTL)
		}
		d.Carts.Locker = lock.Redis{R: d.Redis}
	}
	if d.Carts.Store == nil {
		d.Carts.Store = kv.NewMemoryStore()
	}

	d.Bus = &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: d.Logger.With().Str("component", "events").Logger()}}}
	if d.Redis != nil && !opts.SkipQueue {
		connOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("app: parse redis uri for queue: %w", err)
		}
		d.TaskClient = asynq.NewClient(connOpt)
		d.closers = append(d.closers, d.TaskClient.Close)
		d.Bus.Notifiers = append(d.Bus.Notifiers, events.AsynqNotifier{
			Client:   d.TaskClient,
			Queue:    cfg.OrderQueue,
			MaxRetry: cfg.OrderMaxRetry,
		})
	}

	d.Orders = &order.Service{
		Bus:         d.Bus,
		Items:       d.Catalog,
		Engine:      engine,
		Carts:       d.Carts,
		MinimumTons: cfg.MinimumOrderTons,
		Currencies:  order.Currencies{Primary: cfg.CurrencyPrimary, Secondary: cfg.CurrencySecondary},
	}

	d.LimiterStore, err = ratelimit.NewStore(d.Redis, "metal:ratelimit")
	if err != nil {
		return fmt.Errorf("app: rate limit store: %w", err)
	}
	return nil
}

func (d *Dependencies) catalogSource(ctx context.Context) (catalog.Source, error) {
	cfg := d.Config
	if cfg.CatalogSource != config.CatalogSourcePostgres {
		return catalog.FileSource{Path: cfg.CatalogFile}, nil
	}
	if cfg.CatalogMigrate {
		if err := catalog.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}
	pool, err := NewPool(ctx, cfg.DatabaseURL, "metal-"+cfg.AppEnv)
	if err != nil {
		return nil, err
	}
	d.DB = pool
	d.closers = append(d.closers, func() error { pool.Close(); return nil })
	return catalog.PGSource{DB: pool}, nil
}

// Close releases connections in reverse order of creation.
func (d *Dependencies) Close() error {
	if d == nil {
		return nil
	}
	var joined error
	for i := len(d.closers) - 1; i >= 0; i-- {
		joined = errors.Join(joined, d.closers[i]())
	}
	d.closers = nil
	return joined
}

// NewPricingEngine builds the engine from the tier and delivery settings.
func NewPricingEngine(cfg *config.Config) (*pricing.Engine, error) {
	schedule, err := pricing.ParseSchedule(cfg.PricingTierBreakpoints, cfg.PricingTierDiscounts)
	if err != nil {
		return nil, fmt.Errorf("app: pricing schedule: %w", err)
	}
	delivery := pricing.DefaultDeliveryTable()
	if cfg.DeliveryBrackets != "" {
		brackets, err := pricing.ParseDeliveryBrackets(cfg.DeliveryBrackets)
		if err != nil {
			return nil, fmt.Errorf("app: delivery brackets: %w", err)
		}
		perTon, err := decimal.NewFromString(cfg.DeliveryPerTonBeyond)
		if err != nil {
			return nil, fmt.Errorf("app: delivery per-ton rate: %w", err)
		}
		if delivery, err = pricing.NewDeliveryTable(brackets, perTon); err != nil {
			return nil, fmt.Errorf("app: delivery table: %w", err)
		}
	}
	return pricing.NewEngine(schedule, delivery)
}

// NewRedis connects to Redis and instruments the client with OpenTelemetry.
func NewRedis(ctx context.Context, url string, metrics bool) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("app: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("app: instrument redis tracing: %w", err)
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("app: instrument redis metrics: %w", err)
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("app: ping redis: %w", err)
	}
	return client, nil
}

// NewPool opens a traced pgx pool.
func NewPool(ctx context.Context, dsn, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("app: parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("app: connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("app: ping database: %w", err)
	}
	return pool, nil
}
