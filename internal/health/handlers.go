package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-metal/internal/catalog"
)

var notReady atomic.Bool

// SetReady toggles readiness. Servers flip it off when shutdown starts.
func SetReady(ready bool) {
	notReady.Store(!ready)
}

// Check is one named readiness check.
type Check struct {
	Name    string
	Timeout time.Duration
	Ping    func(ctx context.Context) error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checks []Check
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready runs every check and reports 503 when any fails or the server is draining.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := make(map[string]string, len(h.Checks)+1)
	healthy := true
	if notReady.Load() {
		status["server"] = "shutting down"
		healthy = false
	}
	for _, c := range h.Checks {
		result := "ok"
		if err := run(r.Context(), c); err != nil {
			result = err.Error()
			healthy = false
		}
		status[c.Name] = result
	}
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func run(ctx context.Context, c Check) error {
	if c.Ping == nil {
		return errors.New("check not configured")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.Ping(ctx)
}

// Redis checks a Redis client with PING.
func Redis(client *redis.Client, timeout time.Duration) Check {
	return Check{Name: "redis", Timeout: timeout, Ping: func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis not configured")
		}
		return client.Ping(ctx).Err()
	}}
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database checks a connection pool.
func Database(db Pinger, timeout time.Duration) Check {
	return Check{Name: "db", Timeout: timeout, Ping: func(ctx context.Context) error {
		if db == nil {
			return errors.New("db not configured")
		}
		return db.Ping(ctx)
	}}
}

// ItemLister is satisfied by *catalog.Service.
type ItemLister interface {
	Items(ctx context.Context) ([]catalog.Item, error)
}

// Catalog reports whether the price table can be served.
func Catalog(items ItemLister, timeout time.Duration) Check {
	return Check{Name: "catalog", Timeout: timeout, Ping: func(ctx context.Context) error {
		if items == nil {
			return errors.New("catalog not configured")
		}
		list, err := items.Items(ctx)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return errors.New("catalog is empty")
		}
		return nil
	}}
}
