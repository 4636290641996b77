package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindowCountsPerKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	now := time.Unix(1_700_000_000, 0)
	limiter := SlidingWindow{Client: client, Prefix: "metal:rl:quotes:", Now: func() time.Time { return now }}
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		allowed, remaining, reset, err := limiter.Allow(ctx, "quotes:198.51.100.4", time.Minute, 2)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, 2-i, remaining)
		require.Equal(t, time.Unix(1_700_000_060, 0), reset)
		now = now.Add(10 * time.Second)
	}

	allowed, remaining, reset, err := limiter.Allow(ctx, "quotes:198.51.100.4", time.Minute, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)
	require.Equal(t, time.Unix(1_700_000_060, 0), reset, "reset follows the oldest counted quote")

	members, err := client.ZCard(ctx, "metal:rl:quotes:quotes:198.51.100.4").Result()
	require.NoError(t, err)
	require.EqualValues(t, 2, members, "rejected attempts are not counted")

	now = time.Unix(1_700_000_061, 0)
	allowed, remaining, _, err = limiter.Allow(ctx, "quotes:198.51.100.4", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Zero(t, remaining)
}

func TestSlidingWindowGuardsOrderSubmission(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	start := time.Now()
	now := start
	orders := Handler{
		Limiter: SlidingWindow{Client: client, Prefix: "metal:rl:orders:", Now: func() time.Time { return now }},
		Config:  Config{Key: KeyByClientIP("orders:"), Window: time.Minute, Max: 3},
	}
	submitted := 0
	handler := orders.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		submitted++
		w.WriteHeader(http.StatusAccepted)
	}))
	submit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/carts/s1/order", nil)
		req.RemoteAddr = ip + ":41000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusAccepted, submit("203.0.113.7").Code)
	}
	rec := submit("203.0.113.7")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	require.InDelta(t, 60, retryAfter, 2)

	require.Equal(t, http.StatusAccepted, submit("198.51.100.20").Code, "other clients keep their own window")
	require.True(t, mr.Exists("metal:rl:orders:orders:203.0.113.7"))

	now = start.Add(61 * time.Second)
	require.Equal(t, http.StatusAccepted, submit("203.0.113.7").Code)
	require.Equal(t, 5, submitted)
}
