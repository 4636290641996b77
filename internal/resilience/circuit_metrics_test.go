package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metal/internal/resilience"
)

func TestBreakerPublishesIntakeTransitions(t *testing.T) {
	resilience.BreakerState.Reset()
	resilience.BreakerTransitions.Reset()
	resilience.BreakerOpenedTotal.Reset()

	const target = "order-intake"
	now := time.Unix(0, 0)
	breaker := resilience.NewBreaker(2, 0.5, 20*time.Second).
		WithTarget(target).
		WithClock(func() time.Time { return now })
	ctx := context.Background()
	state := func() float64 { return testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target)) }
	transitions := func(from, to string) float64 {
		return testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues(target, from, to))
	}

	require.Zero(t, state())
	breaker.Report(ctx, true)
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, state(), "one failure in two deliveries opens the circuit")

	now = now.Add(20 * time.Second)
	require.True(t, breaker.Allow(ctx))
	require.Equal(t, 2.0, state())
	breaker.Report(ctx, false)
	require.Equal(t, 1.0, state())

	now = now.Add(20 * time.Second)
	require.True(t, breaker.Allow(ctx))
	breaker.Report(ctx, true)
	require.Zero(t, state())

	require.Equal(t, 2.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues(target)))
	require.Equal(t, 1.0, transitions("closed", "open"))
	require.Equal(t, 2.0, transitions("open", "half_open"))
	require.Equal(t, 1.0, transitions("half_open", "open"))
	require.Equal(t, 1.0, transitions("half_open", "closed"))
}
