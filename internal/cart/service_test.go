package cart_test

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metal/internal/cart"
	"github.com/noah-isme/backend-metal/internal/kv"
	"github.com/noah-isme/backend-metal/internal/lock"
	"github.com/noah-isme/backend-metal/internal/pricing"
)

func TestServiceKeyNamespacesSessions(t *testing.T) {
	svc := &cart.Service{KeyPrefix: "shop:", StorageKey: "metal_cart"}
	require.Equal(t, "shop:abc:metal_cart", svc.Key("abc"))

	svc = &cart.Service{}
	require.Equal(t, "cart:abc:"+cart.DefaultStorageKey, svc.Key("abc"))
}

func TestServiceRejectsInvalidSessions(t *testing.T) {
	svc := &cart.Service{Store: kv.NewMemoryStore(), Delivery: pricing.DefaultDeliveryTable()}
	for _, session := range []string{"", "a:b", "../x", string(make([]byte, 65))} {
		_, err := svc.Open(context.Background(), session)
		require.ErrorIs(t, err, cart.ErrInvalidSession, session)
	}
	require.True(t, cart.ValidSession(svc.NewSession()))
}

func TestServiceMutationsAreSerialised(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := &cart.Service{
		Store:    kv.NewRedisStore(client, 0),
		Locker:   lock.Redis{R: client, Prefix: "lock:"},
		Delivery: pricing.DefaultDeliveryTable(),
		Logger:   zerolog.Nop(),
	}
	session := svc.NewSession()

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Mutate(context.Background(), session, func(ctx context.Context, a *cart.Aggregator) error {
				_, err := a.Add(ctx, rebar, 1, 94, 1099.8, dec("54000"), dec("54000"))
				return err
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	agg, err := svc.Open(context.Background(), session)
	require.NoError(t, err)
	require.Equal(t, writers, agg.Len())
	require.Equal(t, float64(writers), agg.Totals().TotalWeight)
}

func TestServiceSessionsAreIsolated(t *testing.T) {
	svc := &cart.Service{Store: kv.NewMemoryStore(), Locker: lock.NewLocal(), Delivery: pricing.DefaultDeliveryTable()}
	ctx := context.Background()

	_, err := svc.Mutate(ctx, "alpha", func(ctx context.Context, a *cart.Aggregator) error {
		_, err := a.Add(ctx, rebar, 2, 188, 2199.6, dec("54000"), dec("108000"))
		return err
	})
	require.NoError(t, err)

	other, err := svc.Open(ctx, "beta")
	require.NoError(t, err)
	require.Zero(t, other.Len())
}
