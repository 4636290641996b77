package catalog_test

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-metal/internal/catalog"
	"github.com/noah-isme/backend-metal/internal/common"
)

type countingSource struct {
	items []catalog.Item
	err   error
	calls int
}

func (s *countingSource) Load(context.Context) ([]catalog.Item, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]catalog.Item(nil), s.items...), nil
}

func TestServiceList(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: catalog.StaticSource(loadFixture(t)), DefaultLimit: 2, MaxLimit: 3})
	require.NoError(t, err)
	ctx := context.Background()

	res, err := svc.List(ctx, catalog.ListParams{Filter: catalog.Filter{Category: "rebar"}})
	require.NoError(t, err)
	require.Equal(t, 3, res.Total)
	require.Equal(t, 1, res.Page)
	require.Equal(t, 2, res.Limit)
	require.Equal(t, []string{"arm-12-a500", "arm-10-a500"}, ids(res.Items))

	res, err = svc.List(ctx, catalog.ListParams{Filter: catalog.Filter{Category: "rebar"}, Page: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"arm-12-a240"}, ids(res.Items))

	res, err = svc.List(ctx, catalog.ListParams{Page: 9, Limit: 50})
	require.NoError(t, err)
	require.Equal(t, 3, res.Limit)
	require.Empty(t, res.Items)
	require.Equal(t, 4, res.Total)
}

func TestServiceLookups(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: catalog.StaticSource(loadFixture(t))})
	require.NoError(t, err)
	ctx := context.Background()

	item, err := svc.Get(ctx, "pipe-57-20")
	require.NoError(t, err)
	require.Equal(t, "pipe", item.Category)

	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, catalog.ErrItemNotFound)

	steels, err := svc.SteelGrades(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"A500C", "A240", "20"}, steels)

	sizes, err := svc.Sizes(ctx, "rebar")
	require.NoError(t, err)
	require.Equal(t, []string{"10", "12"}, sizes)
}

func TestServiceRequiresSource(t *testing.T) {
	_, err := catalog.NewService(catalog.ServiceConfig{})
	require.Error(t, err)
}

func TestServiceRefreshKeepsLastGoodSnapshot(t *testing.T) {
	src := &countingSource{items: loadFixture(t)}
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Source:  src,
		Refresh: time.Minute,
		Now:     func() time.Time { return now },
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Items(ctx)
	require.NoError(t, err)
	_, err = svc.Items(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Minute)
	src.err = errors.New("source down")
	items, err := svc.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 4)
	require.Equal(t, 2, src.calls)
}

func TestServiceSharesSnapshotThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := catalog.NewCache(client, time.Minute)
	ctx := context.Background()

	first := &countingSource{items: loadFixture(t)}
	svcA, err := catalog.NewService(catalog.ServiceConfig{Source: first, Cache: cache})
	require.NoError(t, err)
	_, err = svcA.Items(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.calls)

	second := &countingSource{}
	svcB, err := catalog.NewService(catalog.ServiceConfig{Source: second, Cache: cache})
	require.NoError(t, err)
	items, err := svcB.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 4)
	require.Zero(t, second.calls)
	require.True(t, items[0].BasePrice.Primary.Equal(first.items[0].BasePrice.Primary))

	require.NoError(t, svcB.Reload(ctx))
	require.Equal(t, 1, second.calls)
	items, err = svcB.Items(ctx)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestParseListParams(t *testing.T) {
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: catalog.StaticSource(nil), MaxLimit: 50})
	require.NoError(t, err)

	params, err := svc.ParseListParams(url.Values{"category": {" rebar "}, "q": {"12"}, "page": {"3"}, "limit": {"500"}})
	require.NoError(t, err)
	require.Equal(t, "rebar", params.Filter.Category)
	require.Equal(t, "12", params.Filter.Search)
	require.Equal(t, 3, params.Page)
	require.Equal(t, 50, params.Limit)

	_, err = svc.ParseListParams(url.Values{"page": {"zero"}})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)
}
