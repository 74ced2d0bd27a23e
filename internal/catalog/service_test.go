package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridian-retail/meridian/internal/shared"
)

type memoryProducts struct {
	products map[int64]Product
	hits     int
}

func (m *memoryProducts) GetProduct(_ context.Context, storeID, productID int64) (Product, error) {
	m.hits++
	p, ok := m.products[productID]
	if !ok || p.StoreID != storeID {
		return Product{}, shared.NotFound("catalog.get", "product %d in store %d", productID, storeID)
	}
	return p, nil
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestLookupReadsThroughCache(t *testing.T) {
	repo := &memoryProducts{products: map[int64]Product{
		10: {ID: 10, StoreID: 1, SKU: "SKU-10", Name: "Beans", Active: true},
	}}
	svc := NewService(repo, newTestCache(t))
	ctx := context.Background()

	p, err := svc.Lookup(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, "SKU-10", p.SKU)
	require.Equal(t, 1, repo.hits)

	// second lookup is served from redis
	p, err = svc.Lookup(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, "Beans", p.Name)
	require.Equal(t, 1, repo.hits)
}

func TestRequireActiveGuards(t *testing.T) {
	repo := &memoryProducts{products: map[int64]Product{
		10: {ID: 10, StoreID: 1, Active: true},
		11: {ID: 11, StoreID: 1, Active: false},
		12: {ID: 12, StoreID: 2, Active: true},
	}}
	svc := NewService(repo, newTestCache(t))
	ctx := context.Background()

	_, err := svc.RequireActive(ctx, 1, 10)
	require.NoError(t, err)

	_, err = svc.RequireActive(ctx, 1, 11)
	require.True(t, shared.IsKind(err, shared.KindConflict))

	// foreign-store products look like they do not exist
	_, err = svc.RequireActive(ctx, 1, 12)
	require.True(t, shared.IsKind(err, shared.KindNotFound))

	_, err = svc.RequireActive(ctx, 1, 99)
	require.True(t, shared.IsKind(err, shared.KindNotFound))
}

func TestLookupWorksWithoutCache(t *testing.T) {
	repo := &memoryProducts{products: map[int64]Product{
		10: {ID: 10, StoreID: 1, Active: true},
	}}
	svc := NewService(repo, nil)

	_, err := svc.Lookup(context.Background(), 1, 10)
	require.NoError(t, err)
}
