package cache_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestfeed/internal/cache"
	"nestfeed/internal/domain"
	"nestfeed/pkg/sentinel"
)

// runCacheContract exercises the behavior every backend must share.
func runCacheContract(t *testing.T, c cache.Cache) {
	ctx := context.Background()

	t.Run("miss returns not found", func(t *testing.T) {
		_, err := c.Get(ctx, "absent")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("set then get round trips", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k1", "v1"))
		got, err := c.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, "v1", got)
	})

	t.Run("set overwrites", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k2", "old"))
		require.NoError(t, c.Set(ctx, "k2", "new"))
		got, err := c.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, "new", got)
	})

	t.Run("empty value is a valid entry", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "k3", ""))
		got, err := c.Get(ctx, "k3")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryCache(t *testing.T) {
	runCacheContract(t, cache.NewMemory())
}

func TestSQLiteCache(t *testing.T) {
	c, err := cache.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	runCacheContract(t, c)
}

func TestSQLiteCachePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	c, err := cache.NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "k", "v"))
	require.NoError(t, c.Close())

	reopened, err := cache.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, err := reopened.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func sample(id string) domain.Listing {
	return domain.Listing{
		ID:          id,
		Description: "listing " + id,
		AreaSize:    "60m2",
		Rooms:       2,
		Price:       900,
		OwnerID:     "o1",
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestAppendDeviceListingBuildsTrail(t *testing.T) {
	c := cache.NewMemory()
	ctx := context.Background()

	require.NoError(t, cache.AppendDeviceListing(ctx, c, sample("a")))
	require.NoError(t, cache.AppendDeviceListing(ctx, c, sample("b")))

	trail, err := cache.DeviceListings(ctx, c)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "a", trail[0].ID)
	assert.Equal(t, "b", trail[1].ID)
}

func TestAppendDeviceListingRestartsCorruptTrail(t *testing.T) {
	c := cache.NewMemory()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, cache.DeviceListingsKey, "{corrupt"))
	require.NoError(t, cache.AppendDeviceListing(ctx, c, sample("a")))

	trail, err := cache.DeviceListings(ctx, c)
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, "a", trail[0].ID)
}

func TestDeviceListingsEmptyWhenNeverWritten(t *testing.T) {
	trail, err := cache.DeviceListings(context.Background(), cache.NewMemory())
	require.NoError(t, err)
	assert.Nil(t, trail)
}
