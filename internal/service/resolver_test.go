package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/SergeiKhy/url-analytics/internal/service"
	"github.com/SergeiKhy/url-analytics/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedLink(t *testing.T, links *mocks.MockLinkRepository, code, owner string) *models.Link {
	t.Helper()
	link := &models.Link{
		ShortCode:   code,
		OriginalURL: "https://example.com/" + code,
		OwnerID:     owner,
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, links.Create(context.Background(), link))
	return link
}

// TestResolver_ReadThrough checks a store hit populates the caches.
func TestResolver_ReadThrough(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	cache := mocks.NewMockCacheRepository()
	resolver := newResolver(t, links, cache)
	seedLink(t, links, "abcDEF1", "alice")

	link, err := resolver.Resolve(context.Background(), "abcDEF1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/abcDEF1", link.OriginalURL)
	assert.True(t, cache.Has("abcDEF1"))

	// Served from the local cache even when the lower levels fail.
	links.Err = errors.New("db down")
	cache.Err = errors.New("redis down")
	link, err = resolver.Resolve(context.Background(), "abcDEF1")
	require.NoError(t, err)
	assert.Equal(t, "abcDEF1", link.ShortCode)
}

// TestResolver_RedisHit checks a Redis entry is used without touching the store.
func TestResolver_RedisHit(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	cache := mocks.NewMockCacheRepository()
	resolver := newResolver(t, links, cache)

	require.NoError(t, cache.Set(context.Background(), &models.Link{ShortCode: "redis01", OriginalURL: "https://r.example"}, time.Minute))
	links.Err = errors.New("db down")

	link, err := resolver.Resolve(context.Background(), "redis01")
	require.NoError(t, err)
	assert.Equal(t, "https://r.example", link.OriginalURL)
}

// TestResolver_NotFound checks unknown, malformed and failing lookups all read as not found.
func TestResolver_NotFound(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	cache := mocks.NewMockCacheRepository()
	resolver := newResolver(t, links, cache)
	ctx := context.Background()

	for _, code := range []string{"missing", "", "short", "has-dash", "toolong123", "spa ces"} {
		_, err := resolver.Resolve(ctx, code)
		assert.ErrorIs(t, err, service.ErrLinkNotFound, "code %q", code)
	}

	seedLink(t, links, "broken1", "alice")
	links.Err = errors.New("db down")
	_, err := resolver.Resolve(ctx, "broken1")
	assert.ErrorIs(t, err, service.ErrLinkNotFound)
}

// TestResolver_Timeout checks a slow store is cut off at the lookup timeout.
func TestResolver_Timeout(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	cache := mocks.NewMockCacheRepository()
	resolver, err := service.NewResolver(links, cache, service.ResolverConfig{LookupTimeout: 20 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)

	seedLink(t, links, "slowLnk", "alice")
	links.Delay = 500 * time.Millisecond

	start := time.Now()
	_, err = resolver.Resolve(context.Background(), "slowLnk")
	assert.ErrorIs(t, err, service.ErrLinkNotFound)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

// TestResolver_ConcurrentMisses checks concurrent lookups of one code all succeed.
func TestResolver_ConcurrentMisses(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	cache := mocks.NewMockCacheRepository()
	resolver := newResolver(t, links, cache)
	seedLink(t, links, "popular", "alice")
	links.Delay = 10 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			link, err := resolver.Resolve(context.Background(), "popular")
			if assert.NoError(t, err) {
				assert.Equal(t, "popular", link.ShortCode)
			}
		}()
	}
	wg.Wait()
}

// TestResolver_Invalidate checks every cache level forgets a deleted code.
func TestResolver_Invalidate(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	cache := mocks.NewMockCacheRepository()
	resolver := newResolver(t, links, cache)
	ctx := context.Background()

	seedLink(t, links, "gone001", "alice")
	_, err := resolver.Resolve(ctx, "gone001")
	require.NoError(t, err)

	require.NoError(t, links.Delete(ctx, "gone001", "alice"))
	require.NoError(t, resolver.Invalidate(ctx, "gone001"))

	assert.False(t, cache.Has("gone001"))
	_, err = resolver.Resolve(ctx, "gone001")
	assert.ErrorIs(t, err, service.ErrLinkNotFound)
}

// TestResolver_InvalidationAcrossInstances checks a delete on one instance evicts
// the local entry of another.
func TestResolver_InvalidationAcrossInstances(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	cache := mocks.NewMockCacheRepository()
	first := newResolver(t, links, cache)
	second := newResolver(t, links, cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = second.ListenInvalidations(ctx) }()
	require.Eventually(t, func() bool { return cache.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	seedLink(t, links, "shared1", "alice")
	_, err := second.Resolve(ctx, "shared1")
	require.NoError(t, err)

	require.NoError(t, links.Delete(ctx, "shared1", "alice"))
	require.NoError(t, first.Invalidate(ctx, "shared1"))

	_, err = second.Resolve(ctx, "shared1")
	assert.ErrorIs(t, err, service.ErrLinkNotFound)
}
