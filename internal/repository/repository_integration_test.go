package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/SergeiKhy/url-analytics/internal/repository"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type testEnv struct {
	db    *repository.PostgresDB
	redis *repository.RedisDB
	links repository.LinkRepository
	click repository.ClickRepository
	cache repository.CacheRepository
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("shortener"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisContainer.Terminate(context.Background()) })

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, repository.MigrateDSN(dsn, zap.NewNop()))
	// A second run finds nothing to do.
	require.NoError(t, repository.MigrateDSN(dsn, zap.NewNop()))

	db, err := repository.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	endpoint, err := redisContainer.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb, err := repository.ConnectRedis(ctx, &goredis.Options{Addr: endpoint})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	return &testEnv{
		db:    db,
		redis: rdb,
		links: repository.NewLinkRepository(db),
		click: repository.NewClickRepository(db),
		cache: repository.NewCacheRepository(rdb),
	}
}

func newLink(code, owner string, createdAt time.Time) *models.Link {
	return &models.Link{
		ShortCode:   code,
		OriginalURL: "https://example.com/" + code,
		OwnerID:     owner,
		CreatedAt:   createdAt,
	}
}

func TestRepositories_Integration(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	t.Run("create and unique code", func(t *testing.T) {
		link := newLink("aaaaaaa", "alice", now)
		require.NoError(t, env.links.Create(ctx, link))
		assert.NotZero(t, link.ID)

		err := env.links.Create(ctx, newLink("aaaaaaa", "bob", now))
		assert.ErrorIs(t, err, repository.ErrCodeExists)

		got, err := env.links.GetByShortCode(ctx, "aaaaaaa")
		require.NoError(t, err)
		assert.Equal(t, "alice", got.OwnerID)
		assert.Nil(t, got.DeletedAt)
	})

	t.Run("list orders newest first then code", func(t *testing.T) {
		for i, code := range []string{"ccccccc", "bbbbbbb"} {
			require.NoError(t, env.links.Create(ctx, newLink(code, "carol", now)), i)
		}
		require.NoError(t, env.links.Create(ctx, newLink("ddddddd", "carol", now.Add(-time.Hour))))

		links, err := env.links.ListByOwner(ctx, "carol", 10, 0)
		require.NoError(t, err)
		require.Len(t, links, 3)
		assert.Equal(t, "bbbbbbb", links[0].ShortCode)
		assert.Equal(t, "ccccccc", links[1].ShortCode)
		assert.Equal(t, "ddddddd", links[2].ShortCode)

		total, err := env.links.CountByOwner(ctx, "carol")
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
	})

	t.Run("apply click is idempotent", func(t *testing.T) {
		event := &models.ClickEvent{
			ID:        "evt-1",
			ShortCode: "aaaaaaa",
			ClickedAt: now,
			Country:   "Germany",
			Device:    "Desktop",
			Browser:   "Chrome",
		}
		applied, err := env.click.ApplyClick(ctx, event)
		require.NoError(t, err)
		assert.True(t, applied)

		applied, err = env.click.ApplyClick(ctx, event)
		require.NoError(t, err)
		assert.False(t, applied)

		got, err := env.links.GetByShortCode(ctx, "aaaaaaa")
		require.NoError(t, err)
		assert.EqualValues(t, 1, got.ClickCount)

		countries, err := env.click.Rollups(ctx, repository.RollupQuery{ShortCode: "aaaaaaa", Dimension: models.DimensionCountry})
		require.NoError(t, err)
		assert.Equal(t, []models.BucketCount{{Bucket: "Germany", Count: 1}}, countries)

		days, err := env.click.Rollups(ctx, repository.RollupQuery{
			OwnerID:   "alice",
			Dimension: models.DimensionDay,
			From:      now.Format(models.DayLayout),
			To:        now.Format(models.DayLayout),
		})
		require.NoError(t, err)
		assert.Equal(t, []models.BucketCount{{Bucket: now.Format(models.DayLayout), Count: 1}}, days)
	})

	t.Run("events for unknown codes are kept", func(t *testing.T) {
		applied, err := env.click.ApplyClick(ctx, &models.ClickEvent{ID: "evt-orphan", ShortCode: "zzzzzzz", ClickedAt: now})
		require.NoError(t, err)
		assert.True(t, applied)

		devices, err := env.click.Rollups(ctx, repository.RollupQuery{ShortCode: "zzzzzzz", Dimension: models.DimensionDevice})
		require.NoError(t, err)
		assert.Equal(t, []models.BucketCount{{Bucket: models.Unknown, Count: 1}}, devices)
	})

	t.Run("tombstone hides link and reserves code", func(t *testing.T) {
		require.NoError(t, env.links.Create(ctx, newLink("eeeeeee", "dave", now)))

		assert.ErrorIs(t, env.links.Delete(ctx, "eeeeeee", "mallory"), repository.ErrLinkNotFound)
		require.NoError(t, env.links.Delete(ctx, "eeeeeee", "dave"))
		assert.ErrorIs(t, env.links.Delete(ctx, "eeeeeee", "dave"), repository.ErrLinkNotFound)

		_, err := env.links.GetByShortCode(ctx, "eeeeeee")
		assert.ErrorIs(t, err, repository.ErrLinkNotFound)

		err = env.links.Create(ctx, newLink("eeeeeee", "erin", now))
		assert.ErrorIs(t, err, repository.ErrCodeExists)
	})

	t.Run("purge keeps rollups and rebuild recomputes from raw events", func(t *testing.T) {
		old := &models.ClickEvent{ID: "evt-old", ShortCode: "bbbbbbb", ClickedAt: now.AddDate(0, 0, -100)}
		_, err := env.click.ApplyClick(ctx, old)
		require.NoError(t, err)

		purged, err := env.click.PurgeEventsBefore(ctx, now.AddDate(0, 0, -90))
		require.NoError(t, err)
		assert.EqualValues(t, 1, purged)

		got, err := env.links.GetByShortCode(ctx, "bbbbbbb")
		require.NoError(t, err)
		assert.EqualValues(t, 1, got.ClickCount)

		require.NoError(t, env.click.RebuildRollups(ctx))

		got, err = env.links.GetByShortCode(ctx, "bbbbbbb")
		require.NoError(t, err)
		assert.EqualValues(t, 0, got.ClickCount)

		got, err = env.links.GetByShortCode(ctx, "aaaaaaa")
		require.NoError(t, err)
		assert.EqualValues(t, 1, got.ClickCount)
	})

	t.Run("summary and top links", func(t *testing.T) {
		summary, err := env.links.Summary(ctx, "carol", now.Add(-time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 3, summary.TotalUrls)
		assert.EqualValues(t, 2, summary.UrlsSince)

		top, err := env.links.TopByOwner(ctx, "alice", 5)
		require.NoError(t, err)
		require.Len(t, top, 1)
		assert.Equal(t, "aaaaaaa", top[0].ShortCode)

		daily, err := env.links.DailyCreated(ctx, "carol", now.AddDate(0, 0, -7))
		require.NoError(t, err)
		assert.NotEmpty(t, daily)
	})

	t.Run("cache roundtrip and invalidation bus", func(t *testing.T) {
		link := newLink("fffffff", "frank", now)
		require.NoError(t, env.cache.Set(ctx, link, time.Minute))

		got, err := env.cache.Get(ctx, "fffffff")
		require.NoError(t, err)
		assert.Equal(t, link.OriginalURL, got.OriginalURL)

		require.NoError(t, env.cache.Delete(ctx, "fffffff"))
		_, err = env.cache.Get(ctx, "fffffff")
		assert.ErrorIs(t, err, repository.ErrCacheMiss)

		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		received := make(chan string, 1)
		go func() {
			_ = env.cache.SubscribeInvalidations(subCtx, func(code string) { received <- code })
		}()

		// Publish until the subscriber is attached.
		assert.Eventually(t, func() bool {
			if err := env.cache.PublishInvalidation(ctx, "fffffff"); err != nil {
				return false
			}
			select {
			case code := <-received:
				return code == "fffffff"
			case <-time.After(50 * time.Millisecond):
				return false
			}
		}, 5*time.Second, 100*time.Millisecond)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, env.db.Ping(ctx))
		assert.NoError(t, env.redis.Ping(ctx))
	})

}
