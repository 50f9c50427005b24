package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/SergeiKhy/url-analytics/internal/service"
	"github.com/SergeiKhy/url-analytics/internal/service/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func applyClick(t *testing.T, clicks *mocks.MockClickRepository, id, code, country, device, browser string, at time.Time) {
	t.Helper()
	_, err := clicks.ApplyClick(context.Background(), &models.ClickEvent{
		ID:        id,
		ShortCode: code,
		ClickedAt: at,
		Country:   country,
		Device:    device,
		Browser:   browser,
	})
	require.NoError(t, err)
}

// TestStatsService_Dashboard_Empty checks a new owner gets zeros and empty lists.
func TestStatsService_Dashboard_Empty(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	stats := service.NewStatsService(links, mocks.NewMockClickRepository(links), zap.NewNop())

	dash, err := stats.GetDashboardStats(context.Background(), "newbie")
	require.NoError(t, err)

	assert.Zero(t, dash.TotalUrls)
	assert.Zero(t, dash.TotalClicks)
	assert.Zero(t, dash.ClicksToday)
	assert.Zero(t, dash.UrlsToday)
	assert.NotNil(t, dash.TopUrls)
	assert.Empty(t, dash.TopUrls)
	assert.NotNil(t, dash.ClicksByCountry)
	assert.NotNil(t, dash.DeviceStats)
	assert.NotNil(t, dash.BrowserStats)

	require.Len(t, dash.ClicksByDate, 7)
	for _, day := range dash.ClicksByDate {
		assert.Zero(t, day.Clicks)
		assert.Zero(t, day.Urls)
	}
	assert.Equal(t, time.Now().UTC().Format(models.DayLayout), dash.ClicksByDate[6].Date)
}

// TestStatsService_Dashboard checks totals, buckets and top links for an active owner.
func TestStatsService_Dashboard(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	clicks := mocks.NewMockClickRepository(links)
	stats := service.NewStatsService(links, clicks, zap.NewNop())

	now := time.Now().UTC()
	seedLink(t, links, "popular", "alice")
	seedLink(t, links, "quieter", "alice")
	seedLink(t, links, "othrown", "bob")

	applyClick(t, clicks, "e1", "popular", "Germany", "Desktop", "Chrome", now)
	applyClick(t, clicks, "e2", "popular", "Germany", "Mobile", "Safari", now)
	applyClick(t, clicks, "e3", "popular", "Germany", "Desktop", "Chrome", now.AddDate(0, 0, -2))
	applyClick(t, clicks, "e4", "quieter", "France", "Desktop", "Firefox", now)
	applyClick(t, clicks, "e5", "othrown", "Spain", "Desktop", "Chrome", now)
	// Older than the dashboard window: counted in totals, not in the series.
	applyClick(t, clicks, "e6", "quieter", "France", "Desktop", "Firefox", now.AddDate(0, 0, -20))

	dash, err := stats.GetDashboardStats(context.Background(), "alice")
	require.NoError(t, err)

	assert.EqualValues(t, 2, dash.TotalUrls)
	assert.EqualValues(t, 5, dash.TotalClicks)
	assert.EqualValues(t, 3, dash.ClicksToday)
	assert.EqualValues(t, 2, dash.UrlsToday)

	require.Len(t, dash.ClicksByDate, 7)
	assert.EqualValues(t, 3, dash.ClicksByDate[6].Clicks)
	assert.EqualValues(t, 2, dash.ClicksByDate[6].Urls)
	assert.EqualValues(t, 1, dash.ClicksByDate[4].Clicks)

	require.Len(t, dash.ClicksByCountry, 2)
	assert.Equal(t, models.CountryStat{Country: "Germany", Clicks: 3, Percentage: 60}, dash.ClicksByCountry[0])
	assert.Equal(t, models.CountryStat{Country: "France", Clicks: 2, Percentage: 40}, dash.ClicksByCountry[1])

	require.Len(t, dash.DeviceStats, 2)
	assert.Equal(t, "Desktop", dash.DeviceStats[0].Device)
	assert.EqualValues(t, 4, dash.DeviceStats[0].Count)
	assert.InDelta(t, 80.0, dash.DeviceStats[0].Percentage, 0.001)

	require.Len(t, dash.BrowserStats, 3)
	assert.Equal(t, "Chrome", dash.BrowserStats[0].Browser)

	require.Len(t, dash.TopUrls, 2)
	assert.Equal(t, "popular", dash.TopUrls[0].ShortCode)
	assert.EqualValues(t, 3, dash.TopUrls[0].ClickCount)
}

// TestStatsService_LinkAnalytics checks the per-link report and its date range.
func TestStatsService_LinkAnalytics(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	clicks := mocks.NewMockClickRepository(links)
	stats := service.NewStatsService(links, clicks, zap.NewNop())
	ctx := context.Background()

	now := time.Now().UTC()
	seedLink(t, links, "report1", "alice")
	applyClick(t, clicks, "e1", "report1", "Germany", "Desktop", "Chrome", now)
	applyClick(t, clicks, "e2", "report1", "", "", "", now.AddDate(0, 0, -40))

	analytics, err := stats.GetLinkAnalytics(ctx, "report1", "alice", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "report1", analytics.ShortCode)
	assert.EqualValues(t, 2, analytics.TotalClicks)
	require.Len(t, analytics.ClicksByDate, 30)
	assert.Equal(t, now.Format(models.DayLayout), analytics.EndDate)
	assert.Equal(t, now.AddDate(0, 0, -29).Format(models.DayLayout), analytics.StartDate)
	assert.EqualValues(t, 1, analytics.ClicksByDate[29].Clicks)

	// Breakdowns cover the whole history, including the Unknown bucket.
	require.Len(t, analytics.ClicksByCountry, 2)
	assert.InDelta(t, 50.0, analytics.ClicksByCountry[0].Percentage, 0.001)

	from := now.AddDate(0, 0, -45)
	to := now.AddDate(0, 0, -35)
	analytics, err = stats.GetLinkAnalytics(ctx, "report1", "alice", from, to)
	require.NoError(t, err)
	require.Len(t, analytics.ClicksByDate, 11)
	var total int64
	for _, d := range analytics.ClicksByDate {
		total += d.Clicks
	}
	assert.EqualValues(t, 1, total)
}

// TestStatsService_LinkAnalytics_Errors checks ownership, missing links and bad ranges.
func TestStatsService_LinkAnalytics_Errors(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	stats := service.NewStatsService(links, mocks.NewMockClickRepository(links), zap.NewNop())
	ctx := context.Background()

	seedLink(t, links, "private", "alice")

	_, err := stats.GetLinkAnalytics(ctx, "private", "mallory", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = stats.GetLinkAnalytics(ctx, "missing", "alice", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, service.ErrLinkNotFound)

	require.NoError(t, links.Delete(ctx, "private", "alice"))
	_, err = stats.GetLinkAnalytics(ctx, "private", "alice", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, service.ErrLinkNotFound)

	now := time.Now()
	_, err = stats.GetLinkAnalytics(ctx, "private", "alice", now, now.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, service.ErrInvalidRange)

	_, err = stats.GetLinkAnalytics(ctx, "private", "alice", now.AddDate(-2, 0, 0), now)
	assert.ErrorIs(t, err, service.ErrValidation)
}

// TestStatsService_LinkAnalytics_RangeLimit checks the inclusive 366-day cap.
func TestStatsService_LinkAnalytics_RangeLimit(t *testing.T) {
	links := mocks.NewMockLinkRepository()
	stats := service.NewStatsService(links, mocks.NewMockClickRepository(links), zap.NewNop())
	ctx := context.Background()
	seedLink(t, links, "ranged", "alice")

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	analytics, err := stats.GetLinkAnalytics(ctx, "ranged", "alice", from, from.AddDate(0, 0, 365))
	require.NoError(t, err)
	assert.Len(t, analytics.ClicksByDate, 366)

	_, err = stats.GetLinkAnalytics(ctx, "ranged", "alice", from, from.AddDate(0, 0, 366))
	assert.ErrorIs(t, err, service.ErrInvalidRange)

	one, err := stats.GetLinkAnalytics(ctx, "ranged", "alice", from, from)
	require.NoError(t, err)
	assert.Len(t, one.ClicksByDate, 1)
}
