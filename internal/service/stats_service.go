package service

import (
	"context"
	"math"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/SergeiKhy/url-analytics/internal/repository"
	"go.uber.org/zap"
)

const (
	dashboardDays        = 7
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 366
	topUrlsLimit         = 5
)

type StatsService interface {
	GetDashboardStats(ctx context.Context, ownerID string) (*models.DashboardStats, error)
	// GetLinkAnalytics reports on one link. Zero from/to default to the last
	// 30 days ending today (UTC).
	GetLinkAnalytics(ctx context.Context, code, ownerID string, from, to time.Time) (*models.LinkAnalytics, error)
}

type statsService struct {
	linkRepo  repository.LinkRepository
	clickRepo repository.ClickRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewStatsService(linkRepo repository.LinkRepository, clickRepo repository.ClickRepository, logger *zap.Logger) StatsService {
	return &statsService{
		linkRepo:  linkRepo,
		clickRepo: clickRepo,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *statsService) GetDashboardStats(ctx context.Context, ownerID string) (*models.DashboardStats, error) {
	today := startOfDay(s.now())
	from := today.AddDate(0, 0, -(dashboardDays - 1))

	summary, err := s.linkRepo.Summary(ctx, ownerID, today)
	if err != nil {
		return nil, storeErr(err)
	}

	top, err := s.linkRepo.TopByOwner(ctx, ownerID, topUrlsLimit)
	if err != nil {
		return nil, storeErr(err)
	}
	if top == nil {
		top = []models.Link{}
	}

	created, err := s.linkRepo.DailyCreated(ctx, ownerID, from)
	if err != nil {
		return nil, storeErr(err)
	}

	scope := repository.RollupQuery{OwnerID: ownerID}
	dims, err := s.breakdowns(ctx, scope, from, today)
	if err != nil {
		return nil, err
	}

	daily := dailySeries(from, today, dims[models.DimensionDay], created)
	var clicksToday int64
	if n := len(daily); n > 0 {
		clicksToday = daily[n-1].Clicks
	}

	return &models.DashboardStats{
		TotalUrls:       summary.TotalUrls,
		TotalClicks:     summary.TotalClicks,
		ClicksToday:     clicksToday,
		UrlsToday:       summary.UrlsSince,
		TopUrls:         top,
		ClicksByDate:    daily,
		ClicksByCountry: countryStats(dims[models.DimensionCountry]),
		DeviceStats:     deviceStats(dims[models.DimensionDevice]),
		BrowserStats:    browserStats(dims[models.DimensionBrowser]),
	}, nil
}

func (s *statsService) GetLinkAnalytics(ctx context.Context, code, ownerID string, from, to time.Time) (*models.LinkAnalytics, error) {
	if to.IsZero() {
		to = s.now()
	}
	to = startOfDay(to)
	if from.IsZero() {
		from = to.AddDate(0, 0, -(defaultAnalyticsDays - 1))
	}
	from = startOfDay(from)

	// Both ends are inclusive.
	days := int(to.Sub(from)/(24*time.Hour)) + 1
	if from.After(to) || days > maxAnalyticsDays {
		return nil, ErrInvalidRange
	}

	link, err := s.linkRepo.GetByShortCode(ctx, code)
	if err != nil {
		return nil, storeErr(err)
	}
	if link.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	dims, err := s.breakdowns(ctx, repository.RollupQuery{ShortCode: code}, from, to)
	if err != nil {
		return nil, err
	}

	return &models.LinkAnalytics{
		ShortCode:       link.ShortCode,
		OriginalURL:     link.OriginalURL,
		TotalClicks:     link.ClickCount,
		StartDate:       from.Format(models.DayLayout),
		EndDate:         to.Format(models.DayLayout),
		ClicksByDate:    dailySeries(from, to, dims[models.DimensionDay], nil),
		ClicksByCountry: countryStats(dims[models.DimensionCountry]),
		DeviceStats:     deviceStats(dims[models.DimensionDevice]),
		BrowserStats:    browserStats(dims[models.DimensionBrowser]),
	}, nil
}

// breakdowns loads every rollup dimension for scope. The day dimension is
// limited to [from, to]; the others cover the whole history.
func (s *statsService) breakdowns(ctx context.Context, scope repository.RollupQuery, from, to time.Time) (map[string][]models.BucketCount, error) {
	result := make(map[string][]models.BucketCount, len(models.Dimensions))
	for _, dim := range models.Dimensions {
		q := scope
		q.Dimension = dim
		if dim == models.DimensionDay {
			q.From = from.Format(models.DayLayout)
			q.To = to.Format(models.DayLayout)
		}

		buckets, err := s.clickRepo.Rollups(ctx, q)
		if err != nil {
			s.logger.Warn("Failed to load rollups", zap.String("dimension", dim), zap.Error(err))
			return nil, storeErr(err)
		}
		result[dim] = buckets
	}
	return result, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dailySeries returns one zero-filled entry per day in [from, to], oldest first.
func dailySeries(from, to time.Time, clicks, urls []models.BucketCount) []models.DailyStat {
	clicksByDay := toMap(clicks)
	urlsByDay := toMap(urls)

	series := []models.DailyStat{}
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := day.Format(models.DayLayout)
		series = append(series, models.DailyStat{
			Date:   key,
			Clicks: clicksByDay[key],
			Urls:   urlsByDay[key],
		})
	}
	return series
}

func toMap(buckets []models.BucketCount) map[string]int64 {
	m := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		m[b.Bucket] += b.Count
	}
	return m
}

func percentages(buckets []models.BucketCount) []float64 {
	var total int64
	for _, b := range buckets {
		total += b.Count
	}
	out := make([]float64, len(buckets))
	if total == 0 {
		return out
	}
	for i, b := range buckets {
		out[i] = math.Round(float64(b.Count)*10000/float64(total)) / 100
	}
	return out
}

func countryStats(buckets []models.BucketCount) []models.CountryStat {
	pct := percentages(buckets)
	stats := make([]models.CountryStat, 0, len(buckets))
	for i, b := range buckets {
		stats = append(stats, models.CountryStat{Country: b.Bucket, Clicks: b.Count, Percentage: pct[i]})
	}
	return stats
}

func deviceStats(buckets []models.BucketCount) []models.DeviceStat {
	pct := percentages(buckets)
	stats := make([]models.DeviceStat, 0, len(buckets))
	for i, b := range buckets {
		stats = append(stats, models.DeviceStat{Device: b.Bucket, Count: b.Count, Percentage: pct[i]})
	}
	return stats
}

func browserStats(buckets []models.BucketCount) []models.BrowserStat {
	pct := percentages(buckets)
	stats := make([]models.BrowserStat, 0, len(buckets))
	for i, b := range buckets {
		stats = append(stats, models.BrowserStat{Browser: b.Bucket, Count: b.Count, Percentage: pct[i]})
	}
	return stats
}
