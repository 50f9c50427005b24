package models

// BucketCount is one row of a rollup dimension.
type BucketCount struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

type DailyStat struct {
	Date   string `json:"date"`
	Clicks int64  `json:"clicks"`
	Urls   int64  `json:"urls"`
}

type CountryStat struct {
	Country    string  `json:"country"`
	Clicks     int64   `json:"clicks"`
	Percentage float64 `json:"percentage"`
}

type DeviceStat struct {
	Device     string  `json:"device"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type BrowserStat struct {
	Browser    string  `json:"browser"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type DashboardStats struct {
	TotalUrls       int64         `json:"totalUrls"`
	TotalClicks     int64         `json:"totalClicks"`
	ClicksToday     int64         `json:"clicksToday"`
	UrlsToday       int64         `json:"urlsToday"`
	TopUrls         []Link        `json:"topUrls"`
	ClicksByDate    []DailyStat   `json:"clicksByDate"`
	ClicksByCountry []CountryStat `json:"clicksByCountry"`
	DeviceStats     []DeviceStat  `json:"deviceStats"`
	BrowserStats    []BrowserStat `json:"browserStats"`
}

type LinkAnalytics struct {
	ShortCode       string        `json:"shortCode"`
	OriginalURL     string        `json:"originalUrl"`
	TotalClicks     int64         `json:"totalClicks"`
	StartDate       string        `json:"startDate"`
	EndDate         string        `json:"endDate"`
	ClicksByDate    []DailyStat   `json:"clicksByDate"`
	ClicksByCountry []CountryStat `json:"clicksByCountry"`
	DeviceStats     []DeviceStat  `json:"deviceStats"`
	BrowserStats    []BrowserStat `json:"browserStats"`
}

// OwnerSummary holds the headline totals over an owner's live links.
type OwnerSummary struct {
	TotalUrls   int64
	TotalClicks int64
	UrlsSince   int64
}
