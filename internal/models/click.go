package models

import (
	"time"
)

// Unknown is the value of any derived click field that could not be determined.
const Unknown = "Unknown"

// Rollup dimensions.
const (
	DimensionDay     = "day"
	DimensionCountry = "country"
	DimensionDevice  = "device"
	DimensionBrowser = "browser"
)

// Dimensions lists every rollup dimension in a fixed order.
var Dimensions = []string{DimensionDay, DimensionCountry, DimensionDevice, DimensionBrowser}

// DayLayout is the bucket format of the day dimension.
const DayLayout = "2006-01-02"

// ClickEvent is one resolved redirect. ID is the idempotency key: applying the
// same ID twice must count once.
type ClickEvent struct {
	ID        string    `json:"id"`
	ShortCode string    `json:"shortCode"`
	ClickedAt time.Time `json:"clickedAt"`
	IPAddress string    `json:"ipAddress,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	Referer   string    `json:"referer,omitempty"`

	// Derived asynchronously, best-effort.
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	Device  string `json:"device,omitempty"`
	Browser string `json:"browser,omitempty"`
}

// Buckets returns the rollup buckets this event contributes to, keyed by dimension.
func (e *ClickEvent) Buckets() map[string]string {
	return map[string]string{
		DimensionDay:     e.ClickedAt.UTC().Format(DayLayout),
		DimensionCountry: orUnknown(e.Country),
		DimensionDevice:  orUnknown(e.Device),
		DimensionBrowser: orUnknown(e.Browser),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
