// Package enrich derives geo and device attributes for click events. Every
// lookup is best-effort: a failure leaves the field as models.Unknown.
package enrich

import (
	"errors"

	"github.com/SergeiKhy/url-analytics/internal/models"
	"go.uber.org/zap"
)

var ErrDerivation = errors.New("derivation failed")

type Location struct {
	Country string
	City    string
}

type Agent struct {
	Device  string
	Browser string
}

// GeoLocator maps an IP address to a location.
type GeoLocator interface {
	Lookup(ip string) (Location, error)
}

// UAParser maps a User-Agent header to device and browser.
type UAParser interface {
	Parse(ua string) (Agent, error)
}

// Deriver fills the derived fields of a click event.
type Deriver struct {
	geo    GeoLocator
	ua     UAParser
	logger *zap.Logger
}

func NewDeriver(geo GeoLocator, ua UAParser, logger *zap.Logger) *Deriver {
	if geo == nil {
		geo = NoopLocator{}
	}
	if ua == nil {
		ua = NewUserAgentParser()
	}
	return &Deriver{geo: geo, ua: ua, logger: logger}
}

// Derive never fails; fields it cannot resolve are set to models.Unknown.
func (d *Deriver) Derive(event *models.ClickEvent) {
	event.Country, event.City = models.Unknown, models.Unknown
	event.Device, event.Browser = models.Unknown, models.Unknown

	if loc, err := d.safeLookup(event.IPAddress); err != nil {
		d.logger.Debug("Geo lookup failed", zap.String("event_id", event.ID), zap.Error(err))
	} else {
		event.Country = nonEmpty(loc.Country)
		event.City = nonEmpty(loc.City)
	}

	if agent, err := d.safeParse(event.UserAgent); err != nil {
		d.logger.Debug("User agent parse failed", zap.String("event_id", event.ID), zap.Error(err))
	} else {
		event.Device = nonEmpty(agent.Device)
		event.Browser = nonEmpty(agent.Browser)
	}
}

// safeLookup shields the processor from panicking third-party readers.
func (d *Deriver) safeLookup(ip string) (loc Location, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrDerivation
		}
	}()
	return d.geo.Lookup(ip)
}

func (d *Deriver) safeParse(ua string) (agent Agent, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrDerivation
		}
	}()
	return d.ua.Parse(ua)
}

func nonEmpty(s string) string {
	if s == "" {
		return models.Unknown
	}
	return s
}
