package enrich

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// NoopLocator is used when no GeoIP database is configured.
type NoopLocator struct{}

func (NoopLocator) Lookup(string) (Location, error) {
	return Location{}, fmt.Errorf("%w: no geoip database", ErrDerivation)
}

// MaxMindLocator reads a GeoLite2/GeoIP2 City database.
type MaxMindLocator struct {
	reader *geoip2.Reader
}

func OpenMaxMind(path string) (*MaxMindLocator, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geoip database: %w", err)
	}
	return &MaxMindLocator{reader: reader}, nil
}

func (l *MaxMindLocator) Lookup(ip string) (Location, error) {
	parsed, err := publicIP(ip)
	if err != nil {
		return Location{}, err
	}

	record, err := l.reader.City(parsed)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrDerivation, err)
	}

	loc := Location{
		Country: record.Country.Names["en"],
		City:    record.City.Names["en"],
	}
	if loc.Country == "" {
		loc.Country = record.Country.IsoCode
	}
	if loc.Country == "" {
		return Location{}, fmt.Errorf("%w: %s not in database", ErrDerivation, ip)
	}
	return loc, nil
}

func (l *MaxMindLocator) Close() error {
	return l.reader.Close()
}

// publicIP rejects addresses that cannot carry geo information.
func publicIP(ip string) (net.IP, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: invalid ip %q", ErrDerivation, ip)
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast() {
		return nil, fmt.Errorf("%w: non-routable ip %q", ErrDerivation, ip)
	}
	return parsed, nil
}
