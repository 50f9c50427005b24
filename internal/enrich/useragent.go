package enrich

import (
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

const (
	DeviceDesktop = "Desktop"
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceBot     = "Bot"
)

type UserAgentParser struct{}

func NewUserAgentParser() *UserAgentParser {
	return &UserAgentParser{}
}

func (p *UserAgentParser) Parse(raw string) (Agent, error) {
	if strings.TrimSpace(raw) == "" {
		return Agent{}, fmt.Errorf("%w: empty user agent", ErrDerivation)
	}

	ua := useragent.New(raw)
	browser, _ := ua.Browser()

	return Agent{
		Device:  deviceOf(ua),
		Browser: browser,
	}, nil
}

func deviceOf(ua *useragent.UserAgent) string {
	switch {
	case ua.Bot():
		return DeviceBot
	case ua.Platform() == "iPad":
		return DeviceTablet
	case ua.Mobile():
		return DeviceMobile
	case strings.HasPrefix(ua.OS(), "Android"):
		// Android without the "Mobile" token is a tablet.
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}
