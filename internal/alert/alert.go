// Package alert reports operator-facing failures to Sentry.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Reporter raises an alert for err. Implementations must not block the caller.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// Nop drops every alert. Used when no DSN is configured and in tests.
type Nop struct{}

func (Nop) Report(context.Context, error, map[string]string) {}

type SentryReporter struct {
	logger *zap.Logger
}

// NewSentry initializes the global Sentry client. The returned flush func
// should run on shutdown.
func NewSentry(dsn, environment string, logger *zap.Logger) (*SentryReporter, func(), error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init sentry: %w", err)
	}

	flush := func() { sentry.Flush(2 * time.Second) }
	return &SentryReporter{logger: logger}, flush, nil
}

func (r *SentryReporter) Report(ctx context.Context, err error, tags map[string]string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		if id := hub.CaptureException(err); id != nil {
			r.logger.Debug("Alert sent", zap.String("event_id", string(*id)))
		}
	})
}
