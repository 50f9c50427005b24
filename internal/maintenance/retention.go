// Package maintenance runs periodic housekeeping jobs.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	DefaultSchedule = "0 3 * * *"
	DefaultWindow   = 90 * 24 * time.Hour
)

// EventPurger deletes raw click events older than cutoff.
type EventPurger interface {
	PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler purges raw click events past the retention window. Rollups and
// click counts are not touched.
type Scheduler struct {
	c        *cron.Cron
	log      *zap.Logger
	purger   EventPurger
	schedule string
	window   time.Duration
	now      func() time.Time
}

func NewScheduler(log *zap.Logger, purger EventPurger, schedule string, window time.Duration) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if window <= 0 {
		window = DefaultWindow
	}
	// Standard 5-field syntax, no seconds.
	c := cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)))
	return &Scheduler{
		c:        c,
		log:      log,
		purger:   purger,
		schedule: schedule,
		window:   window,
		now:      time.Now,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.c.AddFunc(s.schedule, func() {
		if _, err := s.PurgeExpired(ctx); err != nil {
			s.log.Error("Retention purge failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.schedule, err)
	}
	s.c.Start()
	s.log.Info("Retention scheduler started",
		zap.String("schedule", s.schedule),
		zap.Duration("window", s.window),
	)

	go func() {
		<-ctx.Done()
		<-s.c.Stop().Done()
	}()
	return nil
}

// PurgeExpired runs one purge immediately.
func (s *Scheduler) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.window)
	deleted, err := s.purger.PurgeEventsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("Purged expired click events", zap.Int64("count", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted, nil
}
