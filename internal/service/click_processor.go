package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/alert"
	"github.com/SergeiKhy/url-analytics/internal/enrich"
	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/SergeiKhy/url-analytics/internal/repository"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	defaultWorkerCount     = 4
	defaultChannelBuffer   = 1000
	defaultMaxRetryElapsed = 30 * time.Second
	applyTimeout           = 5 * time.Second
)

var ErrProcessorStopped = errors.New("click processor stopped")

// ClickRecorder accepts click events without blocking the redirect path.
type ClickRecorder interface {
	RecordClick(ctx context.Context, event *models.ClickEvent) error
}

type ClickProcessorConfig struct {
	Workers         int
	BufferSize      int
	MaxRetryElapsed time.Duration
}

// ClickProcessor applies click events to the store. Events are sharded by
// short code so each code is applied by a single worker in arrival order.
type ClickProcessor struct {
	clickRepo repository.ClickRepository
	deriver   *enrich.Deriver
	alerts    alert.Reporter
	logger    *zap.Logger
	cfg       ClickProcessorConfig

	shards []chan *models.ClickEvent
	wg     sync.WaitGroup

	mu      sync.RWMutex
	started bool
	stopped bool

	inFlight   atomic.Int64
	applied    atomic.Int64
	duplicates atomic.Int64
	dropped    atomic.Int64
	failed     atomic.Int64
}

func NewClickProcessor(
	clickRepo repository.ClickRepository,
	deriver *enrich.Deriver,
	cfg ClickProcessorConfig,
	alerts alert.Reporter,
	logger *zap.Logger,
) *ClickProcessor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkerCount
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultChannelBuffer
	}
	if cfg.MaxRetryElapsed <= 0 {
		cfg.MaxRetryElapsed = defaultMaxRetryElapsed
	}
	if deriver == nil {
		deriver = enrich.NewDeriver(nil, nil, logger)
	}
	if alerts == nil {
		alerts = alert.Nop{}
	}

	shards := make([]chan *models.ClickEvent, cfg.Workers)
	for i := range shards {
		shards[i] = make(chan *models.ClickEvent, cfg.BufferSize)
	}

	return &ClickProcessor{
		clickRepo: clickRepo,
		deriver:   deriver,
		alerts:    alerts,
		logger:    logger,
		cfg:       cfg,
		shards:    shards,
	}
}

func (p *ClickProcessor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	p.logger.Info("Starting click workers", zap.Int("count", len(p.shards)))
	for i, ch := range p.shards {
		p.wg.Add(1)
		go p.worker(i, ch)
	}
}

// Stop refuses new events and returns once every buffered event is applied.
func (p *ClickProcessor) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, ch := range p.shards {
		close(ch)
	}
	started := p.started
	p.mu.Unlock()

	if !started {
		return
	}

	p.logger.Info("Draining click processor", zap.Int("pending", p.Pending()))
	p.wg.Wait()
	p.logger.Info("Click processor stopped",
		zap.Int64("applied", p.applied.Load()),
		zap.Int64("duplicates", p.duplicates.Load()),
		zap.Int64("dropped", p.dropped.Load()),
		zap.Int64("failed", p.failed.Load()),
	)
}

func (p *ClickProcessor) worker(id int, ch <-chan *models.ClickEvent) {
	defer p.wg.Done()

	p.logger.Debug("Click worker started", zap.Int("id", id))
	for event := range ch {
		if err := p.Apply(context.Background(), event); err != nil {
			p.logger.Debug("Click not applied", zap.String("event_id", event.ID), zap.Error(err))
		}
		p.inFlight.Add(-1)
	}
	p.logger.Debug("Click worker stopped", zap.Int("id", id))
}

// RecordClick enqueues event and never blocks. A full shard drops the event.
func (p *ClickProcessor) RecordClick(ctx context.Context, event *models.ClickEvent) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrProcessorStopped
	}

	p.inFlight.Add(1)
	select {
	case p.shards[p.shardFor(event.ShortCode)] <- event:
		return nil
	default:
		p.inFlight.Add(-1)
		p.dropped.Add(1)
		p.logger.Warn("Click buffer full, event dropped",
			zap.String("short_code", event.ShortCode),
			zap.String("event_id", event.ID),
		)
		return nil
	}
}

// Apply derives and stores event synchronously, retrying transient failures.
// Applying an already applied event is a no-op.
func (p *ClickProcessor) Apply(ctx context.Context, event *models.ClickEvent) error {
	p.deriver.Derive(event)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.cfg.MaxRetryElapsed

	var applied bool
	op := func() error {
		opCtx, cancel := context.WithTimeout(ctx, applyTimeout)
		defer cancel()

		var err error
		applied, err = p.clickRepo.ApplyClick(opCtx, event)
		if err != nil && !errors.Is(err, repository.ErrTransient) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Debug("Retrying click",
			zap.String("event_id", event.ID),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		p.failed.Add(1)
		p.logger.Error("Click lost after retries",
			zap.String("short_code", event.ShortCode),
			zap.String("event_id", event.ID),
			zap.Error(err),
		)
		p.alerts.Report(ctx, err, map[string]string{"component": "click_processor"})
		return err
	}

	if applied {
		p.applied.Add(1)
	} else {
		p.duplicates.Add(1)
	}
	return nil
}

// Pending is the number of accepted events not yet applied.
func (p *ClickProcessor) Pending() int {
	return int(p.inFlight.Load())
}

// RebuildRollups recomputes counters and rollups from retained raw events.
func (p *ClickProcessor) RebuildRollups(ctx context.Context) error {
	p.logger.Info("Rebuilding click rollups")
	if err := p.clickRepo.RebuildRollups(ctx); err != nil {
		return storeErr(err)
	}
	p.logger.Info("Click rollups rebuilt")
	return nil
}

func (p *ClickProcessor) shardFor(code string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(code))
	return int(h.Sum32() % uint32(len(p.shards)))
}

func (p *ClickProcessor) ChannelStats() ChannelStats {
	stats := ChannelStats{
		WorkerCount: len(p.shards),
		Applied:     p.applied.Load(),
		Duplicates:  p.duplicates.Load(),
		Dropped:     p.dropped.Load(),
		Failed:      p.failed.Load(),
	}
	for _, ch := range p.shards {
		stats.BufferSize += cap(ch)
		stats.BufferUsed += len(ch)
	}
	return stats
}

type ChannelStats struct {
	BufferSize  int   `json:"buffer_size"`
	BufferUsed  int   `json:"buffer_used"`
	WorkerCount int   `json:"worker_count"`
	Applied     int64 `json:"applied"`
	Duplicates  int64 `json:"duplicates"`
	Dropped     int64 `json:"dropped"`
	Failed      int64 `json:"failed"`
}
