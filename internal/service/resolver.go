package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/SergeiKhy/url-analytics/internal/repository"
	"github.com/SergeiKhy/url-analytics/internal/shortcode"
	"github.com/cenkalti/backoff/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultLocalSize     = 10000
	defaultLookupTimeout = 50 * time.Millisecond
	defaultRedisTTL      = 24 * time.Hour
)

type ResolverConfig struct {
	CodeLength    int
	LocalSize     int
	RedisTTL      time.Duration
	LookupTimeout time.Duration
}

// Resolver maps short codes to links through an in-process LRU, Redis and
// finally Postgres. Mappings are immutable until deleted, so cached entries
// only go stale through Invalidate.
type Resolver struct {
	links  repository.LinkRepository
	cache  repository.CacheRepository
	local  *lru.Cache[string, *models.Link]
	group  singleflight.Group
	cfg    ResolverConfig
	logger *zap.Logger

	mu          sync.Mutex
	invalidated map[string]time.Time
}

func NewResolver(links repository.LinkRepository, cache repository.CacheRepository, cfg ResolverConfig, logger *zap.Logger) (*Resolver, error) {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = shortcode.DefaultLength
	}
	if cfg.LocalSize <= 0 {
		cfg.LocalSize = defaultLocalSize
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = defaultLookupTimeout
	}
	if cfg.RedisTTL <= 0 {
		cfg.RedisTTL = defaultRedisTTL
	}

	local, err := lru.New[string, *models.Link](cfg.LocalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}

	return &Resolver{
		links:       links,
		cache:       cache,
		local:       local,
		cfg:         cfg,
		logger:      logger,
		invalidated: make(map[string]time.Time),
	}, nil
}

// Resolve returns the live link for code. Unknown, deleted and malformed codes,
// as well as lookups that fail or exceed the lookup timeout, all yield
// ErrLinkNotFound.
func (r *Resolver) Resolve(ctx context.Context, code string) (*models.Link, error) {
	if !shortcode.Valid(code, r.cfg.CodeLength) {
		return nil, ErrLinkNotFound
	}

	if link, ok := r.local.Get(code); ok {
		return link, nil
	}

	ch := r.group.DoChan(code, func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.LookupTimeout)
		defer cancel()
		return r.load(loadCtx, code)
	})

	timer := time.NewTimer(r.cfg.LookupTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err != nil {
			if !errors.Is(res.Err, ErrLinkNotFound) {
				r.logger.Warn("Link lookup failed", zap.String("short_code", code), zap.Error(res.Err))
			}
			return nil, ErrLinkNotFound
		}
		return res.Val.(*models.Link), nil
	case <-timer.C:
		r.logger.Warn("Link lookup timed out", zap.String("short_code", code), zap.Duration("timeout", r.cfg.LookupTimeout))
		return nil, ErrLinkNotFound
	case <-ctx.Done():
		return nil, ErrLinkNotFound
	}
}

func (r *Resolver) load(ctx context.Context, code string) (*models.Link, error) {
	started := time.Now()

	link, err := r.cache.Get(ctx, code)
	if err == nil {
		r.remember(link, started)
		return link, nil
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		r.logger.Debug("Redis lookup failed", zap.String("short_code", code), zap.Error(err))
	}

	link, err = r.links.GetByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}

	if r.remember(link, started) {
		if err := r.cache.Set(ctx, link, r.cfg.RedisTTL); err != nil {
			r.logger.Debug("Failed to cache link", zap.String("short_code", code), zap.Error(err))
		}
	}
	return link, nil
}

// remember stores link locally unless it was invalidated after the lookup
// that produced it started.
func (r *Resolver) remember(link *models.Link, lookupStarted time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if at, ok := r.invalidated[link.ShortCode]; ok && !at.Before(lookupStarted) {
		return false
	}
	r.local.Add(link.ShortCode, link)
	return true
}

// Prime caches a freshly created link.
func (r *Resolver) Prime(ctx context.Context, link *models.Link) {
	r.local.Add(link.ShortCode, link)
	if err := r.cache.Set(ctx, link, r.cfg.RedisTTL); err != nil {
		r.logger.Debug("Failed to prime cache", zap.String("short_code", link.ShortCode), zap.Error(err))
	}
}

// Evict drops code from the local cache only. Invalidation messages from other
// instances land here.
func (r *Resolver) Evict(code string) {
	r.mu.Lock()
	r.invalidated[code] = time.Now()
	r.local.Remove(code)
	r.pruneInvalidated()
	r.mu.Unlock()
}

// Invalidate removes code from every cache level and tells other instances to
// do the same.
func (r *Resolver) Invalidate(ctx context.Context, code string) error {
	r.Evict(code)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxElapsedTime = 2 * time.Second
	err := backoff.Retry(func() error {
		return r.cache.Delete(ctx, code)
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("failed to delete cached link: %w", err)
	}

	// A lookup that read the row just before the tombstone may still write it
	// back to Redis; it cannot outlive the lookup timeout.
	time.AfterFunc(2*r.cfg.LookupTimeout, func() {
		if err := r.cache.Delete(context.Background(), code); err != nil {
			r.logger.Warn("Delayed cache delete failed", zap.String("short_code", code), zap.Error(err))
		}
	})

	if err := r.cache.PublishInvalidation(ctx, code); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// ListenInvalidations evicts codes deleted on other instances until ctx is done.
func (r *Resolver) ListenInvalidations(ctx context.Context) error {
	return r.cache.SubscribeInvalidations(ctx, r.Evict)
}

// pruneInvalidated forgets markers older than any lookup still in flight.
func (r *Resolver) pruneInvalidated() {
	horizon := time.Now().Add(-10 * r.cfg.LookupTimeout)
	for code, at := range r.invalidated {
		if at.Before(horizon) {
			delete(r.invalidated, code)
		}
	}
}
