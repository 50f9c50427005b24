package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/alert"
	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/SergeiKhy/url-analytics/internal/repository"
	"github.com/SergeiKhy/url-analytics/internal/shortcode"
	"go.uber.org/zap"
)

const (
	maxURLLength       = 2048
	defaultPageSize    = 10
	maxPageSize        = 100
	defaultMaxAttempts = 5
)

type LinkService interface {
	CreateLink(ctx context.Context, originalURL, ownerID string) (*models.Link, error)
	GetLink(ctx context.Context, code string) (*models.Link, error)
	DeleteLink(ctx context.Context, code, requesterID string) error
	ListLinks(ctx context.Context, ownerID string, page, size int) (*models.Page[models.Link], error)
}

type LinkServiceConfig struct {
	MaxAttempts    int
	BlockedDomains []string
}

type linkService struct {
	linkRepo  repository.LinkRepository
	resolver  *Resolver
	generator shortcode.Generator
	cfg       LinkServiceConfig
	alerts    alert.Reporter
	logger    *zap.Logger
}

func NewLinkService(
	linkRepo repository.LinkRepository,
	resolver *Resolver,
	generator shortcode.Generator,
	cfg LinkServiceConfig,
	alerts alert.Reporter,
	logger *zap.Logger,
) LinkService {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	blocked := make([]string, 0, len(cfg.BlockedDomains))
	for _, d := range cfg.BlockedDomains {
		blocked = append(blocked, strings.ToLower(strings.TrimPrefix(d, ".")))
	}
	cfg.BlockedDomains = blocked
	if alerts == nil {
		alerts = alert.Nop{}
	}

	return &linkService{
		linkRepo:  linkRepo,
		resolver:  resolver,
		generator: generator,
		cfg:       cfg,
		alerts:    alerts,
		logger:    logger,
	}
}

func (s *linkService) CreateLink(ctx context.Context, originalURL, ownerID string) (*models.Link, error) {
	u, err := validateURL(originalURL)
	if err != nil {
		return nil, err
	}

	if err := s.checkSpamDomain(u); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		code, err := s.generator.Generate()
		if err != nil {
			return nil, fmt.Errorf("failed to generate code: %w", err)
		}

		link := &models.Link{
			ShortCode:   code,
			OriginalURL: originalURL,
			OwnerID:     ownerID,
			CreatedAt:   time.Now().UTC(),
		}

		err = s.linkRepo.Create(ctx, link)
		if err == nil {
			s.resolver.Prime(ctx, link)
			s.logger.Info("Link created",
				zap.String("short_code", link.ShortCode),
				zap.String("owner_id", ownerID),
				zap.Int("attempt", attempt),
			)
			return link, nil
		}
		if !errors.Is(err, repository.ErrCodeExists) {
			return nil, storeErr(err)
		}

		s.logger.Debug("Short code collision", zap.String("short_code", code), zap.Int("attempt", attempt))
	}

	s.logger.Error("Short code space exhausted", zap.Int("attempts", s.cfg.MaxAttempts))
	s.alerts.Report(ctx, ErrCodeSpaceExhausted, map[string]string{"component": "link_service"})
	return nil, ErrCodeSpaceExhausted
}

func (s *linkService) GetLink(ctx context.Context, code string) (*models.Link, error) {
	return s.resolver.Resolve(ctx, code)
}

func (s *linkService) DeleteLink(ctx context.Context, code, requesterID string) error {
	// Ownership is checked against the store, never the cache.
	link, err := s.linkRepo.GetByShortCode(ctx, code)
	if err != nil {
		return storeErr(err)
	}
	if link.OwnerID != requesterID {
		return ErrForbidden
	}

	if err := s.linkRepo.Delete(ctx, code, requesterID); err != nil {
		return storeErr(err)
	}

	if err := s.resolver.Invalidate(ctx, code); err != nil {
		s.logger.Error("Failed to invalidate deleted link", zap.String("short_code", code), zap.Error(err))
		s.alerts.Report(ctx, err, map[string]string{"component": "resolver", "short_code": code})
	}

	s.logger.Info("Link deleted", zap.String("short_code", code), zap.String("owner_id", requesterID))
	return nil
}

func (s *linkService) ListLinks(ctx context.Context, ownerID string, page, size int) (*models.Page[models.Link], error) {
	page, size = normalizePage(page, size)

	total, err := s.linkRepo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, storeErr(err)
	}

	// Compared as page numbers: page*size overflows for huge pages.
	var links []models.Link
	if int64(page) < (total+int64(size)-1)/int64(size) {
		links, err = s.linkRepo.ListByOwner(ctx, ownerID, size, page*size)
		if err != nil {
			return nil, storeErr(err)
		}
	}

	return models.NewPage(links, total, page, size), nil
}

func normalizePage(page, size int) (int, int) {
	if page < 0 {
		page = 0
	}
	switch {
	case size <= 0:
		size = defaultPageSize
	case size > maxPageSize:
		size = maxPageSize
	}
	return page, size
}

// validateURL accepts absolute http(s) URLs with a host and no whitespace.
func validateURL(raw string) (*url.URL, error) {
	if raw == "" || len(raw) > maxURLLength || strings.ContainsAny(raw, " \t\r\n") {
		return nil, ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidURL
	}

	scheme := strings.ToLower(u.Scheme)
	if (scheme != "http" && scheme != "https") || u.Hostname() == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// checkSpamDomain rejects blacklisted hosts and their subdomains.
func (s *linkService) checkSpamDomain(u *url.URL) error {
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	for _, domain := range s.cfg.BlockedDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return ErrSpamDomain
		}
	}
	return nil
}
