package repository

import (
	"context"
	"errors"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/jackc/pgx/v5"
)

type LinkRepository interface {
	Create(ctx context.Context, link *models.Link) error
	// GetByShortCode returns live links only; tombstoned codes are ErrLinkNotFound.
	GetByShortCode(ctx context.Context, code string) (*models.Link, error)
	// Delete tombstones a live link owned by ownerID.
	Delete(ctx context.Context, code, ownerID string) error
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Link, error)
	CountByOwner(ctx context.Context, ownerID string) (int64, error)
	Summary(ctx context.Context, ownerID string, since time.Time) (*models.OwnerSummary, error)
	DailyCreated(ctx context.Context, ownerID string, from time.Time) ([]models.BucketCount, error)
	TopByOwner(ctx context.Context, ownerID string, n int) ([]models.Link, error)
}

type linkRepository struct {
	db *PostgresDB
}

func NewLinkRepository(db *PostgresDB) LinkRepository {
	return &linkRepository{db: db}
}

const linkColumns = `id, short_code, original_url, owner_id, click_count, created_at, deleted_at`

func scanLink(row pgx.Row) (*models.Link, error) {
	link := &models.Link{}
	err := row.Scan(
		&link.ID,
		&link.ShortCode,
		&link.OriginalURL,
		&link.OwnerID,
		&link.ClickCount,
		&link.CreatedAt,
		&link.DeletedAt,
	)
	return link, err
}

func (r *linkRepository) Create(ctx context.Context, link *models.Link) error {
	query := `
		INSERT INTO links (short_code, original_url, owner_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.Pool.QueryRow(
		ctx,
		query,
		link.ShortCode,
		link.OriginalURL,
		link.OwnerID,
		link.CreatedAt,
	).Scan(&link.ID, &link.CreatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrCodeExists
		}
		return wrap("failed to create link", err)
	}

	return nil
}

func (r *linkRepository) GetByShortCode(ctx context.Context, code string) (*models.Link, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE short_code = $1 AND deleted_at IS NULL`

	link, err := scanLink(r.db.Pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, wrap("failed to get link", err)
	}

	return link, nil
}

func (r *linkRepository) Delete(ctx context.Context, code, ownerID string) error {
	query := `
		UPDATE links SET deleted_at = NOW()
		WHERE short_code = $1 AND owner_id = $2 AND deleted_at IS NULL
	`

	result, err := r.db.Pool.Exec(ctx, query, code, ownerID)
	if err != nil {
		return wrap("failed to delete link", err)
	}

	if result.RowsAffected() == 0 {
		return ErrLinkNotFound
	}

	return nil
}

func (r *linkRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]models.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC, short_code ASC
		LIMIT $2 OFFSET $3
	`
	return r.queryLinks(ctx, "failed to list links", query, ownerID, limit, offset)
}

func (r *linkRepository) TopByOwner(ctx context.Context, ownerID string, n int) ([]models.Link, error) {
	query := `
		SELECT ` + linkColumns + `
		FROM links
		WHERE owner_id = $1 AND deleted_at IS NULL
		ORDER BY click_count DESC, created_at DESC, short_code ASC
		LIMIT $2
	`
	return r.queryLinks(ctx, "failed to get top links", query, ownerID, n)
}

func (r *linkRepository) queryLinks(ctx context.Context, op, query string, args ...any) ([]models.Link, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	links := []models.Link{}
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, wrap(op, err)
		}
		links = append(links, *link)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}

	return links, nil
}

func (r *linkRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	query := `SELECT COUNT(*) FROM links WHERE owner_id = $1 AND deleted_at IS NULL`

	var total int64
	if err := r.db.Pool.QueryRow(ctx, query, ownerID).Scan(&total); err != nil {
		return 0, wrap("failed to count links", err)
	}
	return total, nil
}

func (r *linkRepository) Summary(ctx context.Context, ownerID string, since time.Time) (*models.OwnerSummary, error) {
	query := `
		SELECT
			COUNT(*),
			COALESCE(SUM(click_count), 0),
			COUNT(*) FILTER (WHERE created_at >= $2)
		FROM links
		WHERE owner_id = $1 AND deleted_at IS NULL
	`

	summary := &models.OwnerSummary{}
	err := r.db.Pool.QueryRow(ctx, query, ownerID, since).Scan(
		&summary.TotalUrls,
		&summary.TotalClicks,
		&summary.UrlsSince,
	)
	if err != nil {
		return nil, wrap("failed to summarize links", err)
	}
	return summary, nil
}

func (r *linkRepository) DailyCreated(ctx context.Context, ownerID string, from time.Time) ([]models.BucketCount, error) {
	query := `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)
		FROM links
		WHERE owner_id = $1 AND deleted_at IS NULL AND created_at >= $2
		GROUP BY day
		ORDER BY day
	`
	return queryBuckets(ctx, r.db, "failed to get daily links", query, ownerID, from)
}

func queryBuckets(ctx context.Context, db *PostgresDB, op, query string, args ...any) ([]models.BucketCount, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer rows.Close()

	buckets := []models.BucketCount{}
	for rows.Next() {
		var b models.BucketCount
		if err := rows.Scan(&b.Bucket, &b.Count); err != nil {
			return nil, wrap(op, err)
		}
		buckets = append(buckets, b)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap(op, err)
	}
	return buckets, nil
}
