package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/SergeiKhy/url-analytics/internal/models"
	"github.com/jackc/pgx/v5"
)

// RollupQuery selects rollup rows for one code, or for every live link of an
// owner when ShortCode is empty. From/To (YYYY-MM-DD, inclusive) only apply to
// the day dimension.
type RollupQuery struct {
	ShortCode string
	OwnerID   string
	Dimension string
	From      string
	To        string
}

type ClickRepository interface {
	// ApplyClick stores the event and updates counters in one transaction.
	// It reports false when the event id was already applied.
	ApplyClick(ctx context.Context, event *models.ClickEvent) (bool, error)
	Rollups(ctx context.Context, q RollupQuery) ([]models.BucketCount, error)
	PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// RebuildRollups recomputes click counts and rollups from retained raw events.
	RebuildRollups(ctx context.Context) error
}

type clickRepository struct {
	db *PostgresDB
}

func NewClickRepository(db *PostgresDB) ClickRepository {
	return &clickRepository{db: db}
}

const upsertRollup = `
	INSERT INTO click_rollups (short_code, dimension, bucket, count)
	VALUES ($1, $2, $3, 1)
	ON CONFLICT (short_code, dimension, bucket)
	DO UPDATE SET count = click_rollups.count + 1
`

func (r *clickRepository) ApplyClick(ctx context.Context, event *models.ClickEvent) (bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, wrap("failed to begin click tx", err)
	}
	defer tx.Rollback(ctx)

	buckets := event.Buckets()
	tag, err := tx.Exec(ctx, `
		INSERT INTO click_events
			(event_id, short_code, clicked_at, ip_address, user_agent, referer, country, city, device, browser)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
	`,
		event.ID,
		event.ShortCode,
		event.ClickedAt.UTC(),
		event.IPAddress,
		event.UserAgent,
		event.Referer,
		buckets[models.DimensionCountry],
		orUnknown(event.City),
		buckets[models.DimensionDevice],
		buckets[models.DimensionBrowser],
	)
	if err != nil {
		return false, wrap("failed to record click", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	batch := &pgx.Batch{}
	// Tombstoned links keep counting events already in flight.
	batch.Queue(`UPDATE links SET click_count = click_count + 1 WHERE short_code = $1`, event.ShortCode)
	for _, dim := range models.Dimensions {
		batch.Queue(upsertRollup, event.ShortCode, dim, buckets[dim])
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return false, wrap("failed to update click counters", err)
		}
	}
	if err := br.Close(); err != nil {
		return false, wrap("failed to update click counters", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, wrap("failed to commit click", err)
	}
	return true, nil
}

func (r *clickRepository) Rollups(ctx context.Context, q RollupQuery) ([]models.BucketCount, error) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	query := `SELECT r.bucket, SUM(r.count)::BIGINT AS total FROM click_rollups r`
	if q.ShortCode != "" {
		query += ` WHERE r.short_code = ` + arg(q.ShortCode)
	} else {
		query += ` JOIN links l ON l.short_code = r.short_code
			WHERE l.deleted_at IS NULL AND l.owner_id = ` + arg(q.OwnerID)
	}
	query += ` AND r.dimension = ` + arg(q.Dimension)
	if q.Dimension == models.DimensionDay {
		if q.From != "" {
			query += ` AND r.bucket >= ` + arg(q.From)
		}
		if q.To != "" {
			query += ` AND r.bucket <= ` + arg(q.To)
		}
	}
	query += ` GROUP BY r.bucket ORDER BY total DESC, r.bucket ASC`

	return queryBuckets(ctx, r.db, "failed to get click rollups", query, args...)
}

func (r *clickRepository) PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM click_events WHERE clicked_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, wrap("failed to purge click events", err)
	}
	return tag.RowsAffected(), nil
}

func (r *clickRepository) RebuildRollups(ctx context.Context) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return wrap("failed to begin rebuild tx", err)
	}
	defer tx.Rollback(ctx)

	statements := []string{
		`DELETE FROM click_rollups`,
		`INSERT INTO click_rollups (short_code, dimension, bucket, count)
			SELECT short_code, 'day', to_char(clicked_at AT TIME ZONE 'UTC', 'YYYY-MM-DD'), COUNT(*)
			FROM click_events GROUP BY 1, 3`,
		`INSERT INTO click_rollups (short_code, dimension, bucket, count)
			SELECT short_code, 'country', country, COUNT(*) FROM click_events GROUP BY 1, 3`,
		`INSERT INTO click_rollups (short_code, dimension, bucket, count)
			SELECT short_code, 'device', device, COUNT(*) FROM click_events GROUP BY 1, 3`,
		`INSERT INTO click_rollups (short_code, dimension, bucket, count)
			SELECT short_code, 'browser', browser, COUNT(*) FROM click_events GROUP BY 1, 3`,
		`UPDATE links l SET click_count = COALESCE(
			(SELECT COUNT(*) FROM click_events e WHERE e.short_code = l.short_code), 0)`,
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return wrap("failed to rebuild rollups", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrap("failed to commit rebuild", err)
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return models.Unknown
	}
	return s
}
