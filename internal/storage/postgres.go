package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/admetry-labs/admetry/common/events"
)

const queryTimeout = 5 * time.Second

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(ctx context.Context, connString string, maxConns int) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

// AppendEvent inserts the record, relying on the unique event_id index to
// make redeliveries no-ops.
func (s *PostgresStore) AppendEvent(ctx context.Context, rec *EventRecord) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO events (event_id, ts, source, funnel_stage, event_type, user_id, correlation_id, data, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (event_id) DO NOTHING
	`

	tag, err := s.pool.Exec(ctx, query,
		rec.EventID, rec.Timestamp, rec.Source, rec.FunnelStage,
		rec.EventType, rec.UserID, rec.CorrelationID, rec.Data,
	)
	if err != nil {
		return false, fmt.Errorf("appending event %s: %w", rec.EventID, err)
	}

	return tag.RowsAffected() == 1, nil
}

// UpsertProfile writes the snapshot atomically; the database serializes
// concurrent writers for the same (user_id, source) key.
func (s *PostgresStore) UpsertProfile(ctx context.Context, p *Profile) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		INSERT INTO user_profiles (user_id, source, snapshot, first_seen, updated_at)
		VALUES ($1, $2, $3, now(), now())
		ON CONFLICT (user_id, source) DO UPDATE
		SET snapshot = EXCLUDED.snapshot, updated_at = now()
	`

	if _, err := s.pool.Exec(ctx, query, p.UserID, p.Source, p.Snapshot); err != nil {
		return fmt.Errorf("upserting profile %s/%s: %w", p.UserID, p.Source, err)
	}

	return nil
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string, source events.Source) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `
		SELECT user_id, source, snapshot, first_seen, updated_at
		FROM user_profiles
		WHERE user_id = $1 AND source = $2
	`

	var p Profile
	err := s.pool.QueryRow(ctx, query, userID, source).Scan(
		&p.UserID, &p.Source, &p.Snapshot, &p.FirstSeen, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting profile %s/%s: %w", userID, source, err)
	}

	return &p, nil
}

func (s *PostgresStore) EventStats(ctx context.Context, f StatsFilter) ([]EventStat, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	where, args := buildEventFilter(f)
	query := fmt.Sprintf(`
		SELECT source, funnel_stage, event_type, COUNT(*)
		FROM events
		%s
		GROUP BY source, funnel_stage, event_type
		ORDER BY source, funnel_stage, event_type
	`, where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying event stats: %w", err)
	}
	defer rows.Close()

	var stats []EventStat
	for rows.Next() {
		var st EventStat
		if err := rows.Scan(&st.Source, &st.FunnelStage, &st.EventType, &st.Count); err != nil {
			return nil, fmt.Errorf("scanning event stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// RevenueStats sums purchase amounts. Only facebook checkout.complete and
// tiktok purchase events carry revenue; facebook rows are attributed to a
// campaign, tiktok rows are not.
func (s *PostgresStore) RevenueStats(ctx context.Context, f StatsFilter) ([]RevenueStat, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	conds := []string{
		`((source = 'facebook' AND event_type = 'checkout.complete')
		  OR (source = 'tiktok' AND event_type = 'purchase'))`,
		`data->'engagement'->>'purchaseAmount' IS NOT NULL`,
	}
	var args []any
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf("ts <= $%d", len(args)))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if f.CampaignID != "" {
		args = append(args, f.CampaignID)
		conds = append(conds, fmt.Sprintf("data->'engagement'->>'campaignId' = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT source,
		       CASE WHEN source = 'facebook' THEN data->'engagement'->>'campaignId' END AS campaign_id,
		       COUNT(*),
		       COALESCE(SUM((data->'engagement'->>'purchaseAmount')::numeric), 0)
		FROM events
		WHERE %s
		GROUP BY source, campaign_id
		ORDER BY source, campaign_id
	`, strings.Join(conds, " AND "))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying revenue stats: %w", err)
	}
	defer rows.Close()

	var stats []RevenueStat
	for rows.Next() {
		var st RevenueStat
		if err := rows.Scan(&st.Source, &st.CampaignID, &st.Transactions, &st.Revenue); err != nil {
			return nil, fmt.Errorf("scanning revenue stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *PostgresStore) Demographics(ctx context.Context, f StatsFilter) (*DemographicsReport, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	report := &DemographicsReport{}

	if f.Source == "" || f.Source == events.SourceFacebook {
		query := `
			SELECT CASE
				WHEN (snapshot->>'age')::int < 18 THEN '<18'
				WHEN (snapshot->>'age')::int BETWEEN 18 AND 24 THEN '18-24'
				WHEN (snapshot->>'age')::int BETWEEN 25 AND 34 THEN '25-34'
				WHEN (snapshot->>'age')::int BETWEEN 35 AND 44 THEN '35-44'
				WHEN (snapshot->>'age')::int BETWEEN 45 AND 54 THEN '45-54'
				ELSE '55+'
			END AS bucket, COUNT(*)
			FROM user_profiles
			WHERE source = 'facebook'
			GROUP BY bucket
			ORDER BY MIN((snapshot->>'age')::int)
		`
		buckets, err := s.queryBuckets(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("querying facebook demographics: %w", err)
		}
		report.FacebookAge = buckets

		genderQuery := `
			SELECT snapshot->>'gender' AS bucket, COUNT(*)
			FROM user_profiles
			WHERE source = 'facebook'
			GROUP BY bucket
			ORDER BY bucket
		`
		genders, err := s.queryBuckets(ctx, genderQuery)
		if err != nil {
			return nil, fmt.Errorf("querying facebook demographics: %w", err)
		}
		report.FacebookGender = genders
	}

	if f.Source == "" || f.Source == events.SourceTiktok {
		query := `
			SELECT CASE
				WHEN (snapshot->>'followers')::int < 100 THEN '<100'
				WHEN (snapshot->>'followers')::int < 1000 THEN '100-999'
				WHEN (snapshot->>'followers')::int < 10000 THEN '1K-9.9K'
				WHEN (snapshot->>'followers')::int < 100000 THEN '10K-99.9K'
				ELSE '100K+'
			END AS bucket, COUNT(*)
			FROM user_profiles
			WHERE source = 'tiktok'
			GROUP BY bucket
			ORDER BY MIN((snapshot->>'followers')::int)
		`
		buckets, err := s.queryBuckets(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("querying tiktok demographics: %w", err)
		}
		report.TiktokFollowers = buckets
	}

	return report, nil
}

func (s *PostgresStore) queryBuckets(ctx context.Context, query string) ([]BucketCount, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var buckets []BucketCount
	for rows.Next() {
		var b BucketCount
		if err := rows.Scan(&b.Bucket, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

func buildEventFilter(f StatsFilter) (string, []any) {
	var conds []string
	var args []any

	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("ts >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf("ts <= $%d", len(args)))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if f.FunnelStage != "" {
		args = append(args, f.FunnelStage)
		conds = append(conds, fmt.Sprintf("funnel_stage = $%d", len(args)))
	}
	if f.EventType != "" {
		args = append(args, f.EventType)
		conds = append(conds, fmt.Sprintf("event_type = $%d", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}
