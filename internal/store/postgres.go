package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mrmoe28/permitscout/internal/permits"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool behind the audit store.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Postgres implements AcquisitionStore on a pgx pool. Expected columns:
// id text primary key, jurisdiction_id text, jurisdiction_name text,
// confidence double precision, data_quality double precision,
// ai_parsed boolean, permit_count int, form_count int, payload jsonb,
// acquired_at timestamptz.
type Postgres struct {
	pool  pgxPool
	table string
	sb    sq.StatementBuilderType
}

// NewPostgres creates a Postgres-backed acquisition store using the provided
// config.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "acquisitions"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{
		pool:  pool,
		table: table,
		sb:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// NewPostgresWithPool constructs a store from an existing pool (primarily
// for testing).
func NewPostgresWithPool(pool pgxPool, table string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "acquisitions"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{
		pool:  pool,
		table: table,
		sb:    sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}, nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Save upserts the result keyed by its ID.
func (s *Postgres) Save(ctx context.Context, res *permits.AcquisitionResult) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("acquisition store is not configured")
	}
	if res == nil || res.ID == "" {
		return fmt.Errorf("result id is required")
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	var jurisdictionID, jurisdictionName string
	if res.Jurisdiction != nil {
		jurisdictionID = res.Jurisdiction.ID
		jurisdictionName = res.Jurisdiction.Name
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	jurisdiction_id,
	jurisdiction_name,
	confidence,
	data_quality,
	ai_parsed,
	permit_count,
	form_count,
	payload,
	acquired_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (id) DO UPDATE SET
	jurisdiction_id = EXCLUDED.jurisdiction_id,
	jurisdiction_name = EXCLUDED.jurisdiction_name,
	confidence = EXCLUDED.confidence,
	data_quality = EXCLUDED.data_quality,
	ai_parsed = EXCLUDED.ai_parsed,
	permit_count = EXCLUDED.permit_count,
	form_count = EXCLUDED.form_count,
	payload = EXCLUDED.payload,
	acquired_at = EXCLUDED.acquired_at`, s.table)

	args := []any{
		res.ID,
		jurisdictionID,
		jurisdictionName,
		res.Confidence,
		res.DataQuality,
		res.AIParsed,
		len(res.Permits),
		len(res.Forms),
		payload,
		res.AcquiredAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert acquisition: %w", err)
	}
	return nil
}

// Get loads one result by ID.
func (s *Postgres) Get(ctx context.Context, id string) (*permits.AcquisitionResult, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("acquisition store is not configured")
	}
	if id == "" {
		return nil, fmt.Errorf("acquisition id is required")
	}

	query := fmt.Sprintf(`SELECT payload FROM %s WHERE id = $1`, s.table)
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, id).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get acquisition: %w", err)
	}

	var res permits.AcquisitionResult
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("unmarshal acquisition %s: %w", id, err)
	}
	return &res, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// List returns summaries matching the filter, newest first.
func (s *Postgres) List(ctx context.Context, filter ListFilter) ([]AcquisitionSummary, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("acquisition store is not configured")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	qb := s.sb.
		Select("id", "jurisdiction_name", "confidence", "permit_count", "form_count", "acquired_at").
		From(s.table).
		OrderBy("acquired_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))
	if filter.JurisdictionID != "" {
		qb = qb.Where(sq.Eq{"jurisdiction_id": filter.JurisdictionID})
	}
	if filter.MinConfidence > 0 {
		qb = qb.Where(sq.GtOrEq{"confidence": filter.MinConfidence})
	}
	if !filter.Since.IsZero() {
		qb = qb.Where(sq.GtOrEq{"acquired_at": filter.Since})
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list acquisitions: %w", err)
	}
	defer rows.Close()

	var out []AcquisitionSummary
	for rows.Next() {
		var sum AcquisitionSummary
		if err := rows.Scan(
			&sum.ID,
			&sum.Jurisdiction,
			&sum.Confidence,
			&sum.Permits,
			&sum.Forms,
			&sum.AcquiredAt,
		); err != nil {
			return nil, fmt.Errorf("scan acquisition row: %w", err)
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
