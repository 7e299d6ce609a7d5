package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/config"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it,
// which keeps the Postgres store unit-testable without a live database.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, cfg config.StoreConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if cfg.MaxConns > 0 {
		maxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		minConns = cfg.MinConns
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: new pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS health_snapshots (
	id            TEXT PRIMARY KEY,
	customer_id   TEXT NOT NULL,
	calculated_at TIMESTAMPTZ NOT NULL,
	overall_score INTEGER NOT NULL,
	factor_scores JSONB NOT NULL,
	tier          TEXT NOT NULL,
	trend         TEXT NOT NULL,
	score_change  INTEGER NOT NULL,
	UNIQUE(customer_id, calculated_at)
);

CREATE TABLE IF NOT EXISTS alerts (
	id          TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL,
	rule_type   TEXT NOT NULL,
	severity    TEXT NOT NULL,
	message     TEXT NOT NULL,
	dedup_key   TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS engine_settings (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_customer_time ON health_snapshots(customer_id, calculated_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_customer_time ON alerts(customer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(customer_id, dedup_key, created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) AppendSnapshot(ctx context.Context, snap model.HealthSnapshot) error {
	factorsJSON, err := json.Marshal(snap.FactorScores)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal factor scores")
	}

	id := snap.ID
	if id == "" {
		id = uuid.New().String()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO health_snapshots (id, customer_id, calculated_at, overall_score, factor_scores, tier, trend, score_change)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (customer_id, calculated_at) DO NOTHING`,
		id, snap.CustomerID, snap.CalculatedAt.UTC(), snap.OverallScore,
		string(factorsJSON), string(snap.Tier), string(snap.Trend), snap.Change,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: append snapshot for %s", snap.CustomerID)
	}
	if tag.RowsAffected() == 0 {
		return &DuplicateSnapshotError{CustomerID: snap.CustomerID, CalculatedAt: snap.CalculatedAt}
	}
	return nil
}

func (s *PostgresStore) GetLatestSnapshot(ctx context.Context, customerID string) (*model.HealthSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, customer_id, calculated_at, overall_score, factor_scores, tier, trend, score_change
		 FROM health_snapshots WHERE customer_id = $1
		 ORDER BY calculated_at DESC LIMIT 1`,
		customerID,
	)
	snap, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest snapshot for %s", customerID)
	}
	return snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context, customerID string, limit int, before string) (*SnapshotPage, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, customer_id, calculated_at, overall_score, factor_scores, tier, trend, score_change
	          FROM health_snapshots WHERE customer_id = $1`
	args := []any{customerID}

	if before != "" {
		cursorTime, err := decodeCursor(before)
		if err != nil {
			return nil, err
		}
		query += ` AND calculated_at < $2 ORDER BY calculated_at DESC LIMIT $3`
		args = append(args, cursorTime, limit+1)
	} else {
		query += ` ORDER BY calculated_at DESC LIMIT $2`
		args = append(args, limit+1)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list snapshots for %s", customerID)
	}
	defer rows.Close()

	var snaps []model.HealthSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		snaps = append(snaps, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots iterate")
	}

	page := &SnapshotPage{}
	if len(snaps) > limit {
		snaps = snaps[:limit]
		page.NextCursor = encodeCursor(snaps[len(snaps)-1].CalculatedAt)
	}
	page.Snapshots = snaps
	return page, nil
}

func (s *PostgresStore) CreateAlert(ctx context.Context, event model.AlertEvent) error {
	id := event.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, customer_id, rule_type, severity, message, dedup_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, event.CustomerID, string(event.RuleType), string(event.Severity),
		event.Message, event.DedupKey, event.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: create alert for %s", event.CustomerID)
}

func (s *PostgresStore) ListAlerts(ctx context.Context, customerID string, limit int) ([]model.AlertEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, customer_id, rule_type, severity, message, dedup_key, created_at
		 FROM alerts WHERE customer_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		customerID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list alerts for %s", customerID)
	}
	defer rows.Close()

	var events []model.AlertEvent
	for rows.Next() {
		var e model.AlertEvent
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.RuleType, &e.Severity, &e.Message, &e.DedupKey, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "postgres: list alerts iterate")
}

func (s *PostgresStore) GetRecentAlertKeys(ctx context.Context, customerID string, since time.Time) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT dedup_key FROM alerts WHERE customer_id = $1 AND created_at >= $2`,
		customerID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: recent alert keys for %s", customerID)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert key")
		}
		keys[key] = struct{}{}
	}
	return keys, eris.Wrap(rows.Err(), "postgres: recent alert keys iterate")
}

func (s *PostgresStore) GetThresholdConfig(ctx context.Context) (*config.ThresholdConfig, error) {
	var cfg config.ThresholdConfig
	ok, err := s.getSetting(ctx, settingThresholds, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

func (s *PostgresStore) SetThresholdConfig(ctx context.Context, cfg config.ThresholdConfig) error {
	return s.setSetting(ctx, settingThresholds, cfg)
}

func (s *PostgresStore) GetAlertRuleConfig(ctx context.Context) (*config.AlertRuleConfig, error) {
	var cfg config.AlertRuleConfig
	ok, err := s.getSetting(ctx, settingAlertRules, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

func (s *PostgresStore) SetAlertRuleConfig(ctx context.Context, cfg config.AlertRuleConfig) error {
	return s.setSetting(ctx, settingAlertRules, cfg)
}

func (s *PostgresStore) getSetting(ctx context.Context, key string, out any) (bool, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM engine_settings WHERE key = $1`, key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: get setting %s", key)
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, eris.Wrapf(err, "postgres: unmarshal setting %s", key)
	}
	return true, nil
}

func (s *PostgresStore) setSetting(ctx context.Context, key string, in any) error {
	value, err := json.Marshal(in)
	if err != nil {
		return eris.Wrapf(err, "postgres: marshal setting %s", key)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO engine_settings (key, value, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, string(value), time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: set setting %s", key)
}
