package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/config"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS health_snapshots (
	id            TEXT PRIMARY KEY,
	customer_id   TEXT NOT NULL,
	calculated_at DATETIME NOT NULL,
	overall_score INTEGER NOT NULL,
	factor_scores TEXT NOT NULL,
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
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS engine_settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_customer_time ON health_snapshots(customer_id, calculated_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_customer_time ON alerts(customer_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(customer_id, dedup_key, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) AppendSnapshot(ctx context.Context, snap model.HealthSnapshot) error {
	factorsJSON, err := json.Marshal(snap.FactorScores)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal factor scores")
	}

	id := snap.ID
	if id == "" {
		id = uuid.New().String()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO health_snapshots (id, customer_id, calculated_at, overall_score, factor_scores, tier, trend, score_change)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(customer_id, calculated_at) DO NOTHING`,
		id, snap.CustomerID, snap.CalculatedAt.UTC(), snap.OverallScore,
		string(factorsJSON), string(snap.Tier), string(snap.Trend), snap.Change,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: append snapshot for %s", snap.CustomerID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return &DuplicateSnapshotError{CustomerID: snap.CustomerID, CalculatedAt: snap.CalculatedAt}
	}
	return nil
}

func (s *SQLiteStore) GetLatestSnapshot(ctx context.Context, customerID string) (*model.HealthSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, customer_id, calculated_at, overall_score, factor_scores, tier, trend, score_change
		 FROM health_snapshots WHERE customer_id = ?
		 ORDER BY calculated_at DESC LIMIT 1`,
		customerID,
	)
	snap, err := scanSnapshot(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest snapshot for %s", customerID)
	}
	return snap, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context, customerID string, limit int, before string) (*SnapshotPage, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, customer_id, calculated_at, overall_score, factor_scores, tier, trend, score_change
	          FROM health_snapshots WHERE customer_id = ?`
	args := []any{customerID}

	if before != "" {
		cursorTime, err := decodeCursor(before)
		if err != nil {
			return nil, err
		}
		query += ` AND calculated_at < ?`
		args = append(args, cursorTime)
	}

	// Fetch one extra row to decide whether a next page exists.
	query += ` ORDER BY calculated_at DESC LIMIT ?`
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list snapshots for %s", customerID)
	}
	defer rows.Close()

	var snaps []model.HealthSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		snaps = append(snaps, *snap)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots iterate")
	}

	page := &SnapshotPage{}
	if len(snaps) > limit {
		snaps = snaps[:limit]
		page.NextCursor = encodeCursor(snaps[len(snaps)-1].CalculatedAt)
	}
	page.Snapshots = snaps
	return page, nil
}

func (s *SQLiteStore) CreateAlert(ctx context.Context, event model.AlertEvent) error {
	id := event.ID
	if id == "" {
		id = uuid.New().String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, customer_id, rule_type, severity, message, dedup_key, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, event.CustomerID, string(event.RuleType), string(event.Severity),
		event.Message, event.DedupKey, event.CreatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: create alert for %s", event.CustomerID)
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, customerID string, limit int) ([]model.AlertEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, customer_id, rule_type, severity, message, dedup_key, created_at
		 FROM alerts WHERE customer_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		customerID, limit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list alerts for %s", customerID)
	}
	defer rows.Close()

	var events []model.AlertEvent
	for rows.Next() {
		var e model.AlertEvent
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.RuleType, &e.Severity, &e.Message, &e.DedupKey, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		events = append(events, e)
	}
	return events, eris.Wrap(rows.Err(), "sqlite: list alerts iterate")
}

func (s *SQLiteStore) GetRecentAlertKeys(ctx context.Context, customerID string, since time.Time) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT dedup_key FROM alerts WHERE customer_id = ? AND created_at >= ?`,
		customerID, since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: recent alert keys for %s", customerID)
	}
	defer rows.Close()

	keys := make(map[string]struct{})
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert key")
		}
		keys[key] = struct{}{}
	}
	return keys, eris.Wrap(rows.Err(), "sqlite: recent alert keys iterate")
}

func (s *SQLiteStore) GetThresholdConfig(ctx context.Context) (*config.ThresholdConfig, error) {
	var cfg config.ThresholdConfig
	ok, err := s.getSetting(ctx, settingThresholds, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

func (s *SQLiteStore) SetThresholdConfig(ctx context.Context, cfg config.ThresholdConfig) error {
	return s.setSetting(ctx, settingThresholds, cfg)
}

func (s *SQLiteStore) GetAlertRuleConfig(ctx context.Context) (*config.AlertRuleConfig, error) {
	var cfg config.AlertRuleConfig
	ok, err := s.getSetting(ctx, settingAlertRules, &cfg)
	if err != nil || !ok {
		return nil, err
	}
	return &cfg, nil
}

func (s *SQLiteStore) SetAlertRuleConfig(ctx context.Context, cfg config.AlertRuleConfig) error {
	return s.setSetting(ctx, settingAlertRules, cfg)
}

func (s *SQLiteStore) getSetting(ctx context.Context, key string, out any) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM engine_settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: get setting %s", key)
	}
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return false, eris.Wrapf(err, "sqlite: unmarshal setting %s", key)
	}
	return true, nil
}

func (s *SQLiteStore) setSetting(ctx context.Context, key string, in any) error {
	value, err := json.Marshal(in)
	if err != nil {
		return eris.Wrapf(err, "sqlite: marshal setting %s", key)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO engine_settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set setting %s", key)
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scannable) (*model.HealthSnapshot, error) {
	var snap model.HealthSnapshot
	var factorsJSON string

	err := row.Scan(&snap.ID, &snap.CustomerID, &snap.CalculatedAt, &snap.OverallScore,
		&factorsJSON, &snap.Tier, &snap.Trend, &snap.Change)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(factorsJSON), &snap.FactorScores); err != nil {
		return nil, eris.Wrap(err, "unmarshal factor scores")
	}
	snap.CalculatedAt = snap.CalculatedAt.UTC()
	return &snap, nil
}
