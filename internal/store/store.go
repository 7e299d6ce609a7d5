// Package store persists the per-customer health history, the alert log, and
// the admin-editable engine configuration. Two drivers are provided: SQLite
// for single-node deployments and Postgres for shared ones.
package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/config"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
)

// SnapshotPage is one page of a customer's snapshot history, newest first.
// NextCursor is an opaque cursor; empty means the history is exhausted.
type SnapshotPage struct {
	Snapshots  []model.HealthSnapshot `json:"snapshots"`
	NextCursor string                 `json:"next_cursor,omitempty"`
}

// Store defines the persistence interface for the health engine.
//
// Snapshot history is append-only: a snapshot is never mutated once written,
// and a write for an existing (customer, calculated_at) pair fails with
// DuplicateSnapshotError rather than silently double-writing.
type Store interface {
	// Snapshots
	AppendSnapshot(ctx context.Context, snap model.HealthSnapshot) error
	GetLatestSnapshot(ctx context.Context, customerID string) (*model.HealthSnapshot, error)
	ListSnapshots(ctx context.Context, customerID string, limit int, before string) (*SnapshotPage, error)

	// Alert log
	CreateAlert(ctx context.Context, event model.AlertEvent) error
	ListAlerts(ctx context.Context, customerID string, limit int) ([]model.AlertEvent, error)
	GetRecentAlertKeys(ctx context.Context, customerID string, since time.Time) (map[string]struct{}, error)

	// Admin-editable configuration. Getters return nil (no error) when no
	// record has been committed yet; callers fall back to file defaults.
	GetThresholdConfig(ctx context.Context) (*config.ThresholdConfig, error)
	SetThresholdConfig(ctx context.Context, cfg config.ThresholdConfig) error
	GetAlertRuleConfig(ctx context.Context) (*config.AlertRuleConfig, error)
	SetAlertRuleConfig(ctx context.Context, cfg config.AlertRuleConfig) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// DuplicateSnapshotError reports a snapshot write that collided with an
// existing snapshot for the same customer and timestamp.
type DuplicateSnapshotError struct {
	CustomerID   string
	CalculatedAt time.Time
}

func (e *DuplicateSnapshotError) Error() string {
	return fmt.Sprintf("snapshot already exists for customer %s at %s",
		e.CustomerID, e.CalculatedAt.Format(time.RFC3339))
}

// settings keys for the admin config records.
const (
	settingThresholds = "thresholds"
	settingAlertRules = "alert_rules"
)

// ErrBadCursor marks a pagination cursor the store cannot decode.
var ErrBadCursor = eris.New("store: invalid cursor")

// encodeCursor packs a snapshot timestamp into an opaque pagination cursor.
func encodeCursor(t time.Time) string {
	return base64.RawURLEncoding.EncodeToString([]byte(t.UTC().Format(time.RFC3339Nano)))
}

// decodeCursor unpacks a cursor produced by encodeCursor.
func decodeCursor(cursor string) (time.Time, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, ErrBadCursor
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, ErrBadCursor
	}
	return t, nil
}
