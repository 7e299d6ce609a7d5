package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/config"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func snapshotAt(customerID string, at time.Time, score int) model.HealthSnapshot {
	return model.HealthSnapshot{
		CustomerID:   customerID,
		CalculatedAt: at,
		OverallScore: score,
		FactorScores: model.FactorScoreSet{model.FactorUsage: float64(score)},
		Tier:         model.TierGood,
		Trend:        model.TrendStable,
		Change:       0,
	}
}

// --- Snapshots ---

func TestSQLite_AppendAndGetLatest(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendSnapshot(ctx, snapshotAt("cust-1", base, 70)))
	require.NoError(t, st.AppendSnapshot(ctx, snapshotAt("cust-1", base.Add(time.Hour), 75)))

	latest, err := st.GetLatestSnapshot(ctx, "cust-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 75, latest.OverallScore)
	assert.True(t, latest.CalculatedAt.Equal(base.Add(time.Hour)))
	assert.Equal(t, model.FactorScoreSet{model.FactorUsage: 75}, latest.FactorScores)
}

func TestSQLite_GetLatest_NoHistory(t *testing.T) {
	st := newTestSQLiteStore(t)

	latest, err := st.GetLatestSnapshot(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSQLite_Append_DuplicateRejected(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendSnapshot(ctx, snapshotAt("cust-1", at, 70)))

	err := st.AppendSnapshot(ctx, snapshotAt("cust-1", at, 99))
	require.Error(t, err)
	var dup *DuplicateSnapshotError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "cust-1", dup.CustomerID)

	// The original snapshot is untouched.
	latest, err := st.GetLatestSnapshot(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, 70, latest.OverallScore)
}

func TestSQLite_Append_SameTimeDifferentCustomers(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendSnapshot(ctx, snapshotAt("cust-1", at, 70)))
	require.NoError(t, st.AppendSnapshot(ctx, snapshotAt("cust-2", at, 30)))
}

func TestSQLite_ListSnapshots_NewestFirstWithCursor(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendSnapshot(ctx, snapshotAt("cust-1", base.Add(time.Duration(i)*time.Hour), 50+i)))
	}

	page, err := st.ListSnapshots(ctx, "cust-1", 2, "")
	require.NoError(t, err)
	require.Len(t, page.Snapshots, 2)
	assert.Equal(t, 54, page.Snapshots[0].OverallScore)
	assert.Equal(t, 53, page.Snapshots[1].OverallScore)
	require.NotEmpty(t, page.NextCursor)

	// Resume from the cursor.
	page2, err := st.ListSnapshots(ctx, "cust-1", 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page2.Snapshots, 2)
	assert.Equal(t, 52, page2.Snapshots[0].OverallScore)
	assert.Equal(t, 51, page2.Snapshots[1].OverallScore)

	// Last page has no cursor.
	page3, err := st.ListSnapshots(ctx, "cust-1", 2, page2.NextCursor)
	require.NoError(t, err)
	require.Len(t, page3.Snapshots, 1)
	assert.Equal(t, 50, page3.Snapshots[0].OverallScore)
	assert.Empty(t, page3.NextCursor)
}

func TestSQLite_ListSnapshots_BadCursor(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.ListSnapshots(context.Background(), "cust-1", 10, "not-a-cursor")
	require.ErrorIs(t, err, ErrBadCursor)
}

func TestSQLite_ReadAfterWrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendSnapshot(ctx, snapshotAt("cust-1", at, 42)))

	// The just-written snapshot is immediately visible.
	latest, err := st.GetLatestSnapshot(ctx, "cust-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 42, latest.OverallScore)
}

// --- Alerts ---

func TestSQLite_CreateAndListAlerts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, st.CreateAlert(ctx, model.AlertEvent{
		CustomerID: "cust-1",
		RuleType:   model.RuleHealthDrop,
		Severity:   model.SeverityMedium,
		Message:    "health score dropped 7 points to 75",
		DedupKey:   "key-1",
		CreatedAt:  now,
	}))
	require.NoError(t, st.CreateAlert(ctx, model.AlertEvent{
		CustomerID: "cust-1",
		RuleType:   model.RuleLowCSAT,
		Severity:   model.SeverityMedium,
		Message:    "latest CSAT 40 below threshold 50",
		DedupKey:   "key-2",
		CreatedAt:  now.Add(time.Minute),
	}))

	alerts, err := st.ListAlerts(ctx, "cust-1", 10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, model.RuleLowCSAT, alerts[0].RuleType) // newest first
	assert.Equal(t, model.RuleHealthDrop, alerts[1].RuleType)
}

func TestSQLite_GetRecentAlertKeys_WindowedByTime(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	old := model.AlertEvent{CustomerID: "cust-1", RuleType: model.RuleInactivity,
		Severity: model.SeverityMedium, Message: "m", DedupKey: "old-key", CreatedAt: now.AddDate(0, 0, -10)}
	recent := model.AlertEvent{CustomerID: "cust-1", RuleType: model.RuleInactivity,
		Severity: model.SeverityMedium, Message: "m", DedupKey: "recent-key", CreatedAt: now.AddDate(0, 0, -2)}
	other := model.AlertEvent{CustomerID: "cust-2", RuleType: model.RuleInactivity,
		Severity: model.SeverityMedium, Message: "m", DedupKey: "other-key", CreatedAt: now}

	require.NoError(t, st.CreateAlert(ctx, old))
	require.NoError(t, st.CreateAlert(ctx, recent))
	require.NoError(t, st.CreateAlert(ctx, other))

	keys, err := st.GetRecentAlertKeys(ctx, "cust-1", now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Contains(t, keys, "recent-key")
	assert.NotContains(t, keys, "old-key")
	assert.NotContains(t, keys, "other-key")
}

// --- Settings ---

func TestSQLite_ThresholdConfig_Roundtrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	// Unset: nil, no error.
	cfg, err := st.GetThresholdConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	want := config.ThresholdConfig{WarningBoundary: 65, CriticalBoundary: 35}
	require.NoError(t, st.SetThresholdConfig(ctx, want))

	cfg, err = st.GetThresholdConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, want, *cfg)

	// Overwrite commits the newest values.
	want.WarningBoundary = 70
	require.NoError(t, st.SetThresholdConfig(ctx, want))
	cfg, err = st.GetThresholdConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, 70, cfg.WarningBoundary)
}

func TestSQLite_AlertRuleConfig_Roundtrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cfg, err := st.GetAlertRuleConfig(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg)

	want := config.AlertRuleConfig{
		HealthDropEnabled:        true,
		HealthDropDeltaThreshold: 5,
		LowCSATEnabled:           true,
		LowCSATThreshold:         45,
	}
	require.NoError(t, st.SetAlertRuleConfig(ctx, want))

	cfg, err = st.GetAlertRuleConfig(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, want, *cfg)
}
