package model

import "time"

// Factor identifies one of the five input sub-scores feeding the overall
// health score.
type Factor string

const (
	FactorUsage      Factor = "usage"
	FactorEngagement Factor = "engagement"
	FactorCSAT       Factor = "csat"
	FactorSupport    Factor = "support"
	FactorAdoption   Factor = "adoption"
)

// Factors returns the canonical factor list in a stable order.
func Factors() []Factor {
	return []Factor{FactorUsage, FactorEngagement, FactorCSAT, FactorSupport, FactorAdoption}
}

// FactorScoreSet maps factor names to scores in [0,100]. Sets supplied by the
// upstream provider may be partial; missing factors are substituted with the
// configured neutral default before weighting.
type FactorScoreSet map[Factor]float64

// Trend labels the score movement between two consecutive snapshots.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Tier is the four-way risk classification derived from the overall score.
type Tier string

const (
	TierExcellent Tier = "excellent"
	TierGood      Tier = "good"
	TierAtRisk    Tier = "at_risk"
	TierCritical  Tier = "critical"
)

// HealthSnapshot is one immutable, timestamped computation of a customer's
// overall health score. Snapshots are owned by the history store and never
// mutated after creation.
type HealthSnapshot struct {
	ID           string         `json:"id"`
	CustomerID   string         `json:"customer_id"`
	CalculatedAt time.Time      `json:"calculated_at"`
	OverallScore int            `json:"overall_score"`
	FactorScores FactorScoreSet `json:"factor_scores"`
	Tier         Tier           `json:"tier"`
	Trend        Trend          `json:"trend"`
	Change       int            `json:"change"`
}

// CustomerContext is the read-only per-customer view consumed by alert rule
// evaluation. Nil fields mean the upstream provider had no data for them.
type CustomerContext struct {
	CustomerID      string     `json:"customer_id"`
	ContractEndDate *time.Time `json:"contract_end_date,omitempty"`
	LastActivityAt  *time.Time `json:"last_activity_at,omitempty"`
	LatestCSATScore *float64   `json:"latest_csat_score,omitempty"`
}
