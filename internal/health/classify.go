package health

import (
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/config"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
)

// excellentFloor is the fixed product cutoff for the excellent tier. It is
// independent of the configurable warning/critical boundaries.
const excellentFloor = 80

// Classify maps a score to a risk tier under the given boundaries. Edge
// values belong to the better band: a score exactly equal to the warning
// boundary is good, not at_risk.
func Classify(score int, cfg config.ThresholdConfig) model.Tier {
	switch {
	case score >= excellentFloor:
		return model.TierExcellent
	case score >= cfg.WarningBoundary:
		return model.TierGood
	case score >= cfg.CriticalBoundary:
		return model.TierAtRisk
	default:
		return model.TierCritical
	}
}
