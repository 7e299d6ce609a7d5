package health

import "github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"

// AnalyzeTrend compares the current score against the previous snapshot's
// score. A nil previous score (first snapshot for the customer) is stable
// with change 0, not an error. Single-step comparison only: no hysteresis or
// smoothing.
func AnalyzeTrend(current int, previous *int) (model.Trend, int) {
	if previous == nil {
		return model.TrendStable, 0
	}

	change := current - *previous
	switch {
	case change < 0:
		return model.TrendDeclining, change
	case change > 0:
		return model.TrendImproving, change
	default:
		return model.TrendStable, 0
	}
}
