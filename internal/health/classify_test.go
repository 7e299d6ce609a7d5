package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/config"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
)

var defaultBoundaries = config.ThresholdConfig{WarningBoundary: 60, CriticalBoundary: 40}

func TestClassify_Bands(t *testing.T) {
	tests := []struct {
		score int
		want  model.Tier
	}{
		{0, model.TierCritical},
		{39, model.TierCritical},
		{40, model.TierAtRisk}, // edge value belongs to the better band
		{59, model.TierAtRisk},
		{60, model.TierGood}, // score == warning boundary is good, not at_risk
		{79, model.TierGood},
		{80, model.TierExcellent},
		{100, model.TierExcellent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.score, defaultBoundaries), "score %d", tt.score)
	}
}

func TestClassify_Monotonic(t *testing.T) {
	rank := map[model.Tier]int{
		model.TierCritical:  0,
		model.TierAtRisk:    1,
		model.TierGood:      2,
		model.TierExcellent: 3,
	}

	prev := Classify(0, defaultBoundaries)
	for score := 1; score <= 100; score++ {
		cur := Classify(score, defaultBoundaries)
		assert.GreaterOrEqual(t, rank[cur], rank[prev], "tier dropped at score %d", score)
		prev = cur
	}
}

func TestClassify_CustomBoundaries(t *testing.T) {
	cfg := config.ThresholdConfig{WarningBoundary: 70, CriticalBoundary: 20}

	assert.Equal(t, model.TierCritical, Classify(19, cfg))
	assert.Equal(t, model.TierAtRisk, Classify(20, cfg))
	assert.Equal(t, model.TierAtRisk, Classify(69, cfg))
	assert.Equal(t, model.TierGood, Classify(70, cfg))
	assert.Equal(t, model.TierExcellent, Classify(80, cfg))
}

func TestClassify_ExcellentCutoffIsFixed(t *testing.T) {
	// Tightening the admin boundaries never moves the excellent floor.
	cfg := config.ThresholdConfig{WarningBoundary: 75, CriticalBoundary: 50}
	assert.Equal(t, model.TierGood, Classify(79, cfg))
	assert.Equal(t, model.TierExcellent, Classify(80, cfg))
}
