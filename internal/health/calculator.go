// Package health implements the pure scoring primitives: the weighted score
// calculator, the trend analyzer, and the threshold classifier.
package health

import (
	"math"

	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/config"
	"github.com/devhat-pm/Customer-Success-Manager-CSAT-sub000/internal/model"
)

// Calculator computes the overall health score from factor scores.
// Weights are validated once at construction; Compute assumes a valid set and
// has no failure modes.
type Calculator struct {
	weights        map[model.Factor]float64
	missingDefault float64
}

// NewCalculator builds a Calculator from scoring config. A malformed weight
// set is a configuration error reported here, at startup, never per call.
func NewCalculator(cfg config.ScoringConfig) (*Calculator, error) {
	if err := config.ValidateScoring(cfg); err != nil {
		return nil, err
	}

	weights := make(map[model.Factor]float64, len(cfg.Weights))
	for name, w := range cfg.Weights {
		weights[model.Factor(name)] = w
	}

	return &Calculator{
		weights:        weights,
		missingDefault: cfg.MissingFactorDefault,
	}, nil
}

// Compute returns the weighted overall score in [0,100]. Factors missing from
// the input set are substituted with the configured neutral default (0 unless
// overridden) before weighting. Rounding is half-up so results are
// deterministic and reproducible.
func (c *Calculator) Compute(factors model.FactorScoreSet) int {
	sum := 0.0
	for factor, weight := range c.weights {
		score, ok := factors[factor]
		if !ok {
			score = c.missingDefault
		}
		sum += weight * score
	}

	rounded := int(math.Floor(sum + 0.5))
	if rounded < 0 {
		return 0
	}
	if rounded > 100 {
		return 100
	}
	return rounded
}
