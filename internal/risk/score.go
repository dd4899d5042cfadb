// Package risk derives a bounded severity score from indicator counts.
// Score is purely a function of per-type counts, so it is monotonic and
// trivially testable.
package risk

import "github.com/leakforge/leakwatch/backend/internal/models"

// MaxScore bounds every document score.
const MaxScore = 100

// SensitiveThreshold marks documents worth flagging; strictly greater-than.
const SensitiveThreshold = 50

// Weight per indicator instance.
var weights = map[models.IndicatorType]int{
	models.TypeEmail:      1,
	models.TypeUsername:   1,
	models.TypeDomain:     1,
	models.TypeIP:         2,
	models.TypePhone:      2,
	models.TypePassword:   3,
	models.TypeCreditCard: 10,
	models.TypeSSN:        10,
}

const pairWeight = 5

// Score sums count×weight over all indicator types plus credential pairs,
// capped at MaxScore.
func Score(r models.ExtractionResult) int {
	score := 0
	for t, indicators := range r.Indicators {
		score += len(indicators) * weights[t]
	}
	score += len(r.Pairs) * pairWeight

	if score > MaxScore {
		return MaxScore
	}
	return score
}

// IsSensitive reports whether a score crosses the sensitivity threshold.
func IsSensitive(score int) bool {
	return score > SensitiveThreshold
}
