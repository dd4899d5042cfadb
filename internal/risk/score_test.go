package risk_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leakforge/leakwatch/backend/internal/models"
	"github.com/leakforge/leakwatch/backend/internal/risk"
)

func resultWith(counts map[models.IndicatorType]int, pairs int) models.ExtractionResult {
	r := models.ExtractionResult{Indicators: make(map[models.IndicatorType][]models.Indicator)}
	for t, n := range counts {
		for i := 0; i < n; i++ {
			r.Indicators[t] = append(r.Indicators[t], models.Indicator{Type: t})
		}
	}
	for i := 0; i < pairs; i++ {
		r.Pairs = append(r.Pairs, models.CredentialPair{})
	}
	return r
}

func TestScoreWeights(t *testing.T) {
	tests := []struct {
		name   string
		counts map[models.IndicatorType]int
		pairs  int
		want   int
	}{
		{"empty", nil, 0, 0},
		{"single email", map[models.IndicatorType]int{models.TypeEmail: 1}, 0, 1},
		{"ip and phone", map[models.IndicatorType]int{models.TypeIP: 1, models.TypePhone: 1}, 0, 4},
		{"email password pair", map[models.IndicatorType]int{models.TypeEmail: 1, models.TypePassword: 1}, 1, 9},
		{"two ssns", map[models.IndicatorType]int{models.TypeSSN: 2}, 0, 20},
		{"url and crypto weigh nothing", map[models.IndicatorType]int{models.TypeURL: 3, models.TypeCrypto: 2}, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, risk.Score(resultWith(tc.counts, tc.pairs)))
		})
	}
}

func TestScoreCapped(t *testing.T) {
	r := resultWith(map[models.IndicatorType]int{models.TypeCreditCard: 50}, 0)
	require.Equal(t, risk.MaxScore, risk.Score(r))
}

func TestScoreMonotonic(t *testing.T) {
	base := resultWith(map[models.IndicatorType]int{models.TypeEmail: 3}, 1)
	more := resultWith(map[models.IndicatorType]int{models.TypeEmail: 3, models.TypePassword: 1}, 1)
	require.Greater(t, risk.Score(more), risk.Score(base))
}

func TestIsSensitiveThreshold(t *testing.T) {
	require.False(t, risk.IsSensitive(risk.SensitiveThreshold))
	require.True(t, risk.IsSensitive(risk.SensitiveThreshold+1))
	require.False(t, risk.IsSensitive(0))
}
