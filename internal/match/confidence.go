package match

import (
	"regexp"
	"strings"

	"github.com/leakforge/leakwatch/backend/internal/corpus"
	"github.com/leakforge/leakwatch/backend/internal/models"
)

var digitRun = regexp.MustCompile(`[0-9]{3,}`)

// Confidence estimates how likely a corpus hit genuinely corresponds to the
// watched value. Base is the normalized relevance score; presence in the
// hit's structured extraction map and type-specific context each add a
// bounded boost. Always clamped to [0.0, 1.0].
func Confidence(hit corpus.Hit, watchType models.IndicatorType) float64 {
	confidence := hit.Relevance / 10.0
	if confidence > 1.0 {
		confidence = 1.0
	}

	// The extractor already classified a token of this type, not just a
	// raw-text hit.
	if _, ok := hit.Extracted[string(watchType)]; ok {
		confidence += 0.2
	}

	text := strings.ToLower(hit.Text)
	switch watchType {
	case models.TypeEmail:
		if strings.Contains(text, "@") {
			confidence += 0.1
		}
	case models.TypeDomain:
		if strings.Contains(text, ".com") || strings.Contains(text, ".org") {
			confidence += 0.1
		}
	case models.TypePhone:
		if digitRun.MatchString(text) {
			confidence += 0.1
		}
	}

	if confidence > 1.0 {
		return 1.0
	}
	if confidence < 0 {
		return 0
	}
	return confidence
}
