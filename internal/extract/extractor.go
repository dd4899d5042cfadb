// Package extract turns raw document text into typed indicator sets.
package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/leakforge/leakwatch/backend/internal/models"
	"github.com/leakforge/leakwatch/backend/internal/risk"
)

// PreviewLimit caps the raw-content preview carried downstream.
const PreviewLimit = 10_000

const minPasswordLen = 4

// Extractor applies a rule registry over document text.
type Extractor struct {
	reg          *Registry
	previewLimit int
}

// New builds an Extractor. A nil registry selects the default rule set.
func New(reg *Registry) *Extractor {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Extractor{reg: reg, previewLimit: PreviewLimit}
}

// Extract runs every rule independently over the text and returns the
// deduplicated, risk-scored result. Extraction never fails; text that
// matches nothing yields an empty result.
func (e *Extractor) Extract(doc models.RawDocument) models.ExtractionResult {
	result := models.ExtractionResult{
		DocumentID: doc.DocumentID,
		OriginID:   doc.OriginID,
		Indicators: make(map[models.IndicatorType][]models.Indicator),
		Timestamp:  doc.Timestamp,
		Preview:    truncate(doc.Text, e.previewLimit),
	}

	seen := make(map[models.IndicatorType]map[string]struct{})
	for _, rule := range e.reg.Rules() {
		for _, value := range matchValues(rule, doc.Text) {
			if rule.Type == models.TypePassword {
				value = cleanPassword(value)
				if value == "" {
					continue
				}
			}
			if seen[rule.Type] == nil {
				seen[rule.Type] = make(map[string]struct{})
			}
			if _, dup := seen[rule.Type][value]; dup {
				continue
			}
			seen[rule.Type][value] = struct{}{}
			result.Indicators[rule.Type] = append(result.Indicators[rule.Type],
				models.Indicator{Type: rule.Type, Value: value})
		}
	}

	result.Pairs = extractPairs(doc.Text)
	result.RiskScore = risk.Score(result)
	result.IsSensitive = risk.IsSensitive(result.RiskScore)
	return result
}

func matchValues(rule Rule, text string) []string {
	if rule.group == 0 {
		return rule.re.FindAllString(text, -1)
	}

	matches := rule.re.FindAllStringSubmatch(text, -1)
	values := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > rule.group && m[rule.group] != "" {
			values = append(values, m[rule.group])
		}
	}
	return values
}

// cleanPassword strips surrounding quotes and rejects short matches, which
// are overwhelmingly noise (ports, times, version numbers).
func cleanPassword(value string) string {
	value = strings.Trim(strings.TrimSpace(value), `"'`)
	if len(value) < minPasswordLen {
		return ""
	}
	return value
}

func extractPairs(text string) []models.CredentialPair {
	seen := make(map[models.CredentialPair]struct{})
	var pairs []models.CredentialPair
	for _, re := range pairPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			pair := models.CredentialPair{
				Email:    strings.TrimSpace(m[1]),
				Password: strings.TrimSpace(m[2]),
			}
			if len(pair.Password) < minPasswordLen {
				continue
			}
			if _, dup := seen[pair]; dup {
				continue
			}
			seen[pair] = struct{}{}
			pairs = append(pairs, pair)
		}
	}
	return pairs
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
