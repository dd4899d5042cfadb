package extract

import (
	"regexp"

	"github.com/leakforge/leakwatch/backend/internal/models"
)

// Rule is one named, compiled extraction pattern targeting an indicator type.
// When group is non-zero the value is taken from that submatch, otherwise
// from the whole match.
type Rule struct {
	ID    string
	Type  models.IndicatorType
	re    *regexp.Regexp
	group int
}

// Registry is an immutable, ordered table of extraction rules. Adding a rule
// means appending a new entry and bumping the version, never editing the
// matching logic.
type Registry struct {
	version string
	rules   []Rule
}

// Version identifies the rule set in effect.
func (r *Registry) Version() string { return r.version }

// Rules returns the ordered rule table.
func (r *Registry) Rules() []Rule { return r.rules }

var defaultRegistry = &Registry{
	version: "v1",
	rules: []Rule{
		{ID: "email", Type: models.TypeEmail,
			re: regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{ID: "phone", Type: models.TypePhone,
			re: regexp.MustCompile(`\b(?:\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}\b`)},
		{ID: "credit_card", Type: models.TypeCreditCard,
			re: regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14}|3[47][0-9]{13}|3[0-9]{13}|6(?:011|5[0-9]{2})[0-9]{12})\b`)},
		{ID: "ssn", Type: models.TypeSSN,
			re: regexp.MustCompile(`\b[0-9]{3}-?[0-9]{2}-?[0-9]{4}\b`)},
		{ID: "api_key", Type: models.TypeAPIKey,
			re:    regexp.MustCompile(`(?i)(?:api[_-]?key|apikey|access[_-]?key|secret[_-]?key)\s*[:=]\s*["']?([a-zA-Z0-9_-]{20,})["']?`),
			group: 1},
		{ID: "password_kv", Type: models.TypePassword,
			re:    regexp.MustCompile(`(?i)(?:password|passwd|pwd)\s*[:=]\s*([^\s]+)`),
			group: 1},
		{ID: "password_colon", Type: models.TypePassword,
			re:    regexp.MustCompile(`:([^:\s]+)`),
			group: 1},
		{ID: "url", Type: models.TypeURL,
			re: regexp.MustCompile(`https?://[^\s]+`)},
		{ID: "ip", Type: models.TypeIP,
			re: regexp.MustCompile(`\b(?:[0-9]{1,3}\.){3}[0-9]{1,3}\b`)},
		{ID: "btc_address", Type: models.TypeCrypto,
			re: regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`)},
		{ID: "eth_address", Type: models.TypeCrypto,
			re: regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)},
	},
}

// DefaultRegistry returns the built-in rule set.
func DefaultRegistry() *Registry { return defaultRegistry }

// Credential pairs are extracted separately from single indicators: an email
// directly joined to a password by a known separator.
var pairPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})\s*[:|]\s*([^\s]+)`),
	regexp.MustCompile(`(?i)([A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,})\s*[,;]\s*([^\s]+)`),
}
