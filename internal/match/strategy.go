package match

import (
	"fmt"
	"strings"

	"github.com/leakforge/leakwatch/backend/internal/models"
)

// Query is one corpus lookup produced by a strategy.
type Query struct {
	Value    string
	Wildcard bool
	Kind     string
}

// strategy builds the corpus queries for one watch value.
type strategy func(value string) []Query

// One strategy per watch type. Adding a type means adding a function and a
// table entry, nothing else changes.
var strategies = map[models.IndicatorType]strategy{
	models.TypeEmail:    emailQueries,
	models.TypeUsername: usernameQueries,
	models.TypeDomain:   domainQueries,
	models.TypePhone:    phoneQueries,
	models.TypeAPIKey:   apiKeyQueries,
	models.TypePassword: passwordQueries,
}

// QueriesFor dispatches to the per-type strategy.
func QueriesFor(t models.IndicatorType, value string) ([]Query, error) {
	s, ok := strategies[t]
	if !ok {
		return nil, fmt.Errorf("no search strategy for watch type %q", t)
	}
	return s(value), nil
}

func emailQueries(value string) []Query {
	value = strings.ToLower(value)
	queries := []Query{{Value: value, Kind: "email_exact"}}

	// A hit on the bare domain still signals exposure of the mailbox's org.
	if _, domain, ok := strings.Cut(value, "@"); ok && domain != "" {
		queries = append(queries, Query{Value: domain, Kind: "email_domain"})
	}
	return queries
}

func usernameQueries(value string) []Query {
	value = strings.ToLower(value)
	return []Query{
		{Value: value, Kind: "username_exact"},
		{Value: "*" + value + "*", Wildcard: true, Kind: "username_embedded"},
	}
}

func domainQueries(value string) []Query {
	value = strings.ToLower(value)
	return []Query{
		{Value: value, Kind: "domain_exact"},
		{Value: "*." + value, Wildcard: true, Kind: "domain_subdomains"},
	}
}

func phoneQueries(value string) []Query {
	queries := []Query{{Value: value, Kind: "phone_exact"}}

	if normalized := normalizePhone(value); normalized != value && normalized != "" {
		queries = append(queries, Query{Value: normalized, Kind: "phone_normalized"})
	}
	return queries
}

// apiKeyQueries adds a prefix match on the first 8 characters to catch
// partially redacted leaks.
func apiKeyQueries(value string) []Query {
	queries := []Query{{Value: value, Kind: "api_key_exact"}}

	if len(value) >= 8 {
		queries = append(queries, Query{Value: value[:8] + "*", Wildcard: true, Kind: "api_key_prefix"})
	}
	return queries
}

func passwordQueries(value string) []Query {
	return []Query{{Value: value, Kind: "password_exact"}}
}

func normalizePhone(value string) string {
	var b strings.Builder
	for _, r := range value {
		if r >= '0' && r <= '9' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
