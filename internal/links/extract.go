// Package links extracts URLs from harvested documents, scores their risk,
// and validates their reachability.
package links

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leakforge/leakwatch/backend/internal/models"
)

var urlRegex = regexp.MustCompile(`https?://[^\s]+`)

// ExtractURLs extracts all HTTP(S) URLs from the input text.
func ExtractURLs(input string) []string {
	if input == "" {
		return nil
	}
	matches := urlRegex.FindAllString(input, -1)
	if len(matches) == 0 {
		return nil
	}
	// Remove duplicates while preserving order
	seen := make(map[string]struct{})
	var urls []string
	for _, u := range matches {
		if _, ok := seen[u]; !ok {
			seen[u] = struct{}{}
			urls = append(urls, u)
		}
	}
	return urls
}

var telegramDomains = []string{
	"t.me", "telegram.me", "telegram.org",
}

// IsTelegram reports whether the URL points at a Telegram domain or one of
// its subdomains.
func IsTelegram(rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	for _, domain := range telegramDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// Harvest builds pending Link records for every distinct URL in a document.
func Harvest(doc models.RawDocument) []models.Link {
	urls := ExtractURLs(doc.Text)
	if len(urls) == 0 {
		return nil
	}

	now := time.Now().UTC()
	out := make([]models.Link, 0, len(urls))
	for _, u := range urls {
		telegram := IsTelegram(u)
		score := RiskScore(u, telegram)
		out = append(out, models.Link{
			ID:           uuid.NewString(),
			DocumentID:   doc.DocumentID,
			OriginID:     doc.OriginID,
			URL:          u,
			IsTelegram:   telegram,
			RiskScore:    score,
			IsSuspicious: Suspicious(score),
			Status:       models.LinkStatusPending,
			CreatedAt:    now,
		})
	}
	return out
}
