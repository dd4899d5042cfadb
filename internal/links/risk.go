package links

import (
	"net/url"
	"regexp"
	"strings"
)

// SuspiciousThreshold marks links worth flagging; strictly greater-than.
const SuspiciousThreshold = 50

var shortenerDomains = []string{
	"bit.ly", "tinyurl", "short.link", "goo.gl", "t.co",
	"is.gd", "v.gd", "ow.ly", "buff.ly",
}

var executableExtensions = []string{".exe", ".bat", ".cmd", ".scr", ".pif"}

var longDigitRun = regexp.MustCompile(`[0-9]{4,}`)

// RiskScore estimates how dangerous a URL is, from 0 (safe) to 100.
// Unparseable URLs get a flat penalty.
func RiskScore(rawURL string, isTelegram bool) int {
	score := 0

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		score += 25
	} else {
		domain := strings.ToLower(parsed.Hostname())

		for _, shortener := range shortenerDomains {
			if strings.Contains(domain, shortener) {
				score += 30
				break
			}
		}

		if longDigitRun.MatchString(domain) {
			score += 20
		}

		if len(domain) > 50 {
			score += 15
		}

		if strings.Contains(domain, "phishing") || strings.Contains(domain, "scam") {
			score += 50
		}

		lower := strings.ToLower(rawURL)
		for _, ext := range executableExtensions {
			if strings.HasSuffix(lower, ext) {
				score += 40
				break
			}
		}
	}

	// Telegram links are generally safer.
	if isTelegram {
		score -= 20
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Suspicious reports whether a risk score crosses the flagging threshold.
func Suspicious(score int) bool {
	return score > SuspiciousThreshold
}
