package links_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/leakforge/leakwatch/backend/internal/links"
)

func TestRiskScoreShortener(t *testing.T) {
	require.Equal(t, 30, links.RiskScore("https://bit.ly/abc", false))
	require.False(t, links.Suspicious(30))
}

func TestRiskScoreShortenerWithDigitRun(t *testing.T) {
	// Shortener plus a long digit run in the domain crosses the threshold.
	score := links.RiskScore("https://bit.ly1234.example.com/x", false)
	require.Equal(t, 50, score)
	require.False(t, links.Suspicious(50))

	score = links.RiskScore("https://phishing-login.example.com/x", false)
	require.Equal(t, 50, score)
}

func TestRiskScorePhishingExecutable(t *testing.T) {
	score := links.RiskScore("https://scam.example.com/payload.exe", false)
	require.Equal(t, 90, score)
	require.True(t, links.Suspicious(score))
}

func TestRiskScoreLongDomain(t *testing.T) {
	long := "https://" + "a.very-long-subdomain-stuffed-with-keywords.example-corp.com" + "/x"
	require.Equal(t, 15, links.RiskScore(long, false))
}

func TestRiskScoreTelegramDiscount(t *testing.T) {
	require.Equal(t, 0, links.RiskScore("https://t.me/somechannel", true))
}

func TestRiskScoreClamped(t *testing.T) {
	// Shortener + digits + long + phishing + exe stacks past the cap.
	u := "https://bit.ly.phishing-12345-" + "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" + ".com/drop.exe"
	require.Equal(t, 100, links.RiskScore(u, false))
}

func TestRiskScoreUnparseable(t *testing.T) {
	require.Equal(t, 25, links.RiskScore("http://", false))
}

func TestIsTelegram(t *testing.T) {
	require.True(t, links.IsTelegram("https://t.me/channel"))
	require.True(t, links.IsTelegram("https://sub.telegram.org/page"))
	require.False(t, links.IsTelegram("https://not-t.me.example.com/x"))
	require.False(t, links.IsTelegram("https://example.com/t.me"))
}

func TestExtractURLs(t *testing.T) {
	urls := links.ExtractURLs("see https://a.example.com and http://b.example.com plus https://a.example.com again")
	require.Equal(t, []string{"https://a.example.com", "http://b.example.com"}, urls)

	require.Nil(t, links.ExtractURLs("no urls here"))
	require.Nil(t, links.ExtractURLs(""))
}
