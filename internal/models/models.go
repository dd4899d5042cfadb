package models

import "time"

// IndicatorType classifies a token extracted from raw text.
type IndicatorType string

const (
	TypeEmail      IndicatorType = "email"
	TypeUsername   IndicatorType = "username"
	TypeDomain     IndicatorType = "domain"
	TypePhone      IndicatorType = "phone"
	TypeAPIKey     IndicatorType = "api_key"
	TypePassword   IndicatorType = "password"
	TypeCreditCard IndicatorType = "credit_card"
	TypeSSN        IndicatorType = "ssn"
	TypeIP         IndicatorType = "ip"
	TypeURL        IndicatorType = "url"
	TypeCrypto     IndicatorType = "crypto_address"
)

// Severity levels shared by leak records and alerts.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// LeakStatus tracks the review lifecycle of a leak record.
type LeakStatus string

const (
	LeakStatusNew           LeakStatus = "new"
	LeakStatusInvestigating LeakStatus = "investigating"
	LeakStatusConfirmed     LeakStatus = "confirmed"
	LeakStatusFalsePositive LeakStatus = "false_positive"
	LeakStatusResolved      LeakStatus = "resolved"
)

// LinkStatus is the validation state of a harvested URL.
type LinkStatus string

const (
	LinkStatusPending  LinkStatus = "pending"
	LinkStatusValid    LinkStatus = "valid"
	LinkStatusInvalid  LinkStatus = "invalid"
	LinkStatusError    LinkStatus = "error"
	LinkStatusTimeout  LinkStatus = "timeout"
	LinkStatusRedirect LinkStatus = "redirect"
)

// RawDocument is one harvested message or file, immutable once ingested.
type RawDocument struct {
	DocumentID    string    `json:"document_id"`
	OriginID      string    `json:"origin_id"`
	Text          string    `json:"text"`
	AttachmentRef string    `json:"attachment_ref,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Indicator is one typed token found in a document.
type Indicator struct {
	Type    IndicatorType `json:"type"`
	Value   string        `json:"value"`
	Context string        `json:"context,omitempty"`
}

// CredentialPair is an email:password combination found together.
type CredentialPair struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ExtractionResult is the canonical structure indexed into the corpus.
type ExtractionResult struct {
	DocumentID  string                          `json:"document_id"`
	OriginID    string                          `json:"origin_id"`
	Indicators  map[IndicatorType][]Indicator   `json:"indicators"`
	Pairs       []CredentialPair                `json:"pairs"`
	RiskScore   int                             `json:"risk_score"`
	IsSensitive bool                            `json:"is_sensitive"`
	Preview     string                          `json:"preview"`
	Timestamp   time.Time                       `json:"timestamp"`
}

// Count returns the number of distinct indicators of the given type.
func (r ExtractionResult) Count(t IndicatorType) int {
	return len(r.Indicators[t])
}

// WatchlistEntry is a user-registered value monitored for leakage.
// Entries are deactivated, never hard-deleted, so match history survives.
type WatchlistEntry struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Type      IndicatorType `json:"type"`
	Value     string        `json:"value"`
	Active    bool          `json:"active"`
	Priority  int           `json:"priority"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// MatchCandidate pairs a watchlist entry with a corpus hit. Transient:
// produced and consumed within one matching pass, never persisted.
type MatchCandidate struct {
	Entry      WatchlistEntry
	DocumentID string
	OriginID   string
	Snippet    string
	Relevance  float64
	Confidence float64
	Strategy   string
	Timestamp  time.Time
}

// LeakRecord is a persisted, confidence-scored credential exposure.
type LeakRecord struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	WatchID      string     `json:"watch_id"`
	LeakedValue  string     `json:"leaked_value"`
	Content      string     `json:"content"`
	OriginID     string     `json:"origin_id"`
	DocumentID   string     `json:"document_id"`
	Severity     Severity   `json:"severity"`
	Confidence   float64    `json:"confidence"`
	Status       LeakStatus `json:"status"`
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// Alert notifies an owner about a leak record.
type Alert struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"owner_id"`
	LeakID      string     `json:"leak_id"`
	WatchID     string     `json:"watch_id"`
	LeakedValue string     `json:"leaked_value"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	Priority    Severity   `json:"priority"`
	IsRead      bool       `json:"is_read"`
	IsResolved  bool       `json:"is_resolved"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Link is a URL harvested from a document, tracked through validation.
type Link struct {
	ID           string     `json:"id"`
	DocumentID   string     `json:"document_id"`
	OriginID     string     `json:"origin_id"`
	URL          string     `json:"url"`
	IsTelegram   bool       `json:"is_telegram"`
	RiskScore    int        `json:"risk_score"`
	IsSuspicious bool       `json:"is_suspicious"`
	Status       LinkStatus `json:"status"`
	RetryCount   int        `json:"retry_count"`
	LastError    string     `json:"last_error,omitempty"`
	CheckedAt    *time.Time `json:"checked_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
