package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Common contains parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
	PostgresDSN        string
}

// Worker holds configuration for the Kafka -> corpus ingestion worker.
type Worker struct {
	Common
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
	CommitInterval time.Duration
	MaxAttachment  int64
}

// Matcher configures the periodic watchlist matching pass.
type Matcher struct {
	Common
	Schedule    string
	Lookback    time.Duration
	RedisURL    string
	NotifyAddrs []string
	NotifyTopic string
	DedupWindow time.Duration
}

// Prober configures the link validation loop.
type Prober struct {
	Common
	Interval    time.Duration
	BatchSize   int
	Concurrency int
}

// API describes HTTP-layer configuration.
type API struct {
	Common
	BindAddr    string
	DefaultPage int
	MaxPage     int
}

// Retention configures the cleanup loop.
type Retention struct {
	Common
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	loadDotenv()

	c := &Worker{
		Common:         loadCommon(),
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "leak_raw"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "leak-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
		CommitInterval: getDuration("WORKER_COMMIT_INTERVAL", "2s"),
		MaxAttachment:  int64(getInt("WORKER_MAX_ATTACHMENT_BYTES", 10<<20)),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.MaxAttachment <= 0 {
		return nil, fmt.Errorf("WORKER_MAX_ATTACHMENT_BYTES must be positive")
	}
	if c.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	return c, nil
}

// LoadMatcher builds a Matcher config from environment variables.
func LoadMatcher() (*Matcher, error) {
	loadDotenv()

	c := &Matcher{
		Common:      loadCommon(),
		Schedule:    getEnv("MATCHER_SCHEDULE", "@every 15m"),
		Lookback:    getDuration("MATCHER_LOOKBACK", "24h"),
		RedisURL:    getEnv("REDIS_URL", ""),
		NotifyAddrs: splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		NotifyTopic: getEnv("NOTIFY_TOPIC", "alert_events"),
		DedupWindow: getDuration("ALERT_DEDUP_WINDOW", "1h"),
	}

	if c.Lookback <= 0 {
		return nil, fmt.Errorf("MATCHER_LOOKBACK must be positive")
	}
	if c.DedupWindow <= 0 {
		return nil, fmt.Errorf("ALERT_DEDUP_WINDOW must be positive")
	}
	if c.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	return c, nil
}

// LoadProber builds a Prober config from environment variables.
func LoadProber() (*Prober, error) {
	loadDotenv()

	c := &Prober{
		Common:      loadCommon(),
		Interval:    getDuration("PROBER_INTERVAL", "5m"),
		BatchSize:   getInt("PROBER_BATCH_SIZE", 100),
		Concurrency: getInt("PROBER_CONCURRENCY", 5),
	}

	if c.Interval <= 0 {
		return nil, fmt.Errorf("PROBER_INTERVAL must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("PROBER_BATCH_SIZE must be positive")
	}
	if c.Concurrency <= 0 {
		return nil, fmt.Errorf("PROBER_CONCURRENCY must be positive")
	}
	if c.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	loadDotenv()

	c := &API{
		Common:      loadCommon(),
		BindAddr:    getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultPage: getInt("API_PAGE_SIZE", 20),
		MaxPage:     getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}
	if c.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	loadDotenv()

	c := &Retention{
		Common:    loadCommon(),
		Interval:  getDuration("RETENTION_INTERVAL", "24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "2160h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_INTERVAL must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}
	if c.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	return c, nil
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "documents"),
		PostgresDSN:        getEnv("POSTGRES_DSN", ""),
	}
}

// loadDotenv loads a local .env file if present. Missing files are fine;
// real deployments set variables through the environment.
func loadDotenv() {
	_ = godotenv.Load()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	raw := getEnv(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
