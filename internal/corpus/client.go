// Package corpus wraps the Elasticsearch index that stores extraction
// results and answers the matcher's queries.
package corpus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/leakforge/leakwatch/backend/internal/models"
)

// ErrUnavailable marks transport-level failures. Matching for the affected
// credential aborts with a retryable error; other credentials continue.
var ErrUnavailable = errors.New("corpus unavailable")

// Client wraps go-elasticsearch with helpers tailored to this project.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// Document is the corpus-side shape of an extraction result.
type Document struct {
	DocumentID  string              `json:"document_id"`
	OriginID    string              `json:"origin_id"`
	Text        string              `json:"text"`
	Extracted   map[string][]string `json:"extracted"`
	PairCount   int                 `json:"pair_count"`
	RiskScore   int                 `json:"risk_score"`
	IsSensitive bool                `json:"is_sensitive"`
	Timestamp   time.Time           `json:"timestamp"`
}

// QueryParams narrow a matcher query.
type QueryParams struct {
	Value    string
	Wildcard bool
	Since    time.Time
	Size     int
}

// Hit is one ranked corpus result.
type Hit struct {
	Relevance  float64
	DocumentID string
	OriginID   string
	Text       string
	Extracted  map[string][]string
	Timestamp  time.Time
}

// New instantiates the corpus client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: ping: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: ping failed: %s", ErrUnavailable, res.Status())
	}

	return nil
}

// UpsertExtraction writes an extraction result into the corpus, keyed by
// document id so reprocessing the same document overwrites in place.
func (c *Client) UpsertExtraction(ctx context.Context, result models.ExtractionResult) error {
	doc := Document{
		DocumentID:  result.DocumentID,
		OriginID:    result.OriginID,
		Text:        result.Preview,
		Extracted:   flattenIndicators(result.Indicators),
		PairCount:   len(result.Pairs),
		RiskScore:   result.RiskScore,
		IsSensitive: result.IsSensitive,
		Timestamp:   result.Timestamp,
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: result.DocumentID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("%w: index doc: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// Query executes one bounded-time-range search and returns ranked hits.
func (c *Client) Query(ctx context.Context, params QueryParams) ([]Hit, error) {
	if params.Size <= 0 {
		params.Size = 100
	}
	if params.Size > 200 {
		params.Size = 200
	}

	var valueQuery map[string]any
	if params.Wildcard {
		valueQuery = map[string]any{
			"wildcard": map[string]any{
				"text": map[string]any{
					"value":            params.Value,
					"case_insensitive": true,
				},
			},
		}
	} else {
		valueQuery = map[string]any{
			"match_phrase": map[string]any{
				"text": params.Value,
			},
		}
	}

	filters := []map[string]any{}
	if !params.Since.IsZero() {
		filters = append(filters, map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{
					"gte": params.Since.UTC().Format(time.RFC3339),
				},
			},
		})
	}

	boolQuery := map[string]any{
		"must": []map[string]any{valueQuery},
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	body := map[string]any{
		"size": params.Size,
		"query": map[string]any{
			"bool": boolQuery,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64  `json:"_score"`
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, Hit{
			Relevance:  h.Score,
			DocumentID: h.Source.DocumentID,
			OriginID:   h.Source.OriginID,
			Text:       h.Source.Text,
			Extracted:  h.Source.Extracted,
			Timestamp:  h.Source.Timestamp,
		})
	}

	return hits, nil
}

// DeleteOlderThan removes documents older than maxAge using batched
// delete-by-query. It loops until a batch returns fewer deleted documents
// than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	totalDeleted := int64(0)

	for {
		body := map[string]any{
			"query": map[string]any{
				"range": map[string]any{
					"timestamp": map[string]any{
						"lte": cutoff,
					},
				},
			},
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return totalDeleted, fmt.Errorf("marshal delete body: %w", err)
		}

		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("%w: delete by query: %v", ErrUnavailable, err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Health pings cluster health to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

func flattenIndicators(indicators map[models.IndicatorType][]models.Indicator) map[string][]string {
	out := make(map[string][]string, len(indicators))
	for t, list := range indicators {
		values := make([]string, 0, len(list))
		for _, ind := range list {
			values = append(values, ind.Value)
		}
		out[string(t)] = values
	}
	return out
}
