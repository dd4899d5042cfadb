package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/leakforge/leakwatch/backend/internal/dedupe"
	"github.com/leakforge/leakwatch/backend/internal/extract"
	"github.com/leakforge/leakwatch/backend/internal/models"
)

type stubCorpus struct {
	results []models.ExtractionResult
	err     error
}

func (s *stubCorpus) UpsertExtraction(_ context.Context, result models.ExtractionResult) error {
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, result)
	return nil
}

type stubLinkStore struct {
	links []models.Link
}

func (s *stubLinkStore) UpsertLinks(_ context.Context, links []models.Link) (int, error) {
	s.links = append(s.links, links...)
	return len(links), nil
}

type stubResolver struct {
	data []byte
	name string
	err  error
}

func (s *stubResolver) Resolve(_ context.Context, _ string) ([]byte, string, error) {
	return s.data, s.name, s.err
}

func newTestPipeline(corpus *stubCorpus, links *stubLinkStore, resolver *stubResolver) *pipeline {
	return &pipeline{
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		corpus:    corpus,
		links:     links,
		cache:     dedupe.NewCache(100, time.Hour),
		resolver:  resolver,
		extractor: extract.New(extract.DefaultRegistry()),
	}
}

func TestProcessMessageIndexesDocument(t *testing.T) {
	idx := &stubCorpus{}
	ls := &stubLinkStore{}
	p := newTestPipeline(idx, ls, &stubResolver{})

	payload := rawDocument{
		OriginID:  "channel-42",
		Text:      "leaked combo admin@corp.com:Sup3rSecret99",
		Timestamp: "2024-01-02T15:04:05Z",
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	msg := kafka.Message{Value: data}

	require.NoError(t, p.processMessage(context.Background(), msg))
	require.Len(t, idx.results, 1)

	result := idx.results[0]
	require.Equal(t, "channel-42", result.OriginID)
	require.Equal(t, 1, result.Count(models.TypeEmail))
	require.Equal(t, 1, result.Count(models.TypePassword))
	require.Len(t, result.Pairs, 1)
	require.Equal(t, 9, result.RiskScore)
	require.Empty(t, ls.links)

	// Replay of the same message is absorbed by the dedupe cache.
	require.NoError(t, p.processMessage(context.Background(), msg))
	require.Len(t, idx.results, 1)
}

func TestProcessMessageHarvestsLinks(t *testing.T) {
	ls := &stubLinkStore{}
	p := newTestPipeline(&stubCorpus{}, ls, &stubResolver{})

	payload := rawDocument{
		OriginID:  "channel-42",
		Text:      "full dump at https://paste.example.com/abc grab it",
		Timestamp: "2024-01-02T15:04:05Z",
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	require.NoError(t, p.processMessage(context.Background(), kafka.Message{Value: data}))
	require.Len(t, ls.links, 1)
	require.Equal(t, "https://paste.example.com/abc", ls.links[0].URL)
	require.Equal(t, models.LinkStatusPending, ls.links[0].Status)
}

func TestProcessMessageRejectsEmptyPayload(t *testing.T) {
	p := newTestPipeline(&stubCorpus{}, &stubLinkStore{}, &stubResolver{})

	data, err := json.Marshal(rawDocument{OriginID: "channel-42", Text: "   "})
	require.NoError(t, err)

	require.Error(t, p.processMessage(context.Background(), kafka.Message{Value: data}))
}

func TestProcessMessageAppendsAttachmentText(t *testing.T) {
	idx := &stubCorpus{}
	resolver := &stubResolver{
		data: []byte("user@example.com,hunter22\n"),
		name: "dump.csv",
	}
	p := newTestPipeline(idx, &stubLinkStore{}, resolver)

	payload := rawDocument{
		OriginID:      "channel-7",
		Text:          "fresh dump attached",
		AttachmentRef: "http://minio:9000/dumps/dump.csv",
		Timestamp:     "2024-01-02T15:04:05Z",
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	require.NoError(t, p.processMessage(context.Background(), kafka.Message{Value: data}))
	require.Len(t, idx.results, 1)
	require.Equal(t, 1, idx.results[0].Count(models.TypeEmail))
}

func TestProcessMessageAttachmentFailureKeepsInlineText(t *testing.T) {
	idx := &stubCorpus{}
	resolver := &stubResolver{err: errors.New("object not found")}
	p := newTestPipeline(idx, &stubLinkStore{}, resolver)

	payload := rawDocument{
		OriginID:      "channel-7",
		Text:          "contact me at seller@example.com",
		AttachmentRef: "http://minio:9000/dumps/missing.zip",
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	require.NoError(t, p.processMessage(context.Background(), kafka.Message{Value: data}))
	require.Len(t, idx.results, 1)
	require.Equal(t, 1, idx.results[0].Count(models.TypeEmail))
}

func TestProcessMessageAttachmentFailureWithoutTextSkips(t *testing.T) {
	idx := &stubCorpus{}
	resolver := &stubResolver{err: errors.New("object not found")}
	p := newTestPipeline(idx, &stubLinkStore{}, resolver)

	payload := rawDocument{
		OriginID:      "channel-7",
		AttachmentRef: "http://minio:9000/dumps/missing.zip",
	}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	// Skipped, not DLQ'd: retrying will not bring the attachment back.
	require.NoError(t, p.processMessage(context.Background(), kafka.Message{Value: data}))
	require.Empty(t, idx.results)
}

func TestBuildDocumentIDStable(t *testing.T) {
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	first := buildDocumentID("origin", "text", ts)
	second := buildDocumentID("origin", "text", ts)
	require.NotEmpty(t, first)
	require.Equal(t, first, second)

	require.NotEqual(t, first, buildDocumentID("other", "text", ts))
	require.NotEqual(t, first, buildDocumentID("origin", "other", ts))
	require.Empty(t, buildDocumentID("", "", ts))
}

func TestParseTimestamp(t *testing.T) {
	ts := parseTimestamp("2024-02-03T04:05:06Z")
	require.False(t, ts.IsZero())
	require.Equal(t, 2024, ts.Year())
	require.Equal(t, time.UTC, ts.Location())

	legacy := parseTimestamp("2024-02-03 04:05:06")
	require.False(t, legacy.IsZero())
	require.Equal(t, 3, legacy.Day())

	require.True(t, parseTimestamp("invalid").IsZero())
}
