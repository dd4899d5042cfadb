package main

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/leakforge/leakwatch/backend/internal/config"
	"github.com/leakforge/leakwatch/backend/internal/corpus"
	"github.com/leakforge/leakwatch/backend/internal/decode"
	"github.com/leakforge/leakwatch/backend/internal/dedupe"
	"github.com/leakforge/leakwatch/backend/internal/extract"
	"github.com/leakforge/leakwatch/backend/internal/links"
	"github.com/leakforge/leakwatch/backend/internal/logger"
	"github.com/leakforge/leakwatch/backend/internal/models"
	"github.com/leakforge/leakwatch/backend/internal/store"
)

type rawDocument struct {
	DocumentID    string `json:"document_id"`
	OriginID      string `json:"origin_id"`
	Text          string `json:"text"`
	AttachmentRef string `json:"attachment_ref"`
	Timestamp     string `json:"timestamp"`
}

// errMissingContent marks a message with neither inline text nor an
// attachment. Such messages go to the DLQ for inspection.
var errMissingContent = errors.New("document has no content")

type corpusIndexer interface {
	UpsertExtraction(ctx context.Context, result models.ExtractionResult) error
}

type linkStore interface {
	UpsertLinks(ctx context.Context, links []models.Link) (int, error)
}

type pipeline struct {
	log       *slog.Logger
	corpus    corpusIndexer
	links     linkStore
	cache     *dedupe.Cache
	resolver  decode.AttachmentResolver
	extractor *extract.Extractor
}

func main() {
	log := logger.New("worker")
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	corpusClient, err := corpus.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init corpus", slog.Any("err", err))
		os.Exit(1)
	}

	db, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("init store", slog.Any("err", err))
		os.Exit(1)
	}
	defer db.Close()

	p := &pipeline{
		log:       log,
		corpus:    corpusClient,
		links:     db,
		cache:     dedupe.NewCache(cfg.DedupeCapacity, cfg.DedupeTTL),
		resolver:  decode.NewHTTPResolver(cfg.MaxAttachment),
		extractor: extract.New(extract.DefaultRegistry()),
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.KafkaBrokers,
		Topic:          cfg.KafkaTopic,
		GroupID:        cfg.KafkaConsumer,
		QueueCapacity:  cfg.BatchSize,
		MinBytes:       1e3,
		MaxBytes:       10e6,
		CommitInterval: 0, // Disable auto-commit; manual commit only
	})
	defer reader.Close()

	dlqWriter := kafka.NewWriter(kafka.WriterConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaTopic + "_dlq",
		MaxAttempts: 3,
	})
	defer dlqWriter.Close()

	log.Info("worker started",
		slog.String("topic", cfg.KafkaTopic),
		slog.String("group", cfg.KafkaConsumer),
		slog.String("dlq_topic", cfg.KafkaTopic+"_dlq"),
	)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("context canceled, stopping")
				return
			}
			log.Error("fetch message", slog.Any("err", err))
			continue
		}

		if err := p.processMessage(ctx, msg); err != nil {
			log.Warn("process message failed, sending to DLQ",
				slog.Any("err", err),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
			)

			// Send to DLQ with error context, retry with backoff
			dlqMsg := kafka.Message{
				Value: msg.Value,
				Headers: append(msg.Headers,
					kafka.Header{Key: "original_partition", Value: []byte(fmt.Sprintf("%d", msg.Partition))},
					kafka.Header{Key: "original_offset", Value: []byte(fmt.Sprintf("%d", msg.Offset))},
					kafka.Header{Key: "error", Value: []byte(err.Error())},
					kafka.Header{Key: "timestamp", Value: []byte(time.Now().UTC().Format(time.RFC3339))},
				),
			}

			// Retry DLQ write with exponential backoff
			dlqSuccess := false
			for attempt := range 5 {
				if dlqErr := dlqWriter.WriteMessages(ctx, dlqMsg); dlqErr == nil {
					dlqSuccess = true
					log.Info("message sent to DLQ",
						slog.Int("partition", msg.Partition),
						slog.Int64("offset", msg.Offset),
						slog.Int("attempt", attempt+1),
					)
					break
				} else {
					backoff := time.Duration(1<<uint(attempt)) * time.Second
					log.Warn("DLQ write failed, retrying",
						slog.Any("err", dlqErr),
						slog.Int("attempt", attempt+1),
						slog.Duration("backoff", backoff),
					)
					select {
					case <-time.After(backoff):
						// Continue to next attempt
					case <-ctx.Done():
						log.Info("context canceled during DLQ retry")
						return
					}
				}
			}

			// Only commit if DLQ write succeeded; otherwise skip commit and reprocess on restart
			if dlqSuccess {
				if err := reader.CommitMessages(ctx, msg); err != nil {
					log.Error("commit failed message to dlq", slog.Any("err", err))
				}
			} else {
				log.Error("DLQ write exhausted retries, message may be lost if later messages commit",
					slog.Int("partition", msg.Partition),
					slog.Int64("offset", msg.Offset),
				)
			}
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Error("commit message", slog.Any("err", err))
		}
	}
}

func (p *pipeline) processMessage(ctx context.Context, msg kafka.Message) error {
	var payload rawDocument
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		return err
	}

	text := strings.TrimSpace(payload.Text)
	attachmentRef := strings.TrimSpace(payload.AttachmentRef)
	if text == "" && attachmentRef == "" {
		return errMissingContent
	}

	ts := parseTimestamp(payload.Timestamp)
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	doc := models.RawDocument{
		DocumentID:    strings.TrimSpace(payload.DocumentID),
		OriginID:      strings.TrimSpace(payload.OriginID),
		Text:          text,
		AttachmentRef: attachmentRef,
		Timestamp:     ts,
	}
	if doc.DocumentID == "" {
		doc.DocumentID = buildDocumentID(doc.OriginID, text, ts)
	}
	if doc.DocumentID == "" {
		doc.DocumentID = uuid.NewString()
	}

	if p.cache.Seen(doc.DocumentID) {
		p.log.Debug("duplicate document", slog.String("id", doc.DocumentID))
		return nil
	}

	if attachmentRef != "" {
		attached, err := p.resolveAttachment(ctx, attachmentRef)
		if err != nil {
			// A broken attachment does not void the inline text. With no
			// inline text either, there is nothing left to extract from.
			p.log.Warn("attachment skipped",
				slog.Any("err", err),
				slog.String("id", doc.DocumentID),
			)
			if text == "" {
				return nil
			}
		} else if attached != "" {
			if doc.Text == "" {
				doc.Text = attached
			} else {
				doc.Text = doc.Text + "\n" + attached
			}
		}
	}

	result := p.extractor.Extract(doc)

	if err := p.corpus.UpsertExtraction(ctx, result); err != nil {
		return err
	}

	// Link harvesting is best-effort: the document is already indexed.
	if harvested := links.Harvest(doc); len(harvested) > 0 {
		if _, err := p.links.UpsertLinks(ctx, harvested); err != nil {
			p.log.Warn("store links", slog.Any("err", err), slog.String("id", doc.DocumentID))
		}
	}

	p.cache.Mark(doc.DocumentID)
	p.log.Info("indexed document",
		slog.String("id", doc.DocumentID),
		slog.Int("risk_score", result.RiskScore),
		slog.Bool("sensitive", result.IsSensitive),
	)
	return nil
}

func (p *pipeline) resolveAttachment(ctx context.Context, ref string) (string, error) {
	data, name, err := p.resolver.Resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	text, err := decode.Attachment(data, name)
	if err != nil {
		return "", err
	}
	return text, nil
}

// buildDocumentID derives a stable id so replayed messages collapse onto the
// same corpus document.
func buildDocumentID(originID, text string, ts time.Time) string {
	if originID == "" && text == "" {
		return ""
	}
	h := sha1.New()
	h.Write([]byte(originID))
	h.Write([]byte{0})
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(ts.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}
