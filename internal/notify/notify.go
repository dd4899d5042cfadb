// Package notify hands alert notifications to the external dispatcher.
// Delivery is best-effort: the core publishes an event and moves on.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Notifier sends one notification to a recipient.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Event is the wire shape consumed by the notification dispatcher.
type Event struct {
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Kafka publishes notification events to a topic.
type Kafka struct {
	writer *kafka.Writer
}

// NewKafka builds a notifier writing to the given topic.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:     brokers,
			Topic:       topic,
			MaxAttempts: 3,
		}),
	}
}

// Send publishes one notification event.
func (k *Kafka) Send(ctx context.Context, recipient, subject, body string) error {
	payload, err := json.Marshal(Event{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipient),
		Value: payload,
	}); err != nil {
		return fmt.Errorf("write notification: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *Kafka) Close() error {
	return k.writer.Close()
}
