// Package kafka publishes alert lifecycle events to a Kafka topic for
// downstream consumers that want a durable feed alongside the WebSocket push.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-alert-relay/internal/domain"
	"github.com/couchcryptid/storm-alert-relay/internal/store"
)

// queueSize bounds the in-flight lifecycle records. The feed is best-effort;
// overflow drops the oldest pending record rather than stalling the store.
const queueSize = 512

// Publisher mirrors store events onto a Kafka topic.
type Publisher struct {
	writer *kafkago.Writer
	logger *slog.Logger
	queue  chan lifecycleRecord
}

// lifecycleRecord is the published message body.
type lifecycleRecord struct {
	Event     string       `json:"event"` // new, update, remove
	Reason    string       `json:"reason,omitempty"`
	Alert     domain.Alert `json:"alert"`
	Timestamp time.Time    `json:"timestamp"`
}

// NewPublisher creates a producer for the lifecycle topic.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Publisher{
		writer: w,
		logger: logger.With("component", "kafka"),
		queue:  make(chan lifecycleRecord, queueSize),
	}
}

// Listener adapts the publisher to the store's event feed. It never blocks
// the store; when the queue is full the event is dropped and logged.
func (p *Publisher) Listener() store.Listener {
	return func(ev store.Event) {
		rec := lifecycleRecord{
			Event:     string(ev.Type),
			Reason:    ev.Reason,
			Alert:     ev.Alert,
			Timestamp: time.Now().UTC(),
		}
		select {
		case p.queue <- rec:
		default:
			p.logger.Warn("lifecycle queue full, dropping event",
				"product_id", ev.Alert.ProductID, "event", ev.Type)
		}
	}
}

// Run publishes queued records until the context ends.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-p.queue:
			msg, err := serializeToMessage(rec)
			if err != nil {
				p.logger.Error("serializing lifecycle record failed", "error", err)
				continue
			}
			if err := p.writer.WriteMessages(ctx, msg); err != nil {
				p.logger.Error("publishing lifecycle record failed",
					"product_id", rec.Alert.ProductID, "error", err)
			}
		}
	}
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

// serializeToMessage marshals a lifecycle record into a Kafka message keyed
// by product id.
func serializeToMessage(rec lifecycleRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize lifecycle record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.Alert.ProductID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(rec.Event)},
			{Key: "published_at", Value: []byte(rec.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}
