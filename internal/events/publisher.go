// Package events publishes trade notifications to Kafka for downstream
// consumers such as analytics and the SMS sender.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafka "github.com/segmentio/kafka-go"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

const DefaultTopic = "order-events"

// writer is the part of *kafka.Writer the publisher uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the record written to the topic.
type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	ListingID  string    `json:"listing_id,omitempty"`
	BidID      string    `json:"bid_id,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher is a marketplace.Notifier that writes each notification as an
// Event keyed by the entity it concerns, so a consumer sees one order's
// events in order.
type Publisher struct {
	w       writer
	timeout time.Duration
}

// NewPublisher writes to topic on brokers. Writes are asynchronous: Notify
// returns once the message is queued and delivery failures are logged.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	return newPublisher(newWriter(brokers, topic, logger))
}

func newWriter(brokers []string, topic string, logger *slog.Logger) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		Async:                  true,
		BatchTimeout:           10 * time.Millisecond,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				logger.Warn("order event delivery failed", "topic", topic, "messages", len(msgs), "error", err)
			}
		},
	}
}

func newPublisher(w writer) *Publisher {
	return &Publisher{w: w, timeout: 5 * time.Second}
}

func (p *Publisher) Notify(ctx context.Context, n marketplace.Notification) error {
	ev := Event{
		Type:       n.Kind,
		UserID:     n.UserID,
		ListingID:  n.ListingID,
		BidID:      n.BidID,
		OrderID:    n.OrderID,
		Status:     n.Status,
		Subject:    n.Subject,
		OccurredAt: n.OccurredAt,
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key(n)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(n.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", n.Kind, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

func key(n marketplace.Notification) string {
	switch {
	case n.OrderID != "":
		return n.OrderID
	case n.ListingID != "":
		return n.ListingID
	}
	return n.UserID
}
