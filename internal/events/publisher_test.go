package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

type fakeWriter struct {
	msgs     []kafka.Message
	err      error
	closed   bool
	deadline bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublisherKeysByEntity(t *testing.T) {
	w := &fakeWriter{}
	p := newPublisher(w)
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	require.NoError(t, p.Notify(ctx, marketplace.Notification{
		Kind: marketplace.NotifyOrderStatus, UserID: "u1", ListingID: "l1", OrderID: "o1",
		Status: "accepted", Subject: "Order accepted", OccurredAt: at,
	}))
	require.NoError(t, p.Notify(ctx, marketplace.Notification{Kind: marketplace.NotifyBidReceived, UserID: "u1", ListingID: "l1", BidID: "b1"}))
	require.NoError(t, p.Notify(ctx, marketplace.Notification{Kind: "misc", UserID: "u1"}))

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "o1", string(w.msgs[0].Key))
	assert.Equal(t, "l1", string(w.msgs[1].Key))
	assert.Equal(t, "u1", string(w.msgs[2].Key))
	assert.True(t, w.deadline)

	assert.Equal(t, []kafka.Header{{Key: "type", Value: []byte(marketplace.NotifyOrderStatus)}}, w.msgs[0].Headers)
	var ev Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, Event{
		Type:       marketplace.NotifyOrderStatus,
		UserID:     "u1",
		ListingID:  "l1",
		OrderID:    "o1",
		Status:     "accepted",
		Subject:    "Order accepted",
		OccurredAt: at,
	}, ev)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublisherWrapsWriteErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newPublisher(w)
	err := p.Notify(context.Background(), marketplace.Notification{Kind: marketplace.NotifyOrderPlaced, UserID: "u1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, w.err)
	assert.Contains(t, err.Error(), marketplace.NotifyOrderPlaced)
}

func TestNewWriterDoesNotBlockCallers(t *testing.T) {
	var logs strings.Builder
	w := newWriter([]string{"k1:9092", "k2:9092"}, "", slog.New(slog.NewTextHandler(&logs, nil)))

	assert.True(t, w.Async)
	assert.LessOrEqual(t, w.BatchTimeout, 10*time.Millisecond)
	assert.Equal(t, DefaultTopic, w.Topic)
	assert.Equal(t, "k1:9092,k2:9092", w.Addr.String())
	require.NotNil(t, w.Completion)

	w.Completion([]kafka.Message{{Key: []byte("o1")}}, nil)
	assert.Empty(t, logs.String())
	w.Completion([]kafka.Message{{Key: []byte("o1")}}, errors.New("leader not available"))
	assert.Contains(t, logs.String(), "order event delivery failed")
	assert.Contains(t, logs.String(), "leader not available")

	quiet := newWriter([]string{"k1:9092"}, "trades", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "trades", quiet.Topic)
}
