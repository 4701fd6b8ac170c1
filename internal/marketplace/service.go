// Package marketplace implements the trade core of the waste marketplace:
// listings, the bid engine, the order state machine, the payment-event
// adapter and the dispute and escrow resolver, plus their HTTP handlers.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Service runs every trade operation as one unit of work against a Store.
type Service struct {
	store    Store
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, notifier Notifier, opts ...Option) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	s := &Service{
		store:    store,
		notifier: notifier,
		log:      slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Store exposes the backing store, used by readiness checks.
func (s *Service) Store() Store { return s.store }

func (s *Service) loadListing(ctx context.Context, tx Tx, id string, forUpdate bool) (*Listing, error) {
	l, err := tx.GetListing(ctx, id, forUpdate)
	if errors.Is(err, ErrNoRecord) {
		return nil, errNotFound("listing not found", "listing_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load listing %s: %w", id, err)
	}
	return l, nil
}

func (s *Service) loadBid(ctx context.Context, tx Tx, id string, forUpdate bool) (*Bid, error) {
	b, err := tx.GetBid(ctx, id, forUpdate)
	if errors.Is(err, ErrNoRecord) {
		return nil, errNotFound("bid not found", "bid_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load bid %s: %w", id, err)
	}
	return b, nil
}

func (s *Service) loadOrder(ctx context.Context, tx Tx, id string, forUpdate bool) (*Order, error) {
	o, err := tx.GetOrder(ctx, id, forUpdate)
	if errors.Is(err, ErrNoRecord) {
		return nil, errNotFound("order not found", "order_id", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", id, err)
	}
	return o, nil
}

// pageBounds normalizes 1-based page/limit query values.
func pageBounds(page, limit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}
