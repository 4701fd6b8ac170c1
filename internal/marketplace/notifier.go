package marketplace

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Notification kinds.
const (
	NotifyBidReceived     = "bid:received"
	NotifyBidAccepted     = "bid:accepted"
	NotifyOrderFromBid    = "order:from_bid"
	NotifyOrderPlaced     = "order:placed"
	NotifyOrderStatus     = "order:status"
	NotifyDisputeOpened   = "dispute:opened"
	NotifyDisputeResolved = "dispute:resolved"
	NotifyEscrowReleased  = "escrow:released"
	NotifyOrderRefunded   = "order:refunded"
)

// Notification is a message for one user about a trade event.
type Notification struct {
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	Subject    string    `json:"subject"`
	Message    string    `json:"message"`
	ListingID  string    `json:"listing_id,omitempty"`
	BidID      string    `json:"bid_id,omitempty"`
	OrderID    string    `json:"order_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers notifications. The Service treats every delivery as
// best-effort: errors are logged and never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// NopNotifier drops everything.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, Notification) error { return nil }

// MultiNotifier fans a notification out to every sink. One failing sink does
// not stop the others; the failures are joined.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// notify delivers n and swallows any failure, including a panic in the sink.
func (s *Service) notify(ctx context.Context, n Notification) {
	if n.UserID == "" {
		return
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = s.now()
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("notification panicked", "kind", n.Kind, "user_id", n.UserID, "panic", fmt.Sprint(r))
		}
	}()
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		s.log.Warn("notification failed", "kind", n.Kind, "user_id", n.UserID, "error", err)
	}
}
