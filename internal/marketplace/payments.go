package marketplace

import (
	"context"
	"fmt"
	"strings"
)

// PaymentEvent is a provider callback reduced to what the order cares about.
// The signature has already been checked by the time one is built.
type PaymentEvent struct {
	OrderID   string
	Provider  PaymentMethod
	PaymentID string
	Succeeded bool
	// ActorID is set on client-driven verification and must be the buyer.
	// Webhooks leave it empty.
	ActorID string
	Note    string
}

// ApplyPaymentEvent moves an order's payment state. Replaying a success or
// a failure with the same payment id changes nothing, which makes
// at-least-once delivery from providers safe. The returned bool reports whether the
// order was modified.
func (s *Service) ApplyPaymentEvent(ctx context.Context, ev PaymentEvent) (*Order, bool, error) {
	if ev.OrderID == "" {
		return nil, false, errValidation("order id is required")
	}
	if ev.Succeeded && ev.PaymentID == "" {
		return nil, false, errValidation("payment id is required")
	}
	var (
		out     *Order
		changed bool
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := s.loadOrder(ctx, tx, ev.OrderID, true)
		if err != nil {
			return err
		}
		if ev.ActorID != "" && o.BuyerID != ev.ActorID {
			return errForbidden("only the buyer can verify this payment", "role", o.partyRole(ev.ActorID))
		}
		out = o
		now := s.now()
		by := "system"
		if ev.ActorID != "" {
			by = ev.ActorID
		}

		if ev.Succeeded {
			switch o.PaymentStatus {
			case PaymentPaid:
				if o.PaymentID == ev.PaymentID {
					return nil
				}
				return errInvalid("order is already paid", "payment_status", o.PaymentStatus, "payment_id", o.PaymentID)
			case PaymentRefunded:
				return errInvalid("order has been refunded", "payment_status", o.PaymentStatus)
			}
			o.PaymentStatus = PaymentPaid
			o.PaymentID = ev.PaymentID
			if ev.Provider != "" {
				o.PaymentMethod = ev.Provider
			}
			if o.Status == StatusConfirmed || o.Status == StatusPending {
				o.Status = StatusProcessing
			}
			o.EscrowHold = true
			note := ev.Note
			if note == "" {
				note = fmt.Sprintf("Payment %s received via %s", ev.PaymentID, o.PaymentMethod)
			}
			o.record(string(o.Status), note, by, now)
		} else {
			if o.PaymentStatus == PaymentPaid || o.PaymentStatus == PaymentRefunded {
				return nil
			}
			if o.PaymentStatus == PaymentFailed && o.PaymentID == ev.PaymentID {
				return nil
			}
			o.PaymentStatus = PaymentFailed
			o.PaymentID = ev.PaymentID
			note := ev.Note
			if note == "" {
				note = "Payment failed"
			}
			o.record(string(o.Status), note, by, now)
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if changed {
		s.log.Info("payment applied", "order_id", out.ID, "payment_status", out.PaymentStatus, "status", out.Status, "provider", ev.Provider)
		s.notify(ctx, Notification{
			Kind:    NotifyOrderStatus,
			UserID:  out.SellerID,
			Subject: fmt.Sprintf("Payment %s for order #%s", out.PaymentStatus, out.OrderNumber),
			Message: fmt.Sprintf("Payment for order %s is %s.", out.OrderNumber, out.PaymentStatus),
			OrderID: out.ID,
			Status:  string(out.Status),
		})
	}
	return out, changed, nil
}

// RefundOrder lets the seller hand a captured payment back to the buyer.
// The provider-side refund is issued by the caller; this records its effect
// on the order.
func (s *Service) RefundOrder(ctx context.Context, actor Actor, orderID, reason string) (*Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" || len(reason) > 500 {
		return nil, errValidation("reason must be between 1 and 500 characters")
	}
	var out *Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := s.loadOrder(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if o.SellerID != actor.UserID {
			return errForbidden("only the seller can refund this order", "role", o.partyRole(actor.UserID))
		}
		if o.PaymentStatus != PaymentPaid || o.PaymentID == "" {
			return errInvalid("no payment to refund", "payment_status", o.PaymentStatus)
		}
		now := s.now()
		o.PaymentStatus = PaymentRefunded
		o.Status = StatusRefunded
		o.EscrowHold = false
		o.record(string(StatusRefunded), "Refund processed: "+reason, actor.UserID, now)
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order refunded", "order_id", out.ID, "seller_id", actor.UserID, "payment_id", out.PaymentID)
	s.notify(ctx, Notification{
		Kind:    NotifyOrderRefunded,
		UserID:  out.BuyerID,
		Subject: fmt.Sprintf("Order #%s refunded", out.OrderNumber),
		Message: fmt.Sprintf("The seller refunded order %s: %s", out.OrderNumber, reason),
		OrderID: out.ID,
		Status:  string(out.Status),
	})
	return out, nil
}

// PaymentMethodInfo describes a checkout option.
type PaymentMethodInfo struct {
	ID          PaymentMethod `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Enabled     bool          `json:"enabled"`
}

// PaymentMethods lists the checkout options. Card gateways are enabled only
// when their secret is configured.
func PaymentMethods(stripeEnabled, razorpayEnabled bool) []PaymentMethodInfo {
	return []PaymentMethodInfo{
		{ID: MethodStripe, Name: "Credit/Debit Card", Description: "Pay securely with Stripe", Enabled: stripeEnabled},
		{ID: MethodRazorpay, Name: "Razorpay", Description: "UPI, cards and netbanking", Enabled: razorpayEnabled},
		{ID: MethodPaypal, Name: "PayPal", Description: "Pay with your PayPal account", Enabled: false},
		{ID: MethodBankTransfer, Name: "Bank Transfer", Description: "Direct bank transfer", Enabled: true},
		{ID: MethodCashOnDelivery, Name: "Cash on Delivery", Description: "Pay when the waste is collected", Enabled: true},
	}
}
