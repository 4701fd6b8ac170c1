package marketplace

import (
	"context"
	"fmt"
	"strings"
)

type DisputeAction string

const (
	ActionRefundBuyer   DisputeAction = "refund_buyer"
	ActionReleaseSeller DisputeAction = "release_seller"
	ActionPartialRefund DisputeAction = "partial_refund"
	ActionNoAction      DisputeAction = "no_action"
)

func (a DisputeAction) Valid() bool {
	switch a {
	case ActionRefundBuyer, ActionReleaseSeller, ActionPartialRefund, ActionNoAction:
		return true
	}
	return false
}

// OpenDispute flags an order for admin review.
func (s *Service) OpenDispute(ctx context.Context, actor Actor, orderID, reason string) (*Order, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < 10 || len(reason) > 500 {
		return nil, errValidation("reason must be between 10 and 500 characters")
	}
	var out *Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := s.loadOrder(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if o.partyRole(actor.UserID) == "" {
			return errForbidden("you are not a party to this order")
		}
		if o.Dispute.IsOpen {
			return errInvalid("a dispute is already open for this order", "opened_at", o.Dispute.OpenedAt)
		}
		now := s.now()
		o.Dispute = Dispute{IsOpen: true, Reason: reason, OpenedAt: &now}
		o.record(eventDisputeOpened, reason, actor.UserID, now)
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("dispute opened", "order_id", out.ID, "by", actor.UserID)
	s.notify(ctx, Notification{
		Kind:    NotifyDisputeOpened,
		UserID:  out.counterpart(actor.UserID),
		Subject: fmt.Sprintf("Dispute opened on order #%s", out.OrderNumber),
		Message: "A dispute was opened: " + reason,
		OrderID: out.ID,
		Status:  string(out.Status),
	})
	return out, nil
}

// ResolveDispute closes an open dispute. refund_buyer refunds a paid order
// and release_seller completes it; the other actions only close the dispute.
func (s *Service) ResolveDispute(ctx context.Context, actor Actor, orderID, resolution string, action DisputeAction) (*Order, error) {
	if !actor.IsAdmin() {
		return nil, errForbidden("admin access only", "role", actor.Role)
	}
	if !action.Valid() {
		return nil, errValidation("invalid action", "action", action)
	}
	resolution = strings.TrimSpace(resolution)
	if len(resolution) < 10 || len(resolution) > 1000 {
		return nil, errValidation("resolution must be between 10 and 1000 characters")
	}
	var out *Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := s.loadOrder(ctx, tx, orderID, true)
		if err != nil {
			if KindOf(err) == KindNotFound {
				return errNotFound("open dispute not found", "order_id", orderID)
			}
			return err
		}
		if !o.Dispute.IsOpen {
			return errNotFound("open dispute not found", "order_id", orderID)
		}
		now := s.now()
		o.Dispute.IsOpen = false
		o.Dispute.ResolvedAt = &now
		o.Dispute.ResolutionNote = resolution
		o.Dispute.Action = string(action)
		o.record(eventDisputeResolved, fmt.Sprintf("%s: %s", action, resolution), actor.UserID, now)

		switch action {
		case ActionRefundBuyer:
			if o.PaymentStatus == PaymentPaid {
				o.PaymentStatus = PaymentRefunded
				o.Status = StatusRefunded
				o.EscrowHold = false
				o.record(string(StatusRefunded), "Refunded to buyer after dispute", actor.UserID, now)
			}
		case ActionReleaseSeller:
			o.EscrowHold = false
			o.Status = StatusCompleted
			o.record(string(StatusCompleted), "Escrow released to seller after dispute", actor.UserID, now)
		}
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("dispute resolved", "order_id", out.ID, "action", action, "admin_id", actor.UserID)
	for _, uid := range []string{out.BuyerID, out.SellerID} {
		s.notify(ctx, Notification{
			Kind:    NotifyDisputeResolved,
			UserID:  uid,
			Subject: fmt.Sprintf("Dispute on order #%s resolved", out.OrderNumber),
			Message: fmt.Sprintf("Outcome: %s. %s", action, resolution),
			OrderID: out.ID,
			Status:  string(out.Status),
		})
	}
	return out, nil
}

// ReleaseEscrow lets the seller settle a paid order once goods are on the
// way or delivered.
func (s *Service) ReleaseEscrow(ctx context.Context, actor Actor, orderID string) (*Order, error) {
	var out *Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := s.loadOrder(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if o.SellerID != actor.UserID {
			return errForbidden("only the seller can release escrow", "role", o.partyRole(actor.UserID))
		}
		if o.PaymentStatus != PaymentPaid || !o.EscrowHold {
			return errInvalid("no escrow to release", "payment_status", o.PaymentStatus, "escrow_hold", o.EscrowHold)
		}
		if o.Status != StatusDelivered && o.Status != StatusInTransit {
			return errInvalid("escrow can be released only once the order is in transit or delivered", "current_status", o.Status)
		}
		now := s.now()
		o.EscrowHold = false
		o.Status = StatusCompleted
		o.record(string(StatusCompleted), "Escrow released", actor.UserID, now)
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("escrow released", "order_id", out.ID, "seller_id", actor.UserID)
	s.notify(ctx, Notification{
		Kind:    NotifyEscrowReleased,
		UserID:  out.BuyerID,
		Subject: fmt.Sprintf("Order #%s completed", out.OrderNumber),
		Message: fmt.Sprintf("The seller released escrow on order %s.", out.OrderNumber),
		OrderID: out.ID,
		Status:  string(out.Status),
	})
	return out, nil
}

// ListDisputes pages through orders that have ever had a dispute, most
// recently opened first. open narrows to open or resolved disputes.
func (s *Service) ListDisputes(ctx context.Context, actor Actor, open *bool, page, limit int) ([]Order, Page, error) {
	if !actor.IsAdmin() {
		return nil, Page{}, errForbidden("admin access only", "role", actor.Role)
	}
	page, limit = pageBounds(page, limit, 100)
	items, total, err := s.store.ListOrders(ctx, OrderFilter{
		DisputeEver: true,
		DisputeOpen: open,
		Limit:       limit,
		Offset:      (page - 1) * limit,
	})
	if err != nil {
		return nil, Page{}, fmt.Errorf("list disputes: %w", err)
	}
	if items == nil {
		items = []Order{}
	}
	return items, newPage(page, limit, total), nil
}
