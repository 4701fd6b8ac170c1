package marketplace

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// orderNumber renders the human-readable order number. seq comes from the
// store and is unique, so the number is unique even within one millisecond.
func orderNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%d-%04d", at.UnixMilli(), seq%10000)
}

// newDirectOrder is the buy-now entry point. Orders start pending.
func newDirectOrder(id, number, buyerID string, l *Listing, qty Quantity, delivery Delivery, method PaymentMethod, notes string, at time.Time) *Order {
	o := &Order{
		ID:            id,
		OrderNumber:   number,
		BuyerID:       buyerID,
		SellerID:      l.SellerID,
		ListingID:     l.ID,
		Quantity:      qty,
		TotalPrice:    Money{Amount: l.Price.PerUnit * qty.Amount, Currency: l.Price.Currency},
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		PaymentMethod: method,
		Delivery:      delivery,
		Negotiation:   Negotiation{History: []NegotiationEntry{}},
		Notes:         notes,
		CreatedAt:     at,
	}
	o.record(string(StatusPending), "Order placed", buyerID, at)
	return o
}

// newOrderFromBid is the bid-acceptance entry point. Orders start placed,
// default to pickup and are priced from the listing, not the bid amount.
func newOrderFromBid(id, number string, l *Listing, b *Bid, at time.Time) *Order {
	o := &Order{
		ID:            id,
		OrderNumber:   number,
		BuyerID:       b.BidderID,
		SellerID:      l.SellerID,
		ListingID:     l.ID,
		BidID:         b.ID,
		Quantity:      b.Quantity,
		TotalPrice:    Money{Amount: l.Price.PerUnit * b.Quantity.Amount, Currency: l.Price.Currency},
		Status:        StatusPlaced,
		PaymentStatus: PaymentPending,
		PaymentMethod: MethodStripe,
		Delivery:      Delivery{Method: DeliveryPickup},
		Negotiation:   Negotiation{History: []NegotiationEntry{}},
		CreatedAt:     at,
	}
	o.record(string(StatusPlaced), "Order created from accepted bid", l.SellerID, at)
	return o
}

type CreateOrderInput struct {
	ListingID     string
	Quantity      Quantity
	Delivery      Delivery
	PaymentMethod PaymentMethod
	Notes         string
}

// CreateOrder is the direct purchase path for fixed and negotiable listings.
func (s *Service) CreateOrder(ctx context.Context, actor Actor, in CreateOrderInput) (*Order, error) {
	if actor.Role != RoleBuyer {
		return nil, errForbidden("only buyers can place orders", "role", actor.Role)
	}
	if in.Quantity.Amount <= 0 || !finite(in.Quantity.Amount) || !in.Quantity.Unit.Valid() {
		return nil, errValidation("quantity must be positive with a valid unit", "unit", in.Quantity.Unit)
	}
	if in.Delivery.Method != DeliveryPickup && in.Delivery.Method != DeliveryDelivery {
		return nil, errValidation("invalid delivery method", "method", in.Delivery.Method)
	}
	if in.Delivery.Method == DeliveryDelivery && in.Delivery.Address == nil {
		return nil, errValidation("delivery address is required for delivery")
	}
	if !in.PaymentMethod.Valid() {
		return nil, errValidation("invalid payment method", "payment_method", in.PaymentMethod)
	}
	if len(in.Notes) > 500 {
		return nil, errValidation("notes must be at most 500 characters")
	}

	var (
		order   *Order
		listing *Listing
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		l, err := s.loadListing(ctx, tx, in.ListingID, true)
		if err != nil {
			return err
		}
		if l.Status != ListingActive {
			return errInvalid("listing is not available", "listing_status", l.Status)
		}
		if l.SellerID == actor.UserID {
			return errInvalid("you cannot order your own listing")
		}
		if !l.AllowsDirectOrder() {
			return errInvalid("this listing only accepts bids", "price_type", l.Price.PriceType)
		}
		if _, err := l.lineTotal(in.Quantity); err != nil {
			return err
		}
		now := s.now()
		seq, err := tx.NextOrderSeq(ctx)
		if err != nil {
			return fmt.Errorf("next order number: %w", err)
		}
		o := newDirectOrder(s.newID(), orderNumber(now, seq), actor.UserID, l, in.Quantity, in.Delivery, in.PaymentMethod, strings.TrimSpace(in.Notes), now)
		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		order, listing = o, l
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order placed", "order_id", order.ID, "order_number", order.OrderNumber, "buyer_id", order.BuyerID, "listing_id", order.ListingID)

	s.notify(ctx, Notification{
		Kind:    NotifyOrderPlaced,
		UserID:  order.SellerID,
		Subject: fmt.Sprintf("New Order #%s - Get Ready!", order.OrderNumber),
		Message: fmt.Sprintf("Order %s: %s, %g %s, total %.2f %s. Please get ready.",
			order.OrderNumber, listing.Title, order.Quantity.Amount, order.Quantity.Unit, order.TotalPrice.Amount, order.TotalPrice.Currency),
		ListingID: listing.ID,
		OrderID:   order.ID,
		Status:    string(order.Status),
	})
	return order, nil
}

// UpdateStatus applies a party's status change. Which targets are allowed
// depends only on the caller's role on the order, never on the current
// status.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, orderID string, target OrderStatus, note string) (*Order, error) {
	if !target.Valid() {
		return nil, errValidation("invalid status", "status", target)
	}
	var out *Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := s.loadOrder(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		role := o.partyRole(actor.UserID)
		if role == "" {
			return errForbidden("you are not a party to this order", "current_status", o.Status)
		}
		if !CanSetStatus(role, target) {
			return errForbidden(fmt.Sprintf("%s cannot set status %s", role, target),
				"role", role, "requested_status", target, "current_status", o.Status, "allowed", AllowedTargets(role))
		}
		now := s.now()
		o.Status = target
		o.record(string(target), note, actor.UserID, now)
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("order status updated", "order_id", out.ID, "status", out.Status, "by", actor.UserID)

	s.notify(ctx, Notification{
		Kind:    NotifyOrderStatus,
		UserID:  out.counterpart(actor.UserID),
		Subject: fmt.Sprintf("Order #%s is now %s", out.OrderNumber, out.Status),
		Message: statusMessage(out, note),
		OrderID: out.ID,
		Status:  string(out.Status),
	})
	return out, nil
}

func statusMessage(o *Order, note string) string {
	msg := fmt.Sprintf("Order %s status changed to %s.", o.OrderNumber, o.Status)
	if note != "" {
		msg += " Note: " + note
	}
	return msg
}

// AddReview stores the caller's review of a delivered order. Each side
// reviews at most once.
func (s *Service) AddReview(ctx context.Context, actor Actor, orderID string, rating int, comment string) (*Order, error) {
	if rating < 1 || rating > 5 {
		return nil, errValidation("rating must be between 1 and 5", "rating", rating)
	}
	if len(comment) > 500 {
		return nil, errValidation("comment must be at most 500 characters")
	}
	var out *Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := s.loadOrder(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		role := o.partyRole(actor.UserID)
		if role == "" {
			return errForbidden("you are not a party to this order")
		}
		if o.Status != StatusDelivered {
			return errInvalid("can only review delivered orders", "current_status", o.Status)
		}
		slot := &o.Reviews.BuyerReview
		if role == RoleSeller {
			slot = &o.Reviews.SellerReview
		}
		if *slot != nil {
			return errInvalid("you have already reviewed this order", "role", role)
		}
		now := s.now()
		*slot = &Review{Rating: rating, Comment: strings.TrimSpace(comment), ReviewedAt: now}
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// NegotiatePrice records a buyer counter-offer on a pending order.
// TotalPrice stays as computed at creation.
func (s *Service) NegotiatePrice(ctx context.Context, actor Actor, orderID string, price float64, message string) (*Order, error) {
	if price < 0 || !finite(price) {
		return nil, errValidation("price must not be negative", "price", price)
	}
	message = strings.TrimSpace(message)
	if len(message) < 10 || len(message) > 500 {
		return nil, errValidation("message must be between 10 and 500 characters")
	}
	var out *Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := s.loadOrder(ctx, tx, orderID, true)
		if err != nil {
			return err
		}
		if o.BuyerID != actor.UserID {
			return errForbidden("only the buyer can negotiate the price", "role", o.partyRole(actor.UserID))
		}
		if o.Status != StatusPending {
			return errInvalid("can only negotiate pending orders", "current_status", o.Status)
		}
		now := s.now()
		if o.Negotiation.OriginalPrice == nil {
			orig := o.TotalPrice.Amount
			o.Negotiation.OriginalPrice = &orig
		}
		o.Negotiation.History = append(o.Negotiation.History, NegotiationEntry{
			UserID:    actor.UserID,
			Price:     price,
			Message:   message,
			Timestamp: now,
		})
		o.Negotiation.IsNegotiated = true
		o.Negotiation.NegotiatedPrice = &price
		o.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, o); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("price negotiated", "order_id", out.ID, "price", price)
	return out, nil
}

// GetOrder returns an order to one of its parties or an admin.
func (s *Service) GetOrder(ctx context.Context, actor Actor, orderID string) (*Order, error) {
	o, err := s.loadOrder(ctx, s.store, orderID, false)
	if err != nil {
		return nil, err
	}
	if o.partyRole(actor.UserID) == "" && !actor.IsAdmin() {
		return nil, errForbidden("you are not a party to this order")
	}
	return o, nil
}

type OrderQuery struct {
	Status OrderStatus
	Page   int
	Limit  int
}

// ListOrders pages through the caller's orders on one side of the trade.
func (s *Service) ListOrders(ctx context.Context, actor Actor, side Role, q OrderQuery) ([]Order, Page, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, Page{}, errValidation("invalid status", "status", q.Status)
	}
	page, limit := pageBounds(q.Page, q.Limit, 50)
	f := OrderFilter{Status: q.Status, Limit: limit, Offset: (page - 1) * limit}
	switch side {
	case RoleBuyer:
		f.BuyerID = actor.UserID
	case RoleSeller:
		f.SellerID = actor.UserID
	default:
		return nil, Page{}, errValidation("side must be buyer or seller", "side", side)
	}
	items, total, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, Page{}, fmt.Errorf("list orders: %w", err)
	}
	if items == nil {
		items = []Order{}
	}
	return items, newPage(page, limit, total), nil
}
