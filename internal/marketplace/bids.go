package marketplace

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type PlaceBidInput struct {
	ListingID string
	Amount    float64
	Quantity  Quantity
	Message   string
	ExpiresAt *time.Time
}

// PlaceBid records a pending offer on a listing that takes bids.
func (s *Service) PlaceBid(ctx context.Context, actor Actor, in PlaceBidInput) (*Bid, error) {
	if in.Amount <= 0 || !finite(in.Amount) {
		return nil, errValidation("bid amount must be positive", "amount", in.Amount)
	}
	if in.Quantity.Amount <= 0 || !finite(in.Quantity.Amount) || !in.Quantity.Unit.Valid() {
		return nil, errValidation("quantity must be positive with a valid unit", "unit", in.Quantity.Unit)
	}
	if len(in.Message) > 500 {
		return nil, errValidation("message must be at most 500 characters")
	}

	l, err := s.loadListing(ctx, s.store, in.ListingID, false)
	if err != nil {
		return nil, err
	}
	if l.Price.PriceType != PriceBids {
		return nil, errInvalid("this listing does not accept bids", "price_type", l.Price.PriceType)
	}
	if l.Status != ListingActive {
		return nil, errInvalid("listing is not active", "listing_status", l.Status)
	}
	if l.SellerID == actor.UserID {
		return nil, errInvalid("you cannot bid on your own listing")
	}
	if _, err := l.lineTotal(in.Quantity); err != nil {
		return nil, err
	}
	if l.Price.MinBid != nil && in.Amount < *l.Price.MinBid {
		return nil, errInvalid(fmt.Sprintf("bid amount must be at least %.2f", *l.Price.MinBid),
			"min_bid", *l.Price.MinBid, "amount", in.Amount)
	}

	now := s.now()
	if in.ExpiresAt != nil && !in.ExpiresAt.After(now) {
		return nil, errValidation("expiry must be in the future")
	}
	b := &Bid{
		ID:        s.newID(),
		ListingID: l.ID,
		BidderID:  actor.UserID,
		Amount:    in.Amount,
		Quantity:  in.Quantity,
		Message:   strings.TrimSpace(in.Message),
		Status:    BidPending,
		ExpiresAt: in.ExpiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertBid(ctx, b); err != nil {
		return nil, fmt.Errorf("insert bid: %w", err)
	}
	s.log.Info("bid placed", "bid_id", b.ID, "listing_id", l.ID, "bidder_id", b.BidderID, "amount", b.Amount)

	s.notify(ctx, Notification{
		Kind:      NotifyBidReceived,
		UserID:    l.SellerID,
		Subject:   "New Bid Received",
		Message:   fmt.Sprintf("You received a bid of %.2f %s per %s for %q.", b.Amount, l.Price.Currency, l.Quantity.Unit, l.Title),
		ListingID: l.ID,
		BidID:     b.ID,
	})
	return b, nil
}

// ListBids returns the bids on a listing, highest amount first. The seller
// and admins see every bid; anyone else sees only their own.
func (s *Service) ListBids(ctx context.Context, actor Actor, listingID string) ([]Bid, error) {
	l, err := s.loadListing(ctx, s.store, listingID, false)
	if err != nil {
		return nil, err
	}
	f := BidFilter{ListingID: l.ID}
	if l.SellerID != actor.UserID && !actor.IsAdmin() {
		f.BidderID = actor.UserID
	}
	bids, err := s.store.ListBids(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bids: %w", err)
	}
	if bids == nil {
		bids = []Bid{}
	}
	return bids, nil
}

// AcceptBid makes bid the single winner on its listing. In one transaction
// it rejects every other pending bid, flips the bid to accepted, creates the
// order and marks the listing sold. A bid that stopped being pending between
// the checks and the write fails with Conflict.
func (s *Service) AcceptBid(ctx context.Context, actor Actor, bidID string) (*Bid, *Order, error) {
	var (
		bid     *Bid
		order   *Order
		listing *Listing
	)
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		peek, err := s.loadBid(ctx, tx, bidID, false)
		if err != nil {
			return err
		}
		// Listing first, then bid: every accept on a listing queues on the
		// same row lock.
		l, err := s.loadListing(ctx, tx, peek.ListingID, true)
		if err != nil {
			return err
		}
		b, err := s.loadBid(ctx, tx, bidID, true)
		if err != nil {
			return err
		}
		if l.SellerID != actor.UserID {
			return errForbidden("only the listing owner can accept bids", "role", actor.Role)
		}
		if b.Status != BidPending {
			return errInvalid("bid is no longer pending", "bid_status", b.Status)
		}
		now := s.now()
		if b.Expired(now) {
			return errInvalid("bid has expired", "bid_status", BidExpired, "expires_at", b.ExpiresAt)
		}
		if l.Status != ListingActive {
			return errInvalid("listing is not active", "listing_status", l.Status)
		}
		if _, err := l.lineTotal(b.Quantity); err != nil {
			return err
		}

		rejected, err := tx.RejectPendingBids(ctx, l.ID, b.ID, now)
		if err != nil {
			return fmt.Errorf("reject sibling bids: %w", err)
		}
		ok, err := tx.SetBidStatus(ctx, b.ID, BidPending, BidAccepted, now)
		if err != nil {
			return fmt.Errorf("accept bid: %w", err)
		}
		if !ok {
			return errConflict("bid changed while being accepted", "bid_id", b.ID)
		}
		b.Status = BidAccepted
		b.UpdatedAt = now

		seq, err := tx.NextOrderSeq(ctx)
		if err != nil {
			return fmt.Errorf("next order number: %w", err)
		}
		o := newOrderFromBid(s.newID(), orderNumber(now, seq), l, b, now)
		if err := tx.InsertOrder(ctx, o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		if err := tx.UpdateListingStatus(ctx, l.ID, ListingSold, now); err != nil {
			return fmt.Errorf("mark listing sold: %w", err)
		}
		l.Status = ListingSold

		s.log.Info("bid accepted", "bid_id", b.ID, "listing_id", l.ID, "order_id", o.ID, "rejected_siblings", rejected)
		bid, order, listing = b, o, l
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.notify(ctx, Notification{
		Kind:      NotifyOrderFromBid,
		UserID:    listing.SellerID,
		Subject:   fmt.Sprintf("Order #%s created from accepted bid", order.OrderNumber),
		Message:   fmt.Sprintf("You accepted a bid for %q. Order %s totals %.2f %s.", listing.Title, order.OrderNumber, order.TotalPrice.Amount, order.TotalPrice.Currency),
		ListingID: listing.ID,
		BidID:     bid.ID,
		OrderID:   order.ID,
	})
	s.notify(ctx, Notification{
		Kind:      NotifyBidAccepted,
		UserID:    bid.BidderID,
		Subject:   "Your bid was accepted",
		Message:   fmt.Sprintf("Your bid on %q was accepted. Order %s has been placed.", listing.Title, order.OrderNumber),
		ListingID: listing.ID,
		BidID:     bid.ID,
		OrderID:   order.ID,
	})
	return bid, order, nil
}

// RejectBid lets the listing owner turn down a pending bid.
func (s *Service) RejectBid(ctx context.Context, actor Actor, bidID string) (*Bid, error) {
	return s.closeBid(ctx, bidID, BidRejected, func(l *Listing, b *Bid) error {
		if l.SellerID != actor.UserID {
			return errForbidden("only the listing owner can reject bids", "role", actor.Role)
		}
		return nil
	})
}

// WithdrawBid lets the bidder pull a pending bid.
func (s *Service) WithdrawBid(ctx context.Context, actor Actor, bidID string) (*Bid, error) {
	return s.closeBid(ctx, bidID, BidWithdrawn, func(_ *Listing, b *Bid) error {
		if b.BidderID != actor.UserID {
			return errForbidden("only the bidder can withdraw a bid", "role", actor.Role)
		}
		return nil
	})
}

func (s *Service) closeBid(ctx context.Context, bidID string, to BidStatus, authorize func(*Listing, *Bid) error) (*Bid, error) {
	var out *Bid
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := s.loadBid(ctx, tx, bidID, true)
		if err != nil {
			return err
		}
		l, err := s.loadListing(ctx, tx, b.ListingID, false)
		if err != nil {
			return err
		}
		if err := authorize(l, b); err != nil {
			return err
		}
		if b.Status != BidPending {
			return errInvalid("only pending bids can be "+string(to), "bid_status", b.Status)
		}
		now := s.now()
		ok, err := tx.SetBidStatus(ctx, b.ID, BidPending, to, now)
		if err != nil {
			return fmt.Errorf("set bid status: %w", err)
		}
		if !ok {
			return errConflict("bid changed concurrently", "bid_id", b.ID)
		}
		b.Status = to
		b.UpdatedAt = now
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("bid closed", "bid_id", out.ID, "status", out.Status)
	return out, nil
}
