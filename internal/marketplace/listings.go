package marketplace

import (
	"context"
	"strings"
)

type CreateListingInput struct {
	Title       string
	Description string
	Category    string
	Condition   string
	Quantity    Quantity
	Price       Price
}

// CreateListing posts a new active listing for a seller.
func (s *Service) CreateListing(ctx context.Context, actor Actor, in CreateListingInput) (*Listing, error) {
	if actor.Role != RoleSeller && !actor.IsAdmin() {
		return nil, errForbidden("only sellers can create listings", "role", actor.Role)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, errValidation("title is required")
	}
	if in.Quantity.Amount <= 0 || !finite(in.Quantity.Amount) || !in.Quantity.Unit.Valid() {
		return nil, errValidation("quantity must be positive with a valid unit", "unit", in.Quantity.Unit)
	}
	if in.Price.Currency == "" {
		in.Price.Currency = DefaultCurrency
	}
	if !validCurrency(in.Price.Currency) {
		return nil, errValidation("unsupported currency", "currency", in.Price.Currency)
	}
	if !in.Price.PriceType.Valid() {
		return nil, errValidation("invalid price type", "price_type", in.Price.PriceType)
	}
	if in.Price.PerUnit < 0 || !finite(in.Price.PerUnit) {
		return nil, errValidation("price per unit must not be negative")
	}
	if in.Price.MinBid != nil && (*in.Price.MinBid < 0 || !finite(*in.Price.MinBid)) {
		return nil, errValidation("minimum bid must not be negative")
	}
	if in.Price.ReservePrice != nil && (*in.Price.ReservePrice < 0 || !finite(*in.Price.ReservePrice)) {
		return nil, errValidation("reserve price must not be negative")
	}

	now := s.now()
	l := &Listing{
		ID:          s.newID(),
		SellerID:    actor.UserID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Category:    in.Category,
		Condition:   in.Condition,
		Quantity:    in.Quantity,
		Price:       in.Price,
		Status:      ListingActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.InsertListing(ctx, l); err != nil {
		return nil, err
	}
	s.log.Info("listing created", "listing_id", l.ID, "seller_id", l.SellerID, "price_type", l.Price.PriceType)
	return l, nil
}

func (s *Service) GetListing(ctx context.Context, id string) (*Listing, error) {
	return s.loadListing(ctx, s.store, id, false)
}

type ListingQuery struct {
	Category  string
	PriceType PriceType
	Status    ListingStatus
	Page      int
	Limit     int
}

// ListListings returns listings newest first. Status defaults to active.
func (s *Service) ListListings(ctx context.Context, q ListingQuery) ([]Listing, Page, error) {
	page, limit := pageBounds(q.Page, q.Limit, 100)
	status := q.Status
	if status == "" {
		status = ListingActive
	}
	items, total, err := s.store.ListListings(ctx, ListingFilter{
		Status:    status,
		Category:  q.Category,
		PriceType: q.PriceType,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	})
	if err != nil {
		return nil, Page{}, err
	}
	return items, newPage(page, limit, total), nil
}

// OverrideListingStatus is the admin path for changing a listing that has
// otherwise become immutable, such as a sold one.
func (s *Service) OverrideListingStatus(ctx context.Context, actor Actor, id string, status ListingStatus) (*Listing, error) {
	if !actor.IsAdmin() {
		return nil, errForbidden("admin access only", "role", actor.Role)
	}
	if !status.Valid() {
		return nil, errValidation("invalid listing status", "status", status)
	}
	var out *Listing
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		l, err := s.loadListing(ctx, tx, id, true)
		if err != nil {
			return err
		}
		now := s.now()
		if err := tx.UpdateListingStatus(ctx, id, status, now); err != nil {
			return err
		}
		s.log.Info("listing status overridden", "listing_id", id, "from", l.Status, "to", status, "admin_id", actor.UserID)
		l.Status = status
		l.UpdatedAt = now
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
