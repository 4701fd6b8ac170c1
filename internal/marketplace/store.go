package marketplace

import (
	"context"
	"time"
)

// Tx is the set of persistence operations the trade core needs. Lookups
// return ErrNoRecord when nothing matches. forUpdate asks the backend to lock
// the row until the surrounding transaction ends.
type Tx interface {
	GetListing(ctx context.Context, id string, forUpdate bool) (*Listing, error)
	InsertListing(ctx context.Context, l *Listing) error
	UpdateListingStatus(ctx context.Context, id string, status ListingStatus, at time.Time) error
	ListListings(ctx context.Context, f ListingFilter) ([]Listing, int, error)

	GetBid(ctx context.Context, id string, forUpdate bool) (*Bid, error)
	InsertBid(ctx context.Context, b *Bid) error
	ListBids(ctx context.Context, f BidFilter) ([]Bid, error)
	// SetBidStatus moves a bid from one status to another only if it still
	// holds from. It reports whether the row changed.
	SetBidStatus(ctx context.Context, id string, from, to BidStatus, at time.Time) (bool, error)
	// RejectPendingBids rejects every pending bid on the listing except keep.
	RejectPendingBids(ctx context.Context, listingID, keep string, at time.Time) (int, error)

	NextOrderSeq(ctx context.Context) (int64, error)
	GetOrder(ctx context.Context, id string, forUpdate bool) (*Order, error)
	InsertOrder(ctx context.Context, o *Order) error
	UpdateOrder(ctx context.Context, o *Order) error
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error)

	// Stats counts listings and orders for the admin dashboard.
	Stats(ctx context.Context) (*Stats, error)
}

// Store is a Tx outside any transaction plus the ability to run a unit of
// work atomically. If fn returns an error nothing it wrote is kept.
type Store interface {
	Tx
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type ListingFilter struct {
	SellerID  string
	Status    ListingStatus
	Category  string
	PriceType PriceType
	Limit     int
	Offset    int
}

type BidFilter struct {
	ListingID string
	// BidderID restricts the result to one bidder's bids when set.
	BidderID string
}

type OrderFilter struct {
	BuyerID  string
	SellerID string
	Status   OrderStatus
	// DisputeOpen filters on dispute state when non-nil; DisputeEver
	// restricts to orders that have had a dispute at all.
	DisputeOpen *bool
	DisputeEver bool
	Limit       int
	Offset      int
}
