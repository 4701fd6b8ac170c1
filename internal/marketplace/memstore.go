package marketplace

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps everything in process memory. Transactions are
// serialized and run against a copy that replaces the live data on success.
// It backs tests and STORE=memory local runs.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.data.clone()
	if err := fn(ctx, work); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *MemoryStore) GetListing(ctx context.Context, id string, forUpdate bool) (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetListing(ctx, id, forUpdate)
}

func (s *MemoryStore) InsertListing(ctx context.Context, l *Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertListing(ctx, l)
}

func (s *MemoryStore) UpdateListingStatus(ctx context.Context, id string, status ListingStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateListingStatus(ctx, id, status, at)
}

func (s *MemoryStore) ListListings(ctx context.Context, f ListingFilter) ([]Listing, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListListings(ctx, f)
}

func (s *MemoryStore) GetBid(ctx context.Context, id string, forUpdate bool) (*Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetBid(ctx, id, forUpdate)
}

func (s *MemoryStore) InsertBid(ctx context.Context, b *Bid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertBid(ctx, b)
}

func (s *MemoryStore) ListBids(ctx context.Context, f BidFilter) ([]Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListBids(ctx, f)
}

func (s *MemoryStore) SetBidStatus(ctx context.Context, id string, from, to BidStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.SetBidStatus(ctx, id, from, to, at)
}

func (s *MemoryStore) RejectPendingBids(ctx context.Context, listingID, keep string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.RejectPendingBids(ctx, listingID, keep, at)
}

func (s *MemoryStore) NextOrderSeq(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.NextOrderSeq(ctx)
}

func (s *MemoryStore) GetOrder(ctx context.Context, id string, forUpdate bool) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.GetOrder(ctx, id, forUpdate)
}

func (s *MemoryStore) InsertOrder(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.InsertOrder(ctx, o)
}

func (s *MemoryStore) UpdateOrder(ctx context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.UpdateOrder(ctx, o)
}

func (s *MemoryStore) ListOrders(ctx context.Context, f OrderFilter) ([]Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.ListOrders(ctx, f)
}

func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Stats(ctx)
}

// memData is the unlocked state. It implements Tx directly.
type memData struct {
	listings map[string]Listing
	bids     map[string]Bid
	orders   map[string]Order
	orderSeq int64
}

func newMemData() *memData {
	return &memData{
		listings: make(map[string]Listing),
		bids:     make(map[string]Bid),
		orders:   make(map[string]Order),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	c.orderSeq = d.orderSeq
	for k, v := range d.listings {
		c.listings[k] = cloneListing(v)
	}
	for k, v := range d.bids {
		c.bids[k] = cloneBid(v)
	}
	for k, v := range d.orders {
		c.orders[k] = cloneOrder(v)
	}
	return c
}

func (d *memData) GetListing(_ context.Context, id string, _ bool) (*Listing, error) {
	l, ok := d.listings[id]
	if !ok {
		return nil, ErrNoRecord
	}
	l = cloneListing(l)
	return &l, nil
}

func (d *memData) InsertListing(_ context.Context, l *Listing) error {
	d.listings[l.ID] = cloneListing(*l)
	return nil
}

func (d *memData) UpdateListingStatus(_ context.Context, id string, status ListingStatus, at time.Time) error {
	l, ok := d.listings[id]
	if !ok {
		return ErrNoRecord
	}
	l.Status = status
	l.UpdatedAt = at
	d.listings[id] = l
	return nil
}

func (d *memData) ListListings(_ context.Context, f ListingFilter) ([]Listing, int, error) {
	var out []Listing
	for _, l := range d.listings {
		if f.SellerID != "" && l.SellerID != f.SellerID {
			continue
		}
		if f.Status != "" && l.Status != f.Status {
			continue
		}
		if f.Category != "" && l.Category != f.Category {
			continue
		}
		if f.PriceType != "" && l.Price.PriceType != f.PriceType {
			continue
		}
		out = append(out, cloneListing(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	return paginate(out, f.Limit, f.Offset), total, nil
}

func (d *memData) GetBid(_ context.Context, id string, _ bool) (*Bid, error) {
	b, ok := d.bids[id]
	if !ok {
		return nil, ErrNoRecord
	}
	b = cloneBid(b)
	return &b, nil
}

func (d *memData) InsertBid(_ context.Context, b *Bid) error {
	d.bids[b.ID] = cloneBid(*b)
	return nil
}

func (d *memData) ListBids(_ context.Context, f BidFilter) ([]Bid, error) {
	var out []Bid
	for _, b := range d.bids {
		if f.ListingID != "" && b.ListingID != f.ListingID {
			continue
		}
		if f.BidderID != "" && b.BidderID != f.BidderID {
			continue
		}
		out = append(out, cloneBid(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount > out[j].Amount
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (d *memData) SetBidStatus(_ context.Context, id string, from, to BidStatus, at time.Time) (bool, error) {
	b, ok := d.bids[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = at
	d.bids[id] = b
	return true, nil
}

func (d *memData) RejectPendingBids(_ context.Context, listingID, keep string, at time.Time) (int, error) {
	n := 0
	for id, b := range d.bids {
		if b.ListingID != listingID || id == keep || b.Status != BidPending {
			continue
		}
		b.Status = BidRejected
		b.UpdatedAt = at
		d.bids[id] = b
		n++
	}
	return n, nil
}

func (d *memData) NextOrderSeq(context.Context) (int64, error) {
	d.orderSeq++
	return d.orderSeq, nil
}

func (d *memData) GetOrder(_ context.Context, id string, _ bool) (*Order, error) {
	o, ok := d.orders[id]
	if !ok {
		return nil, ErrNoRecord
	}
	o = cloneOrder(o)
	return &o, nil
}

func (d *memData) InsertOrder(_ context.Context, o *Order) error {
	d.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (d *memData) UpdateOrder(_ context.Context, o *Order) error {
	if _, ok := d.orders[o.ID]; !ok {
		return ErrNoRecord
	}
	d.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (d *memData) ListOrders(_ context.Context, f OrderFilter) ([]Order, int, error) {
	var out []Order
	for _, o := range d.orders {
		if f.BuyerID != "" && o.BuyerID != f.BuyerID {
			continue
		}
		if f.SellerID != "" && o.SellerID != f.SellerID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if f.DisputeEver && o.Dispute.OpenedAt == nil {
			continue
		}
		if f.DisputeOpen != nil && o.Dispute.IsOpen != *f.DisputeOpen {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	if f.DisputeEver {
		sort.Slice(out, func(i, j int) bool { return out[i].Dispute.OpenedAt.After(*out[j].Dispute.OpenedAt) })
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	}
	total := len(out)
	return paginate(out, f.Limit, f.Offset), total, nil
}

func (d *memData) Stats(context.Context) (*Stats, error) {
	st := &Stats{Revenue: map[string]float64{}}
	for _, l := range d.listings {
		st.TotalListings++
		if l.Status == ListingActive {
			st.ActiveListings++
		}
	}
	for _, o := range d.orders {
		st.TotalOrders++
		switch o.Status {
		case StatusPending:
			st.PendingOrders++
		case StatusDelivered:
			st.DeliveredOrders++
		}
		if o.Dispute.IsOpen {
			st.OpenDisputes++
		}
		if o.PaymentStatus == PaymentPaid {
			st.Revenue[o.TotalPrice.Currency] += o.TotalPrice.Amount
		}
	}
	return st, nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func cloneListing(l Listing) Listing {
	if l.Price.MinBid != nil {
		v := *l.Price.MinBid
		l.Price.MinBid = &v
	}
	if l.Price.ReservePrice != nil {
		v := *l.Price.ReservePrice
		l.Price.ReservePrice = &v
	}
	return l
}

func cloneBid(b Bid) Bid {
	if b.ExpiresAt != nil {
		t := *b.ExpiresAt
		b.ExpiresAt = &t
	}
	return b
}

func cloneOrder(o Order) Order {
	o.Timeline = append([]TimelineEntry(nil), o.Timeline...)
	o.Negotiation.History = append([]NegotiationEntry(nil), o.Negotiation.History...)
	o.Negotiation.OriginalPrice = clonePtr(o.Negotiation.OriginalPrice)
	o.Negotiation.NegotiatedPrice = clonePtr(o.Negotiation.NegotiatedPrice)
	o.Reviews.BuyerReview = clonePtr(o.Reviews.BuyerReview)
	o.Reviews.SellerReview = clonePtr(o.Reviews.SellerReview)
	o.Dispute.OpenedAt = clonePtr(o.Dispute.OpenedAt)
	o.Dispute.ResolvedAt = clonePtr(o.Dispute.ResolvedAt)
	o.Delivery.Address = clonePtr(o.Delivery.Address)
	o.Delivery.ScheduledDate = clonePtr(o.Delivery.ScheduledDate)
	return o
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
