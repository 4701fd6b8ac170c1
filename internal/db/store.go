package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

// querier is what both the pool and a transaction offer.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres marketplace.Store.
type Store struct {
	queries
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{q: pool}, pool: pool}
}

// WithTx runs fn in a transaction. Rows read with forUpdate stay locked
// until it returns.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx marketplace.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("transaction start failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

type queries struct {
	q querier
}

func noRecord(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return marketplace.ErrNoRecord
	}
	return err
}

func lockClause(forUpdate bool) string {
	if forUpdate {
		return " FOR UPDATE"
	}
	return ""
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const listingColumns = `id, seller_id, title, description, category, condition,
    quantity_amount, quantity_unit, price_per_unit, currency, negotiable, price_type,
    min_bid, reserve_price, status, created_at, updated_at`

func scanListing(row pgx.Row) (*marketplace.Listing, error) {
	var l marketplace.Listing
	err := row.Scan(&l.ID, &l.SellerID, &l.Title, &l.Description, &l.Category, &l.Condition,
		&l.Quantity.Amount, &l.Quantity.Unit, &l.Price.PerUnit, &l.Price.Currency, &l.Price.Negotiable, &l.Price.PriceType,
		&l.Price.MinBid, &l.Price.ReservePrice, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *queries) GetListing(ctx context.Context, id string, forUpdate bool) (*marketplace.Listing, error) {
	row := s.q.QueryRow(ctx, `SELECT `+listingColumns+` FROM waste_listings WHERE id = $1`+lockClause(forUpdate), id)
	l, err := scanListing(row)
	if err != nil {
		return nil, noRecord(err)
	}
	return l, nil
}

func (s *queries) InsertListing(ctx context.Context, l *marketplace.Listing) error {
	_, err := s.q.Exec(ctx, `
        INSERT INTO waste_listings (`+listingColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		l.ID, l.SellerID, l.Title, l.Description, l.Category, l.Condition,
		l.Quantity.Amount, l.Quantity.Unit, l.Price.PerUnit, l.Price.Currency, l.Price.Negotiable, l.Price.PriceType,
		l.Price.MinBid, l.Price.ReservePrice, l.Status, l.CreatedAt, l.UpdatedAt,
	)
	return err
}

func (s *queries) UpdateListingStatus(ctx context.Context, id string, status marketplace.ListingStatus, at time.Time) error {
	tag, err := s.q.Exec(ctx, `UPDATE waste_listings SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.ErrNoRecord
	}
	return nil
}

// where accumulates AND-ed conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) addRaw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *where) page(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	w.args = append(w.args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(w.args)-1, len(w.args))
}

func (s *queries) ListListings(ctx context.Context, f marketplace.ListingFilter) ([]marketplace.Listing, int, error) {
	var w where
	if f.SellerID != "" {
		w.add("seller_id = ?", f.SellerID)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.Category != "" {
		w.add("category = ?", f.Category)
	}
	if f.PriceType != "" {
		w.add("price_type = ?", f.PriceType)
	}
	var total int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM waste_listings`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	cond := w.String()
	rows, err := s.q.Query(ctx, `SELECT `+listingColumns+` FROM waste_listings`+cond+
		` ORDER BY created_at DESC`+w.page(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []marketplace.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *l)
	}
	return out, total, rows.Err()
}

const bidColumns = `id, listing_id, bidder_id, amount, quantity_amount, quantity_unit,
    message, status, expires_at, created_at, updated_at`

func scanBid(row pgx.Row) (*marketplace.Bid, error) {
	var b marketplace.Bid
	err := row.Scan(&b.ID, &b.ListingID, &b.BidderID, &b.Amount, &b.Quantity.Amount, &b.Quantity.Unit,
		&b.Message, &b.Status, &b.ExpiresAt, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *queries) GetBid(ctx context.Context, id string, forUpdate bool) (*marketplace.Bid, error) {
	row := s.q.QueryRow(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`+lockClause(forUpdate), id)
	b, err := scanBid(row)
	if err != nil {
		return nil, noRecord(err)
	}
	return b, nil
}

func (s *queries) InsertBid(ctx context.Context, b *marketplace.Bid) error {
	_, err := s.q.Exec(ctx, `
        INSERT INTO bids (`+bidColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.ListingID, b.BidderID, b.Amount, b.Quantity.Amount, b.Quantity.Unit,
		b.Message, b.Status, b.ExpiresAt, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

func (s *queries) ListBids(ctx context.Context, f marketplace.BidFilter) ([]marketplace.Bid, error) {
	var w where
	if f.ListingID != "" {
		w.add("listing_id = ?", f.ListingID)
	}
	if f.BidderID != "" {
		w.add("bidder_id = ?", f.BidderID)
	}
	rows, err := s.q.Query(ctx, `SELECT `+bidColumns+` FROM bids`+w.String()+
		` ORDER BY amount DESC, created_at DESC`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []marketplace.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *queries) SetBidStatus(ctx context.Context, id string, from, to marketplace.BidStatus, at time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE bids SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`,
		id, from, to, at,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *queries) RejectPendingBids(ctx context.Context, listingID, keep string, at time.Time) (int, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE bids SET status = 'rejected', updated_at = $3
         WHERE listing_id = $1 AND id <> $2 AND status = 'pending'`,
		listingID, keep, at,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *queries) NextOrderSeq(ctx context.Context) (int64, error) {
	var n int64
	err := s.q.QueryRow(ctx, `SELECT nextval('order_number_seq')`).Scan(&n)
	return n, err
}

const orderColumns = `id, order_number, buyer_id, seller_id, listing_id, COALESCE(bid_id, ''),
    quantity_amount, quantity_unit, total_amount, currency, status, payment_status,
    payment_method, payment_id, delivery, negotiation, escrow_hold, dispute, timeline,
    reviews, notes, created_at, updated_at`

func scanOrder(row pgx.Row) (*marketplace.Order, error) {
	var (
		o                                                 marketplace.Order
		delivery, negotiation, dispute, timeline, reviews []byte
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.BuyerID, &o.SellerID, &o.ListingID, &o.BidID,
		&o.Quantity.Amount, &o.Quantity.Unit, &o.TotalPrice.Amount, &o.TotalPrice.Currency, &o.Status, &o.PaymentStatus,
		&o.PaymentMethod, &o.PaymentID, &delivery, &negotiation, &o.EscrowHold, &dispute, &timeline,
		&reviews, &o.Notes, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	docs := []struct {
		raw []byte
		dst any
	}{
		{delivery, &o.Delivery},
		{negotiation, &o.Negotiation},
		{dispute, &o.Dispute},
		{timeline, &o.Timeline},
		{reviews, &o.Reviews},
	}
	for _, d := range docs {
		if len(d.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(d.raw, d.dst); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", o.ID, err)
		}
	}
	return &o, nil
}

// orderDocs encodes the embedded sub-documents in column order.
func orderDocs(o *marketplace.Order) (delivery, negotiation, dispute, timeline, reviews []byte, err error) {
	if delivery, err = json.Marshal(o.Delivery); err != nil {
		return
	}
	if negotiation, err = json.Marshal(o.Negotiation); err != nil {
		return
	}
	if dispute, err = json.Marshal(o.Dispute); err != nil {
		return
	}
	tl := o.Timeline
	if tl == nil {
		tl = []marketplace.TimelineEntry{}
	}
	if timeline, err = json.Marshal(tl); err != nil {
		return
	}
	reviews, err = json.Marshal(o.Reviews)
	return
}

func (s *queries) GetOrder(ctx context.Context, id string, forUpdate bool) (*marketplace.Order, error) {
	row := s.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`+lockClause(forUpdate), id)
	o, err := scanOrder(row)
	if err != nil {
		return nil, noRecord(err)
	}
	return o, nil
}

func (s *queries) InsertOrder(ctx context.Context, o *marketplace.Order) error {
	delivery, negotiation, dispute, timeline, reviews, err := orderDocs(o)
	if err != nil {
		return err
	}
	_, err = s.q.Exec(ctx, `
        INSERT INTO orders (
            id, order_number, buyer_id, seller_id, listing_id, bid_id,
            quantity_amount, quantity_unit, total_amount, currency, status, payment_status,
            payment_method, payment_id, delivery, negotiation, escrow_hold, dispute,
            dispute_open, dispute_opened_at, timeline, reviews, notes, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
            $19, $20, $21, $22, $23, $24, $25)`,
		o.ID, o.OrderNumber, o.BuyerID, o.SellerID, o.ListingID, nullString(o.BidID),
		o.Quantity.Amount, o.Quantity.Unit, o.TotalPrice.Amount, o.TotalPrice.Currency, o.Status, o.PaymentStatus,
		o.PaymentMethod, o.PaymentID, delivery, negotiation, o.EscrowHold, dispute,
		o.Dispute.IsOpen, o.Dispute.OpenedAt, timeline, reviews, o.Notes, o.CreatedAt, o.UpdatedAt,
	)
	return err
}

// UpdateOrder writes every mutable column. order_number, parties, listing,
// bid and created_at are never rewritten.
func (s *queries) UpdateOrder(ctx context.Context, o *marketplace.Order) error {
	delivery, negotiation, dispute, timeline, reviews, err := orderDocs(o)
	if err != nil {
		return err
	}
	tag, err := s.q.Exec(ctx, `
        UPDATE orders SET
            quantity_amount = $2, quantity_unit = $3, total_amount = $4, currency = $5,
            status = $6, payment_status = $7, payment_method = $8, payment_id = $9,
            delivery = $10, negotiation = $11, escrow_hold = $12, dispute = $13,
            dispute_open = $14, dispute_opened_at = $15, timeline = $16, reviews = $17,
            notes = $18, updated_at = $19
        WHERE id = $1`,
		o.ID, o.Quantity.Amount, o.Quantity.Unit, o.TotalPrice.Amount, o.TotalPrice.Currency,
		o.Status, o.PaymentStatus, o.PaymentMethod, o.PaymentID,
		delivery, negotiation, o.EscrowHold, dispute,
		o.Dispute.IsOpen, o.Dispute.OpenedAt, timeline, reviews,
		o.Notes, o.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return marketplace.ErrNoRecord
	}
	return nil
}

func (s *queries) ListOrders(ctx context.Context, f marketplace.OrderFilter) ([]marketplace.Order, int, error) {
	var w where
	if f.BuyerID != "" {
		w.add("buyer_id = ?", f.BuyerID)
	}
	if f.SellerID != "" {
		w.add("seller_id = ?", f.SellerID)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if f.DisputeOpen != nil {
		w.add("dispute_open = ?", *f.DisputeOpen)
	}
	order := " ORDER BY created_at DESC"
	if f.DisputeEver {
		w.addRaw("dispute_opened_at IS NOT NULL")
		order = " ORDER BY dispute_opened_at DESC"
	}
	var total int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM orders`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	cond := w.String()
	rows, err := s.q.Query(ctx, `SELECT `+orderColumns+` FROM orders`+cond+order+w.page(f.Limit, f.Offset), w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []marketplace.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *o)
	}
	return out, total, rows.Err()
}

func (s *queries) Stats(ctx context.Context) (*marketplace.Stats, error) {
	st := &marketplace.Stats{Revenue: map[string]float64{}}
	err := s.q.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'active')
		FROM waste_listings`).Scan(&st.TotalListings, &st.ActiveListings)
	if err != nil {
		return nil, fmt.Errorf("count listings: %w", err)
	}
	err = s.q.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE dispute_open)
		FROM orders`).Scan(&st.TotalOrders, &st.PendingOrders, &st.DeliveredOrders, &st.OpenDisputes)
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	rows, err := s.q.Query(ctx, `
		SELECT currency, COALESCE(SUM(total_amount), 0)
		FROM orders WHERE payment_status = 'paid'
		GROUP BY currency`)
	if err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			currency string
			amount   float64
		)
		if err := rows.Scan(&currency, &amount); err != nil {
			return nil, err
		}
		st.Revenue[currency] = amount
	}
	return st, rows.Err()
}
