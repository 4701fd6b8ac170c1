package marketplace

import (
	"math"
	"time"
)

// Role is the platform role carried in the bearer token.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

type Unit string

const (
	UnitKg          Unit = "kg"
	UnitTons        Unit = "tons"
	UnitPounds      Unit = "pounds"
	UnitCubicMeters Unit = "cubic_meters"
)

func (u Unit) Valid() bool {
	switch u {
	case UnitKg, UnitTons, UnitPounds, UnitCubicMeters:
		return true
	}
	return false
}

// Quantity is an amount of waste in a given unit.
type Quantity struct {
	Amount float64 `json:"amount" validate:"gt=0"`
	Unit   Unit    `json:"unit" validate:"required,oneof=kg tons pounds cubic_meters"`
}

const DefaultCurrency = "USD"

// finite reports whether v is neither NaN nor infinite.
func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// lineTotal prices qty at the listing's unit price. A product too large to
// represent is a validation error.
func (l *Listing) lineTotal(qty Quantity) (float64, error) {
	total := l.Price.PerUnit * qty.Amount
	if !finite(total) {
		return 0, errValidation("order total is out of range", "quantity", qty.Amount, "per_unit", l.Price.PerUnit)
	}
	return total, nil
}

func validCurrency(c string) bool {
	switch c {
	case "USD", "EUR", "GBP", "INR":
		return true
	}
	return false
}

// Money is an amount in a listing currency.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type PriceType string

const (
	PriceFixed      PriceType = "fixed"
	PriceBids       PriceType = "bids"
	PriceNegotiable PriceType = "negotiable"
)

func (p PriceType) Valid() bool {
	return p == PriceFixed || p == PriceBids || p == PriceNegotiable
}

// Price describes how a listing is sold.
type Price struct {
	PerUnit      float64   `json:"per_unit"`
	Currency     string    `json:"currency"`
	Negotiable   bool      `json:"negotiable"`
	PriceType    PriceType `json:"price_type"`
	MinBid       *float64  `json:"min_bid,omitempty"`
	ReservePrice *float64  `json:"reserve_price,omitempty"`
}

type ListingStatus string

const (
	ListingActive    ListingStatus = "active"
	ListingPending   ListingStatus = "pending"
	ListingSold      ListingStatus = "sold"
	ListingExpired   ListingStatus = "expired"
	ListingCancelled ListingStatus = "cancelled"
)

func (s ListingStatus) Valid() bool {
	switch s {
	case ListingActive, ListingPending, ListingSold, ListingExpired, ListingCancelled:
		return true
	}
	return false
}

// Listing is a sellable unit of waste posted by a supplier.
type Listing struct {
	ID          string        `json:"id"`
	SellerID    string        `json:"seller_id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Category    string        `json:"category,omitempty"`
	Condition   string        `json:"condition,omitempty"`
	Quantity    Quantity      `json:"quantity"`
	Price       Price         `json:"price"`
	Status      ListingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// AllowsDirectOrder reports whether the listing supports buy-now checkout.
func (l *Listing) AllowsDirectOrder() bool {
	return l.Price.PriceType == PriceFixed || l.Price.PriceType == PriceNegotiable
}

type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
	BidExpired   BidStatus = "expired"
)

// Bid is an offer against a listing that accepts bids. Amount is the price
// per unit offered.
type Bid struct {
	ID        string     `json:"id"`
	ListingID string     `json:"listing_id"`
	BidderID  string     `json:"bidder_id"`
	Amount    float64    `json:"amount"`
	Quantity  Quantity   `json:"quantity"`
	Message   string     `json:"message,omitempty"`
	Status    BidStatus  `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Expired reports whether the bid's expiry has passed at now, regardless of
// its stored status.
func (b *Bid) Expired(now time.Time) bool {
	return b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodStripe         PaymentMethod = "stripe"
	MethodPaypal         PaymentMethod = "paypal"
	MethodBankTransfer   PaymentMethod = "bank_transfer"
	MethodCashOnDelivery PaymentMethod = "cash_on_delivery"
	MethodRazorpay       PaymentMethod = "razorpay"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodStripe, MethodPaypal, MethodBankTransfer, MethodCashOnDelivery, MethodRazorpay:
		return true
	}
	return false
}

type DeliveryMethod string

const (
	DeliveryPickup   DeliveryMethod = "pickup"
	DeliveryDelivery DeliveryMethod = "delivery"
)

type Address struct {
	Street  string `json:"street,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	ZipCode string `json:"zip_code,omitempty"`
	Country string `json:"country,omitempty"`
}

type Delivery struct {
	Method        DeliveryMethod `json:"method"`
	Address       *Address       `json:"address,omitempty"`
	ScheduledDate *time.Time     `json:"scheduled_date,omitempty"`
	Notes         string         `json:"notes,omitempty"`
}

type NegotiationEntry struct {
	UserID    string    `json:"user_id"`
	Price     float64   `json:"price"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Negotiation records buyer counter-offers. NegotiatedPrice is never written
// back onto the order's TotalPrice.
type Negotiation struct {
	IsNegotiated    bool               `json:"is_negotiated"`
	OriginalPrice   *float64           `json:"original_price,omitempty"`
	NegotiatedPrice *float64           `json:"negotiated_price,omitempty"`
	History         []NegotiationEntry `json:"negotiation_history"`
}

type Review struct {
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment,omitempty"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

type Reviews struct {
	BuyerReview  *Review `json:"buyer_review,omitempty"`
	SellerReview *Review `json:"seller_review,omitempty"`
}

type Dispute struct {
	IsOpen         bool       `json:"is_open"`
	Reason         string     `json:"reason,omitempty"`
	OpenedAt       *time.Time `json:"opened_at,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	Action         string     `json:"action,omitempty"`
}

// TimelineEntry is one line of an order's append-only audit log.
type TimelineEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
}

// Order is a buyer-seller transaction for some quantity of a listing.
type Order struct {
	ID            string          `json:"id"`
	OrderNumber   string          `json:"order_number"`
	BuyerID       string          `json:"buyer_id"`
	SellerID      string          `json:"seller_id"`
	ListingID     string          `json:"listing_id"`
	BidID         string          `json:"bid_id,omitempty"`
	Quantity      Quantity        `json:"quantity"`
	TotalPrice    Money           `json:"total_price"`
	Status        OrderStatus     `json:"status"`
	PaymentStatus PaymentStatus   `json:"payment_status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentID     string          `json:"payment_id,omitempty"`
	Delivery      Delivery        `json:"delivery"`
	Negotiation   Negotiation     `json:"negotiation"`
	EscrowHold    bool            `json:"escrow_hold"`
	Dispute       Dispute         `json:"dispute"`
	Timeline      []TimelineEntry `json:"timeline"`
	Reviews       Reviews         `json:"reviews"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// record appends to the timeline. Existing entries are never edited.
func (o *Order) record(status, note, by string, at time.Time) {
	o.Timeline = append(o.Timeline, TimelineEntry{
		Status:    status,
		Timestamp: at,
		Note:      note,
		UpdatedBy: by,
	})
	o.UpdatedAt = at
}

// partyRole returns the actor's role on this order, or "" when the user is
// neither buyer nor seller.
func (o *Order) partyRole(userID string) Role {
	switch userID {
	case o.BuyerID:
		return RoleBuyer
	case o.SellerID:
		return RoleSeller
	}
	return ""
}

// counterpart returns the other party of the order.
func (o *Order) counterpart(userID string) string {
	if userID == o.BuyerID {
		return o.SellerID
	}
	return o.BuyerID
}

// Page carries pagination metadata for list responses.
type Page struct {
	CurrentPage  int `json:"current_page"`
	TotalPages   int `json:"total_pages"`
	TotalItems   int `json:"total_items"`
	ItemsPerPage int `json:"items_per_page"`
}

func newPage(page, limit, total int) Page {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page{CurrentPage: page, TotalPages: pages, TotalItems: total, ItemsPerPage: limit}
}
