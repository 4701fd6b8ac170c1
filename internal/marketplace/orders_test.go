package marketplace

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	o := f.directOrder(t)
	assert.Regexp(t, `^ORD-\d+-0001$`, o.OrderNumber)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, 100.0, o.TotalPrice.Amount)
	assert.False(t, o.EscrowHold)
	assert.Empty(t, o.BidID)
	require.Len(t, o.Timeline, 1)
	assert.Equal(t, TimelineEntry{
		Status:    string(StatusPending),
		Timestamp: o.CreatedAt,
		Note:      "Order placed",
		UpdatedBy: buyerA,
	}, o.Timeline[0])
	assert.Equal(t, []string{NotifyOrderPlaced}, f.notes.kinds(sellerID))

	second := f.directOrder(t)
	assert.Regexp(t, `^ORD-\d+-0002$`, second.OrderNumber)

	got, err := f.svc.GetOrder(ctx, seller, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, got.OrderNumber)
}

func TestCreateOrderRefusals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	fixed := f.listing(t, PriceFixed, 1, nil)
	negotiable := f.listing(t, PriceNegotiable, 1, nil)
	auction := f.listing(t, PriceBids, 1, nil)
	sold := f.listing(t, PriceFixed, 1, nil)
	_, err := f.svc.OverrideListingStatus(ctx, admin, sold.ID, ListingSold)
	require.NoError(t, err)

	in := func(listingID string) CreateOrderInput {
		return CreateOrderInput{
			ListingID:     listingID,
			Quantity:      Quantity{Amount: 3, Unit: UnitTons},
			Delivery:      Delivery{Method: DeliveryPickup},
			PaymentMethod: MethodBankTransfer,
		}
	}

	tests := []struct {
		name  string
		actor Actor
		in    CreateOrderInput
		kind  Kind
	}{
		{"seller role", seller, in(fixed.ID), KindForbidden},
		{"admin role", admin, in(fixed.ID), KindForbidden},
		{"bids only listing", alice, in(auction.ID), KindInvalidOperation},
		{"sold listing", alice, in(sold.ID), KindInvalidOperation},
		{"own listing", Actor{UserID: sellerID, Role: RoleBuyer}, in(fixed.ID), KindInvalidOperation},
		{"missing listing", alice, in("nope"), KindNotFound},
		{"delivery without address", alice, func() CreateOrderInput {
			v := in(fixed.ID)
			v.Delivery = Delivery{Method: DeliveryDelivery}
			return v
		}(), KindValidation},
		{"unknown payment method", alice, func() CreateOrderInput {
			v := in(fixed.ID)
			v.PaymentMethod = "barter"
			return v
		}(), KindValidation},
		{"long notes", alice, func() CreateOrderInput {
			v := in(fixed.ID)
			v.Notes = strings.Repeat("n", 501)
			return v
		}(), KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateOrder(ctx, tt.actor, tt.in)
			requireKind(t, err, tt.kind)
		})
	}

	withAddress := in(negotiable.ID)
	withAddress.Delivery = Delivery{Method: DeliveryDelivery, Address: &Address{City: "Pune"}}
	o, err := f.svc.CreateOrder(ctx, alice, withAddress)
	require.NoError(t, err)
	assert.Equal(t, "Pune", o.Delivery.Address.City)

	// Direct orders leave the listing on sale.
	l, err := f.svc.GetListing(ctx, negotiable.ID)
	require.NoError(t, err)
	assert.Equal(t, ListingActive, l.Status)
}

func TestCreateOrderRejectsOverflowingTotal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	l := f.listing(t, PriceFixed, 10, nil)

	for _, amount := range []float64{1e308, math.Inf(1), math.NaN()} {
		_, err := f.svc.CreateOrder(ctx, alice, CreateOrderInput{
			ListingID:     l.ID,
			Quantity:      Quantity{Amount: amount, Unit: UnitKg},
			Delivery:      Delivery{Method: DeliveryPickup},
			PaymentMethod: MethodStripe,
		})
		requireKind(t, err, KindValidation)
	}

	orders, _, err := f.svc.ListOrders(ctx, alice, RoleBuyer, OrderQuery{})
	require.NoError(t, err)
	assert.Empty(t, orders)

	st, err := f.svc.Stats(ctx, admin)
	require.NoError(t, err)
	_, err = json.Marshal(st)
	assert.NoError(t, err)
}

func TestUpdateStatusIsRoleGated(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.directOrder(t)

	_, err := f.svc.UpdateStatus(ctx, alice, o.ID, StatusAccepted, "")
	requireKind(t, err, KindForbidden)
	details := err.(*Error).Details
	assert.Equal(t, RoleBuyer, details["role"])
	assert.Equal(t, StatusAccepted, details["requested_status"])
	assert.Equal(t, StatusPending, details["current_status"])
	assert.Equal(t, []OrderStatus{StatusCancelled}, details["allowed"])

	for _, target := range []OrderStatus{StatusDelivered, StatusCompleted, StatusProcessing, StatusRefunded} {
		_, err := f.svc.UpdateStatus(ctx, alice, o.ID, target, "")
		requireKind(t, err, KindForbidden)
	}

	_, err = f.svc.UpdateStatus(ctx, Actor{UserID: "stranger", Role: RoleSeller}, o.ID, StatusAccepted, "")
	requireKind(t, err, KindForbidden)
	_, err = f.svc.UpdateStatus(ctx, admin, o.ID, StatusAccepted, "")
	requireKind(t, err, KindForbidden)
	_, err = f.svc.UpdateStatus(ctx, seller, o.ID, "shipped", "")
	requireKind(t, err, KindValidation)
	_, err = f.svc.UpdateStatus(ctx, seller, "missing", StatusAccepted, "")
	requireKind(t, err, KindNotFound)
	_, err = f.svc.UpdateStatus(ctx, seller, o.ID, StatusProcessing, "")
	requireKind(t, err, KindForbidden)

	got, err := f.svc.UpdateStatus(ctx, seller, o.ID, StatusInTransit, "truck left the yard")
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, got.Status)
	require.Len(t, got.Timeline, 2)
	last := got.Timeline[1]
	assert.Equal(t, string(StatusInTransit), last.Status)
	assert.Equal(t, "truck left the yard", last.Note)
	assert.Equal(t, sellerID, last.UpdatedBy)
	assert.Equal(t, []string{NotifyOrderStatus}, f.notes.kinds(buyerA))

	// The current status never narrows the targets.
	got, err = f.svc.UpdateStatus(ctx, seller, o.ID, StatusAccepted, "")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, got.Status)

	got, err = f.svc.UpdateStatus(ctx, alice, o.ID, StatusCancelled, "changed plans")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, got.Status)
	assert.Len(t, got.Timeline, 4)
	assert.Contains(t, f.notes.kinds(sellerID), NotifyOrderStatus)
}

func TestAddReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.directOrder(t)

	_, err := f.svc.AddReview(ctx, alice, o.ID, 5, "great")
	requireKind(t, err, KindInvalidOperation)

	f.setStatus(t, o.ID, StatusDelivered)

	_, err = f.svc.AddReview(ctx, alice, o.ID, 6, "")
	requireKind(t, err, KindValidation)
	_, err = f.svc.AddReview(ctx, alice, o.ID, 0, "")
	requireKind(t, err, KindValidation)
	_, err = f.svc.AddReview(ctx, bob, o.ID, 3, "")
	requireKind(t, err, KindForbidden)

	got, err := f.svc.AddReview(ctx, alice, o.ID, 5, " clean, sorted waste ")
	require.NoError(t, err)
	require.NotNil(t, got.Reviews.BuyerReview)
	assert.Equal(t, 5, got.Reviews.BuyerReview.Rating)
	assert.Equal(t, "clean, sorted waste", got.Reviews.BuyerReview.Comment)
	assert.Nil(t, got.Reviews.SellerReview)

	_, err = f.svc.AddReview(ctx, alice, o.ID, 1, "changed my mind")
	requireKind(t, err, KindInvalidOperation)

	got, err = f.svc.AddReview(ctx, seller, o.ID, 4, "")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Reviews.SellerReview.Rating)
	assert.Equal(t, 5, got.Reviews.BuyerReview.Rating)
}

func TestNegotiatePriceKeepsTotal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	o := f.directOrder(t)

	_, err := f.svc.NegotiatePrice(ctx, alice, o.ID, 80, "too short")
	requireKind(t, err, KindValidation)
	_, err = f.svc.NegotiatePrice(ctx, alice, o.ID, -1, "a long enough message")
	requireKind(t, err, KindValidation)
	_, err = f.svc.NegotiatePrice(ctx, seller, o.ID, 80, "seller cannot counter here")
	requireKind(t, err, KindForbidden)

	got, err := f.svc.NegotiatePrice(ctx, alice, o.ID, 80, "would you take 80 for it?")
	require.NoError(t, err)
	assert.Equal(t, 100.0, got.TotalPrice.Amount)
	assert.True(t, got.Negotiation.IsNegotiated)
	require.NotNil(t, got.Negotiation.OriginalPrice)
	assert.Equal(t, 100.0, *got.Negotiation.OriginalPrice)
	assert.Equal(t, 80.0, *got.Negotiation.NegotiatedPrice)
	require.Len(t, got.Negotiation.History, 1)
	assert.Equal(t, buyerA, got.Negotiation.History[0].UserID)

	got, err = f.svc.NegotiatePrice(ctx, alice, o.ID, 90, "ok, meet me at 90 then")
	require.NoError(t, err)
	assert.Equal(t, 100.0, *got.Negotiation.OriginalPrice)
	assert.Equal(t, 90.0, *got.Negotiation.NegotiatedPrice)
	assert.Len(t, got.Negotiation.History, 2)
	assert.Equal(t, 100.0, got.TotalPrice.Amount)

	_, err = f.svc.UpdateStatus(ctx, seller, o.ID, StatusAccepted, "")
	require.NoError(t, err)
	_, err = f.svc.NegotiatePrice(ctx, alice, o.ID, 85, "one more try at 85?")
	requireKind(t, err, KindInvalidOperation)
}

func TestGetAndListOrders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.directOrder(t)
	second := f.directOrder(t)
	_, err := f.svc.UpdateStatus(ctx, seller, second.ID, StatusAccepted, "")
	require.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, bob, first.ID)
	requireKind(t, err, KindForbidden)
	_, err = f.svc.GetOrder(ctx, admin, first.ID)
	require.NoError(t, err)
	_, err = f.svc.GetOrder(ctx, alice, "missing")
	requireKind(t, err, KindNotFound)

	bought, page, err := f.svc.ListOrders(ctx, alice, RoleBuyer, OrderQuery{})
	require.NoError(t, err)
	require.Len(t, bought, 2)
	assert.Equal(t, second.ID, bought[0].ID, "newest first")
	assert.Equal(t, Page{CurrentPage: 1, TotalPages: 1, TotalItems: 2, ItemsPerPage: 10}, page)

	sold, _, err := f.svc.ListOrders(ctx, seller, RoleSeller, OrderQuery{Status: StatusAccepted})
	require.NoError(t, err)
	require.Len(t, sold, 1)
	assert.Equal(t, second.ID, sold[0].ID)

	paged, page, err := f.svc.ListOrders(ctx, alice, RoleBuyer, OrderQuery{Page: 2, Limit: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, first.ID, paged[0].ID)
	assert.Equal(t, 2, page.TotalPages)

	none, _, err := f.svc.ListOrders(ctx, bob, RoleBuyer, OrderQuery{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	_, _, err = f.svc.ListOrders(ctx, alice, RoleAdmin, OrderQuery{})
	requireKind(t, err, KindValidation)
	_, _, err = f.svc.ListOrders(ctx, alice, RoleBuyer, OrderQuery{Status: "lost"})
	requireKind(t, err, KindValidation)
}
