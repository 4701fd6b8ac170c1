package marketplace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.directOrder(t)
	disputed := f.directOrder(t)
	_, err := f.svc.OpenDispute(ctx, alice, disputed.ID, reason)
	require.NoError(t, err)
	f.paidOrder(t)

	l := f.listing(t, PriceBids, 1, ptr(1.0))
	b := f.bid(t, bob, l.ID, 2)
	_, won, err := f.svc.AcceptBid(ctx, seller, b.ID)
	require.NoError(t, err)

	_, err = f.svc.Stats(ctx, seller)
	requireKind(t, err, KindForbidden)

	st, err := f.svc.Stats(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalListings)
	assert.Equal(t, 3, st.ActiveListings)
	assert.Equal(t, 4, st.TotalOrders)
	assert.Equal(t, 2, st.PendingOrders)
	assert.Zero(t, st.DeliveredOrders)
	assert.Equal(t, 1, st.OpenDisputes)
	assert.Equal(t, map[string]float64{"USD": 100}, st.Revenue)
	require.Len(t, st.RecentOrders, 4)
	assert.Equal(t, won.ID, st.RecentOrders[0].ID)
}

func TestStatsEmpty(t *testing.T) {
	f := newFixture(t)
	st, err := f.svc.Stats(context.Background(), admin)
	require.NoError(t, err)
	assert.Zero(t, st.TotalOrders)
	assert.Empty(t, st.Revenue)
	assert.NotNil(t, st.RecentOrders)
}
