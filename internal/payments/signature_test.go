package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

func TestVerifyStripeSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	secret := "whsec_test"
	at := time.Unix(1700000000, 0)
	header := SignStripePayload(payload, secret, at)

	require.NoError(t, VerifyStripeSignature(payload, header, secret, 5*time.Minute, at.Add(time.Minute)))
	require.NoError(t, VerifyStripeSignature(payload, header, secret, 0, at.Add(48*time.Hour)))

	tests := []struct {
		name    string
		payload []byte
		header  string
		secret  string
		now     time.Time
	}{
		{"tampered body", []byte(`{"id":"evt_2"}`), header, secret, at},
		{"wrong secret", payload, header, "whsec_other", at},
		{"stale", payload, header, secret, at.Add(10 * time.Minute)},
		{"from the future", payload, header, secret, at.Add(-10 * time.Minute)},
		{"no signature", payload, "t=1700000000", secret, at},
		{"no timestamp", payload, "v1=abcd", secret, at},
		{"bad timestamp", payload, "t=soon,v1=abcd", secret, at},
		{"empty header", payload, "", secret, at},
		{"no secret configured", payload, header, "", at},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyStripeSignature(tt.payload, tt.header, tt.secret, 5*time.Minute, tt.now)
			require.Error(t, err)
			assert.Equal(t, marketplace.KindUnauthorized, marketplace.KindOf(err))
		})
	}
}

func TestVerifyStripeSignatureRolledSecret(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	at := time.Unix(1700000000, 0)
	oldSig := SignStripePayload(payload, "old", at)
	newSig := SignStripePayload(payload, "new", at)
	// Both headers carry the same t=; splice the second v1 onto the first.
	header := oldSig + "," + newSig[len("t=1700000000,"):]

	require.NoError(t, VerifyStripeSignature(payload, header, "new", time.Minute, at))
	require.NoError(t, VerifyStripeSignature(payload, header, "old", time.Minute, at))
}

func TestVerifyRazorpaySignature(t *testing.T) {
	sig := SignRazorpay("order_abc", "pay_xyz", "rzp_secret")

	require.NoError(t, VerifyRazorpaySignature("order_abc", "pay_xyz", sig, "rzp_secret"))
	assert.Error(t, VerifyRazorpaySignature("order_abc", "pay_other", sig, "rzp_secret"))
	assert.Error(t, VerifyRazorpaySignature("order_abc", "pay_xyz", "not-hex", "rzp_secret"))
	assert.Error(t, VerifyRazorpaySignature("order_abc", "pay_xyz", sig, ""))
}

func TestParseStripeEvent(t *testing.T) {
	ev, err := ParseStripeEvent([]byte(`{
		"id": "evt_9",
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_9", "metadata": {"orderId": "ord-1"}, "last_payment_error": {"message": "insufficient funds"}}}
	}`))
	require.NoError(t, err)
	pe, ok := ev.PaymentEvent()
	require.True(t, ok)
	assert.Equal(t, marketplace.PaymentEvent{
		OrderID:   "ord-1",
		Provider:  marketplace.MethodStripe,
		PaymentID: "pi_9",
		Note:      "Stripe payment failed: insufficient funds",
	}, pe)

	ev, err = ParseStripeEvent([]byte(`{"id":"evt_10","type":"charge.refunded","data":{"object":{"metadata":{"orderId":"ord-1"}}}}`))
	require.NoError(t, err)
	_, ok = ev.PaymentEvent()
	assert.False(t, ok)

	ev, err = ParseStripeEvent([]byte(`{"id":"evt_11","type":"payment_intent.succeeded","data":{"object":{"id":"pi_11"}}}`))
	require.NoError(t, err)
	_, ok = ev.PaymentEvent()
	assert.False(t, ok, "no order id in metadata")

	_, err = ParseStripeEvent([]byte(`{"type":"payment_intent.succeeded"}`))
	assert.Equal(t, marketplace.KindValidation, marketplace.KindOf(err))
	_, err = ParseStripeEvent([]byte(`not json`))
	assert.Equal(t, marketplace.KindValidation, marketplace.KindOf(err))
}

func TestMemoryDeduper(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	d := NewMemoryDeduper(time.Hour)
	d.now = func() time.Time { return now }

	fresh, err := d.Claim(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, fresh)
	fresh, _ = d.Claim(ctx, "evt_1")
	assert.False(t, fresh)

	require.NoError(t, d.Release(ctx, "evt_1"))
	fresh, _ = d.Claim(ctx, "evt_1")
	assert.True(t, fresh)

	now = now.Add(2 * time.Hour)
	fresh, _ = d.Claim(ctx, "evt_1")
	assert.True(t, fresh, "expired ids can be claimed again")
}
