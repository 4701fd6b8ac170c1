// Package payments verifies and decodes payment provider callbacks and feeds
// them to the marketplace as PaymentEvents.
package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sudo-init-do/agriloop/internal/marketplace"
)

const (
	StripeSignatureHeader = "Stripe-Signature"

	EventPaymentSucceeded = "payment_intent.succeeded"
	EventPaymentFailed    = "payment_intent.payment_failed"
)

func errSignature(msg string) error {
	return marketplace.NewError(marketplace.KindUnauthorized, msg)
}

// VerifyStripeSignature checks a "t=<unix>,v1=<hex>" header against
// HMAC-SHA256(secret, "<t>.<payload>"). Any v1 entry may match, which lets
// the provider roll secrets. A zero tolerance disables the timestamp check.
func VerifyStripeSignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if secret == "" {
		return errSignature("webhook secret not configured")
	}
	var (
		ts   string
		sigs [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			if b, err := hex.DecodeString(v); err == nil {
				sigs = append(sigs, b)
			}
		}
	}
	if ts == "" || len(sigs) == 0 {
		return errSignature("malformed signature header")
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return errSignature("malformed signature timestamp")
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(unix, 0))
		if age > tolerance || age < -tolerance {
			return errSignature("signature timestamp outside tolerance")
		}
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)
	for _, s := range sigs {
		if hmac.Equal(expected, s) {
			return nil
		}
	}
	return errSignature("signature mismatch")
}

// SignStripePayload builds a header VerifyStripeSignature accepts.
func SignStripePayload(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "."))
	mac.Write(payload)
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

// StripeEvent is the part of a webhook event the adapter reads.
type StripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID               string            `json:"id"`
			Metadata         map[string]string `json:"metadata"`
			LastPaymentError *struct {
				Message string `json:"message"`
			} `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

func ParseStripeEvent(payload []byte) (*StripeEvent, error) {
	var ev StripeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, marketplace.NewError(marketplace.KindValidation, "invalid event payload")
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, marketplace.NewError(marketplace.KindValidation, "event id and type are required")
	}
	return &ev, nil
}

// PaymentEvent maps a handled event type onto a marketplace event. ok is
// false for event types the adapter ignores or events without an order.
func (ev *StripeEvent) PaymentEvent() (marketplace.PaymentEvent, bool) {
	orderID := ev.Data.Object.Metadata["orderId"]
	if orderID == "" {
		return marketplace.PaymentEvent{}, false
	}
	out := marketplace.PaymentEvent{
		OrderID:   orderID,
		Provider:  marketplace.MethodStripe,
		PaymentID: ev.Data.Object.ID,
	}
	switch ev.Type {
	case EventPaymentSucceeded:
		out.Succeeded = true
		out.Note = "Stripe payment succeeded"
	case EventPaymentFailed:
		out.Note = "Stripe payment failed"
		if e := ev.Data.Object.LastPaymentError; e != nil && e.Message != "" {
			out.Note += ": " + e.Message
		}
	default:
		return marketplace.PaymentEvent{}, false
	}
	return out, true
}
