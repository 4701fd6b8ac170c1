package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// VerifyRazorpaySignature checks the checkout signature, the hex
// HMAC-SHA256 of "<provider order id>|<payment id>".
func VerifyRazorpaySignature(providerOrderID, paymentID, signature, secret string) error {
	if secret == "" {
		return errSignature("razorpay not configured")
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return errSignature("invalid payment signature")
	}
	if !hmac.Equal(razorpayDigest(providerOrderID, paymentID, secret), got) {
		return errSignature("invalid payment signature")
	}
	return nil
}

// SignRazorpay returns the signature the provider would send.
func SignRazorpay(providerOrderID, paymentID, secret string) string {
	return hex.EncodeToString(razorpayDigest(providerOrderID, paymentID, secret))
}

func razorpayDigest(providerOrderID, paymentID, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(providerOrderID + "|" + paymentID))
	return mac.Sum(nil)
}
