package irandargah

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// CallbackSigner signs the order reference carried in the callback URL so a
// callback cannot be replayed against a different order.
type CallbackSigner struct {
	secret []byte
}

// NewCallbackSigner creates a signer. With an empty secret Sign returns ""
// and Verify accepts everything.
func NewCallbackSigner(secret string) *CallbackSigner {
	return &CallbackSigner{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of the order id.
func (s *CallbackSigner) Sign(orderID int64) string {
	if len(s.secret) == 0 {
		return ""
	}
	return calculateHMAC(buildManifest(orderID), s.secret)
}

// Verify checks a signature produced by Sign (constant-time comparison).
func (s *CallbackSigner) Verify(orderID int64, signature string) bool {
	if len(s.secret) == 0 {
		return true
	}
	if signature == "" {
		return false
	}
	expected := calculateHMAC(buildManifest(orderID), s.secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}

// buildManifest constructs the string to be signed.
// Format: wc_order:<id>;
func buildManifest(orderID int64) string {
	return "wc_order:" + strconv.FormatInt(orderID, 10) + ";"
}

// calculateHMAC computes HMAC-SHA256 of the manifest.
func calculateHMAC(manifest string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(manifest))
	return hex.EncodeToString(h.Sum(nil))
}
