// Package signing computes HMAC-SHA256 signatures for outbound webhook bodies.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// HeaderSignature carries the hex signature of the request body.
const HeaderSignature = "X-Signature"

type Signer struct {
	secretKey []byte
}

// NewSigner returns nil for an empty secret so callers can skip signing.
func NewSigner(secretKey string) *Signer {
	if secretKey == "" {
		return nil
	}
	return &Signer{
		secretKey: []byte(secretKey),
	}
}

// Sign returns the lowercase hex HMAC-SHA256 of body.
func (s *Signer) Sign(body []byte) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature matches body.
func (s *Signer) Verify(body []byte, signature string) bool {
	expected := s.Sign(body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
