// Package handshake lets embedded content verify it is running inside the
// genuine shell. The content sends a challenge and the shell answers with
// HMAC-SHA256(secret, challenge) in hex. There is no replay protection; the
// content side owns challenge freshness.
package handshake

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrEmptySecret is returned when a signer is built without a key.
var ErrEmptySecret = errors.New("handshake secret is empty")

// Signer computes handshake responses with a fixed secret.
type Signer struct {
	secret []byte
}

// NewSigner copies secret into a new Signer.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Signer{secret: key}, nil
}

// Respond returns the lowercase hex HMAC-SHA256 digest of challenge.
func (s *Signer) Respond(challenge []byte) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", ErrEmptySecret
	}
	mac := hmac.New(sha256.New, s.secret)
	if _, err := mac.Write(challenge); err != nil {
		return "", fmt.Errorf("failed to compute handshake digest: %w", err)
	}
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether digest is the response to challenge.
func (s *Signer) Verify(challenge []byte, digest string) bool {
	want, err := s.Respond(challenge)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(digest)
	if err != nil {
		return false
	}
	wantRaw, _ := hex.DecodeString(want)
	return hmac.Equal(got, wantRaw)
}
