// Package integrity implements the hash and keyed-MAC envelope that binds a
// canonical manifest payload against undetected modification.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"snapseal/pkg/models"
)

// HMACAlgorithm identifies the keyed MAC used in envelopes
const HMACAlgorithm = "HMAC-SHA256"

// Signer creates and verifies integrity envelopes with an injected signing
// key. The key is passed in at construction, never read from ambient state,
// and never logged.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner creates a signer from the configured secret key. An empty key is
// a configuration error and should stop startup.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 {
		return nil, models.ErrSigningKeyMissing
	}
	return &Signer{key: key, now: time.Now}, nil
}

// NewSignerWithClock creates a signer with an injected clock for tests
func NewSignerWithClock(key []byte, now func() time.Time) (*Signer, error) {
	s, err := NewSigner(key)
	if err != nil {
		return nil, err
	}
	s.now = now
	return s, nil
}

// Seal computes the envelope over a canonical payload. The HMAC is computed
// over the canonical payload bytes themselves, not over the hash; Verify
// uses the same convention.
func (s *Signer) Seal(canonicalPayload []byte) models.IntegrityEnvelope {
	return models.IntegrityEnvelope{
		HashAlgorithm: HashAlgorithm,
		Hash:          Digest(canonicalPayload),
		HMACAlgorithm: HMACAlgorithm,
		HMAC:          s.mac(canonicalPayload),
		SignedAt:      s.now().UTC().Format(time.RFC3339),
	}
}

// EnvelopeCheck is the outcome of re-verifying an envelope. A mismatch is a
// verification result, not an error.
type EnvelopeCheck struct {
	HashValid bool
	HMACValid bool
}

// Valid reports whether both the content hash and the keyed MAC held
func (c EnvelopeCheck) Valid() bool {
	return c.HashValid && c.HMACValid
}

// Verify recomputes the hash and HMAC over the canonical payload and
// compares them to the envelope. The HMAC comparison is constant-time.
func (s *Signer) Verify(canonicalPayload []byte, envelope models.IntegrityEnvelope) EnvelopeCheck {
	if envelope.IsZero() {
		return EnvelopeCheck{}
	}

	expectedMAC, err := hex.DecodeString(envelope.HMAC)
	if err != nil {
		expectedMAC = nil
	}

	mac := hmac.New(sha256.New, s.key)
	mac.Write(canonicalPayload)

	return EnvelopeCheck{
		HashValid: Digest(canonicalPayload) == envelope.Hash,
		HMACValid: expectedMAC != nil && hmac.Equal(mac.Sum(nil), expectedMAC),
	}
}

func (s *Signer) mac(payload []byte) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// String implements fmt.Stringer and deliberately hides the key so a signer
// can never leak its secret through logging.
func (s *Signer) String() string {
	return fmt.Sprintf("integrity.Signer(key=%d bytes)", len(s.key))
}
