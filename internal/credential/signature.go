package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// CodeLength is how many hex characters of the signature end up as
// the card's display code. The code is a reference, not a proof.
const CodeLength = 16

// Signer computes the membership card signature from the process-wide
// shared secret. Construct it once at startup; a missing secret is a
// configuration error, never a per-call one.
type Signer struct {
	secret string
}

// NewSigner creates a Signer. The secret must be non-empty.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("card secret is empty")
	}
	return &Signer{secret: secret}, nil
}

// Sign computes the card signature for a member number and validity
// period: sha256(memberNumber + secret + validity), lowercase hex.
// Deterministic: verification recomputes and compares instead of
// looking anything up.
func (s *Signer) Sign(memberNumber, validity string) string {
	sum := sha256.Sum256([]byte(memberNumber + s.secret + validity))
	return hex.EncodeToString(sum[:])
}

// Matches compares a presented signature against the expected one in
// constant time. Truncated or substituted signatures fail.
func (s *Signer) Matches(memberNumber, validity, presented string) bool {
	expected := s.Sign(memberNumber, validity)
	if len(presented) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// Code derives the short display code from a full signature.
func Code(signature string) string {
	if len(signature) < CodeLength {
		return signature
	}
	return signature[:CodeLength]
}
