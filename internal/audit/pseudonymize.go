package audit

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Pseudonymizer hashes personal identifiers with a keyed BLAKE2b so the same
// address always maps to the same token without being recoverable.
type Pseudonymizer struct {
	key []byte
}

// NewPseudonymizer returns a keyed hasher. BLAKE2b accepts keys up to 64
// bytes; longer keys are rejected.
func NewPseudonymizer(key string) (*Pseudonymizer, error) {
	if _, err := blake2b.New256([]byte(key)); err != nil {
		return nil, err
	}
	return &Pseudonymizer{key: []byte(key)}, nil
}

// Email hashes a normalized email address.
func (p *Pseudonymizer) Email(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return ""
	}
	h, _ := blake2b.New256(p.key)
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil))
}
