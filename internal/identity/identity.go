// Package identity turns the configured hex keypair into the Signer
// the coordinator, session, and submission packages each declare their
// own copy of (same method set, no shared dependency between them).
package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// Signer signs with an ed25519 private key. A zero-value Signer (no key
// loaded) is the Delegated-mode no-op: Sign always returns nil.
type Signer struct {
	key ed25519.PrivateKey
}

// NewSigner parses a hex-encoded ed25519 private key. An empty string
// yields the Delegated-mode no-op signer.
func NewSigner(privateKeyHex string) (Signer, error) {
	if privateKeyHex == "" {
		return Signer{}, nil
	}

	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return Signer{}, fmt.Errorf("identity: decoding private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return Signer{}, fmt.Errorf("identity: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}

	return Signer{key: ed25519.PrivateKey(raw)}, nil
}

// Sign implements the coordinator.Signer / session.Signer /
// submission.Signer interfaces.
func (s Signer) Sign(payload []byte) []byte {
	if s.key == nil {
		return nil
	}
	return ed25519.Sign(s.key, payload)
}

// Pubkey parses a hex-encoded ed25519 public key into its fixed-size
// wire form.
func Pubkey(publicKeyHex string) ([32]byte, error) {
	var pk [32]byte
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return pk, fmt.Errorf("identity: decoding public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return pk, fmt.Errorf("identity: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// DerivePublicKeyHex returns the hex-encoded public key matching a
// loaded private key, for when config supplies only private_key.
func (s Signer) DerivePublicKeyHex() string {
	if s.key == nil {
		return ""
	}
	return hex.EncodeToString(s.key.Public().(ed25519.PublicKey))
}
