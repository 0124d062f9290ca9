package identity

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"
)

func TestNewSignerEmptyIsNoop(t *testing.T) {
	s, err := NewSigner("")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	if s.Sign([]byte("payload")) != nil {
		t.Error("empty-key signer should return nil signatures")
	}
	if s.DerivePublicKeyHex() != "" {
		t.Error("empty-key signer should have no derived public key")
	}
}

func TestNewSignerSignsAndVerifies(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	s, err := NewSigner(hex.EncodeToString(priv))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	payload := []byte("round payload")
	sig := s.Sign(payload)
	if !ed25519.Verify(pub, payload, sig) {
		t.Error("signature does not verify against the derived public key")
	}

	if s.DerivePublicKeyHex() != hex.EncodeToString(pub) {
		t.Errorf("DerivePublicKeyHex = %s, want %s", s.DerivePublicKeyHex(), hex.EncodeToString(pub))
	}
}

func TestNewSignerRejectsBadLength(t *testing.T) {
	if _, err := NewSigner("abcd"); err == nil {
		t.Error("expected an error for a too-short private key")
	}
}

func TestNewSignerRejectsInvalidHex(t *testing.T) {
	if _, err := NewSigner("not-hex"); err == nil {
		t.Error("expected an error for invalid hex")
	}
}

func TestPubkeyParsesValidKey(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	got, err := Pubkey(hex.EncodeToString(pub))
	if err != nil {
		t.Fatalf("Pubkey: %v", err)
	}
	if hex.EncodeToString(got[:]) != hex.EncodeToString(pub) {
		t.Error("Pubkey round-trip mismatch")
	}
}

func TestPubkeyRejectsBadLength(t *testing.T) {
	if _, err := Pubkey("abcd"); err == nil {
		t.Error("expected an error for a too-short public key")
	}
}
