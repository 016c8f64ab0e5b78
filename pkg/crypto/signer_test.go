package crypto

import (
	"errors"
	"testing"
)

func TestSigner_SignAndVerify(t *testing.T) {
	s := NewSigner("secret", nil)
	body := []byte(`{"fraud_probability":0.85}`)

	sig := s.Sign(body)

	if len(sig) != 64 {
		t.Fatalf("expected hex sha256 signature, got %q", sig)
	}
	if err := s.Verify(body, sig); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := s.Verify([]byte(`{"fraud_probability":0.10}`), sig); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for tampered body, got %v", err)
	}
}

func TestSigner_SignAssessment(t *testing.T) {
	s := NewSigner("secret", nil)

	sig := s.SignAssessment("asm_1", "txn_1", 0.85, "HIGH", 1700000000)

	if err := s.VerifyAssessment("asm_1", "txn_1", 0.85, "HIGH", 1700000000, sig); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := s.VerifyAssessment("asm_1", "txn_1", 0.15, "HIGH", 1700000000, sig); err == nil {
		t.Fatalf("expected changed probability to invalidate signature")
	}
	if other := NewSigner("other", nil).SignAssessment("asm_1", "txn_1", 0.85, "HIGH", 1700000000); other == sig {
		t.Fatalf("expected different keys to produce different signatures")
	}
}

func TestNewSigner_EmptySecretDisablesSigning(t *testing.T) {
	s := NewSigner("", nil)

	if s.Enabled() {
		t.Fatalf("expected signer to be disabled")
	}
}
