package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
)

// SignatureHeader carries the HMAC of an assessment response body.
const SignatureHeader = "X-Assessment-Signature"

var ErrInvalidSignature = errors.New("invalid signature")

type Signer struct {
	secretKey []byte
	logger    *slog.Logger
}

// NewSigner returns nil for an empty secret; a nil *Signer signs nothing.
func NewSigner(secretKey string, logger *slog.Logger) *Signer {
	if secretKey == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		logger:    logger,
	}
}

func (s *Signer) Enabled() bool {
	return s != nil
}

func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secretKey)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Signer) Verify(data []byte, signature string) error {
	expected := s.Sign(data)

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		s.logger.Warn("Signature verification failed", slog.Int("data_len", len(data)))
		return ErrInvalidSignature
	}

	return nil
}

func assessmentPayload(assessmentID, transactionID string, probability float64, tier string, timestamp int64) []byte {
	return []byte(fmt.Sprintf("%s:%s:%.6f:%s:%d", assessmentID, transactionID, probability, tier, timestamp))
}

// SignAssessment signs the decision-relevant fields of an assessment.
func (s *Signer) SignAssessment(assessmentID, transactionID string, probability float64, tier string, timestamp int64) string {
	return s.Sign(assessmentPayload(assessmentID, transactionID, probability, tier, timestamp))
}

func (s *Signer) VerifyAssessment(assessmentID, transactionID string, probability float64, tier string, timestamp int64, signature string) error {
	return s.Verify(assessmentPayload(assessmentID, transactionID, probability, tier, timestamp), signature)
}
