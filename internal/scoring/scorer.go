// Package scoring turns a transaction into a fraud assessment. Feature
// derivation fills missing derived signals, then a Strategy chosen at
// construction time computes the probability, tier, reasons and
// recommendation.
package scoring

import (
	"errors"
	"fmt"
	"log/slog"

	"fraud_scorer/internal/domain"
	"fraud_scorer/pkg/validator"
)

// Strategy computes an assessment from a validated transaction and its fully
// derived features.
type Strategy interface {
	Name() domain.StrategyName
	Assess(tx domain.Transaction, f domain.DerivedFeatures) (*domain.RiskAssessment, error)
}

// FallbackPolicy decides what happens when the classifier is unavailable.
type FallbackPolicy string

const (
	PolicyFail     FallbackPolicy = "fail"
	PolicyFallback FallbackPolicy = "fallback"
)

func (p FallbackPolicy) Valid() bool {
	return p == PolicyFail || p == PolicyFallback
}

type Scorer struct {
	primary   Strategy
	fallback  Strategy
	policy    FallbackPolicy
	validator *validator.TransactionValidator
	logger    *slog.Logger
}

// NewScorer builds a scorer around primary. With PolicyFallback a
// ScoringUnavailable failure of the primary strategy is answered by the
// weighted rule table and the result is flagged as a fallback.
func NewScorer(primary Strategy, policy FallbackPolicy, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	if primary == nil {
		primary = NewWeightedRuleStrategy()
	}
	if !policy.Valid() {
		policy = PolicyFail
	}

	s := &Scorer{
		primary:   primary,
		policy:    policy,
		validator: validator.NewTransactionValidator(),
		logger:    logger,
	}
	if policy == PolicyFallback && primary.Name() != domain.StrategyWeightedRules {
		s.fallback = NewWeightedRuleStrategy()
	}
	return s
}

func (s *Scorer) Strategy() domain.StrategyName {
	return s.primary.Name()
}

func (s *Scorer) Policy() FallbackPolicy {
	return s.policy
}

// Validate checks the transaction and any supplied features.
func (s *Scorer) Validate(tx domain.Transaction, supplied domain.SuppliedFeatures) error {
	if err := s.validator.ValidateTransaction(tx); err != nil {
		return err
	}
	return s.validator.ValidateSuppliedFeatures(supplied)
}

// Assess validates, derives and scores one transaction. It either returns a
// complete assessment or an error wrapping one of the domain sentinels.
func (s *Scorer) Assess(tx domain.Transaction, supplied domain.SuppliedFeatures) (*domain.RiskAssessment, error) {
	if err := s.Validate(tx, supplied); err != nil {
		return nil, err
	}

	features := DeriveFeatures(tx, supplied)

	assessment, err := s.primary.Assess(tx, features)
	if err == nil {
		return assessment, nil
	}

	if s.fallback == nil || !errors.Is(err, domain.ErrScoringUnavailable) {
		return nil, fmt.Errorf("%s strategy: %w", s.primary.Name(), err)
	}

	s.logger.Warn("Classifier unavailable, using weighted rules",
		slog.String("transaction_id", tx.ID),
		slog.String("error", err.Error()))

	assessment, ferr := s.fallback.Assess(tx, features)
	if ferr != nil {
		return nil, fmt.Errorf("fallback strategy: %w", ferr)
	}
	assessment.Fallback = true
	assessment.FallbackReason = err.Error()
	return assessment, nil
}
