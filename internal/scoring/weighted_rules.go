package scoring

import (
	"fmt"
	"math"

	"fraud_scorer/internal/domain"
)

// Weights are in points out of 100 so the sum stays exact.
const (
	maxScore = 100

	minRuleConfidence     = 0.7
	confidenceDecayFactor = 0.3

	recentAccountDays = 90
)

// FraudPattern is one row of the weighted rule table. Detect returns the
// points earned (0 when the pattern does not apply) and the reason text.
type FraudPattern struct {
	Name        string
	Description string
	MaxWeight   int
	Detect      func(tx domain.Transaction, f domain.DerivedFeatures) (int, string)
}

type WeightedRuleStrategy struct {
	patterns []FraudPattern
}

func NewWeightedRuleStrategy() *WeightedRuleStrategy {
	return &WeightedRuleStrategy{patterns: DefaultPatterns()}
}

// DefaultPatterns returns the rule table in evaluation order. The order only
// determines the order of reasons.
func DefaultPatterns() []FraudPattern {
	return []FraudPattern{
		{
			Name:        "amount",
			Description: "Amount relative to monthly income",
			MaxWeight:   40,
			Detect:      detectAmount,
		},
		{
			Name:        "hour",
			Description: "Night-time or late-hour transaction",
			MaxWeight:   30,
			Detect:      detectHour,
		},
		{
			Name:        "category",
			Description: "Merchant category with elevated fraud rates",
			MaxWeight:   20,
			Detect: func(tx domain.Transaction, f domain.DerivedFeatures) (int, string) {
				if f.IsRiskyCategory {
					return 20, fmt.Sprintf("risky merchant category: %s", tx.MerchantCategory)
				}
				return 0, ""
			},
		},
		{
			Name:        "account_age",
			Description: "Recently opened customer account",
			MaxWeight:   10,
			Detect: func(tx domain.Transaction, _ domain.DerivedFeatures) (int, string) {
				if tx.AccountAgeDays < recentAccountDays {
					return 10, fmt.Sprintf("recent account (%d days)", tx.AccountAgeDays)
				}
				return 0, ""
			},
		},
		{
			Name:        "transaction_type",
			Description: "Remote transaction type",
			MaxWeight:   15,
			Detect: func(tx domain.Transaction, _ domain.DerivedFeatures) (int, string) {
				if tx.Type == domain.TypeOnlinePayment || tx.Type == domain.TypeTransfer {
					return 15, fmt.Sprintf("risky transaction type: %s", tx.Type)
				}
				return 0, ""
			},
		},
		{
			Name:        "channel",
			Description: "Remote payment channel",
			MaxWeight:   10,
			Detect: func(tx domain.Transaction, _ domain.DerivedFeatures) (int, string) {
				if tx.PaymentChannel == domain.ChannelInternetBanking || tx.PaymentChannel == domain.ChannelMobileBanking {
					return 10, fmt.Sprintf("risky payment channel: %s", tx.PaymentChannel)
				}
				return 0, ""
			},
		},
	}
}

func detectAmount(_ domain.Transaction, f domain.DerivedFeatures) (int, string) {
	pct := math.Round(f.AmountToIncomeRatio * 100)
	switch {
	case f.AmountToIncomeRatio > 0.5:
		return 40, fmt.Sprintf("amount high (%.0f%% of income)", pct)
	case f.AmountToIncomeRatio > 0.3:
		return 20, fmt.Sprintf("amount moderate (%.0f%% of income)", pct)
	default:
		return 0, ""
	}
}

func detectHour(tx domain.Transaction, f domain.DerivedFeatures) (int, string) {
	switch {
	case f.IsOddHour:
		return 30, fmt.Sprintf("night-time transaction (%dh)", tx.Hour)
	case isLateHour(tx.Hour):
		return 15, fmt.Sprintf("late-hour transaction (%dh)", tx.Hour)
	default:
		return 0, ""
	}
}

func (s *WeightedRuleStrategy) Name() domain.StrategyName {
	return domain.StrategyWeightedRules
}

func (s *WeightedRuleStrategy) Patterns() []FraudPattern {
	return append([]FraudPattern(nil), s.patterns...)
}

// Assess never fails; the error return satisfies Strategy.
func (s *WeightedRuleStrategy) Assess(tx domain.Transaction, f domain.DerivedFeatures) (*domain.RiskAssessment, error) {
	points := 0
	var reasons []string
	breakdown := make(map[string]float64, len(s.patterns))

	for _, pattern := range s.patterns {
		weight, reason := pattern.Detect(tx, f)
		breakdown[pattern.Name] = float64(weight) / maxScore
		if weight > 0 {
			points += weight
			reasons = append(reasons, reason)
		}
	}

	p := float64(min(max(points, 0), maxScore)) / maxScore

	if len(reasons) == 0 && p < normalReasonCeiling {
		reasons = append(reasons, normalReason)
	}

	confidence := math.Max(minRuleConfidence, 1.0-p*confidenceDecayFactor)

	a := newAssessment(tx, f, s.Name(), p, confidence, reasons)
	a.ScoreBreakdown = breakdown
	return a, nil
}
