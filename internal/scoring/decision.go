package scoring

import (
	"math"
	"time"

	"fraud_scorer/internal/domain"

	"github.com/google/uuid"
)

const (
	highTierFloor   = 0.7
	mediumTierFloor = 0.4
	lowTierFloor    = 0.2

	blockFloor   = 0.8
	suspendFloor = 0.6

	normalReasonCeiling = 0.3
	normalReason        = "normal transaction"
)

// TierFor buckets a fraud probability into the four ordered risk tiers.
func TierFor(p float64) domain.RiskTier {
	switch {
	case p >= highTierFloor:
		return domain.TierHigh
	case p >= mediumTierFloor:
		return domain.TierMedium
	case p >= lowTierFloor:
		return domain.TierLow
	default:
		return domain.TierVeryLow
	}
}

func IsFraud(p float64) bool {
	return p > domain.FraudThreshold
}

func RecommendationFor(isFraud bool, tier domain.RiskTier, p float64) domain.Recommendation {
	if isFraud {
		switch {
		case p > blockFloor:
			return domain.RecommendBlock
		case p > suspendFloor:
			return domain.RecommendSuspend
		default:
			return domain.RecommendMonitorModerate
		}
	}

	switch tier {
	case domain.TierHigh:
		return domain.RecommendVerify
	case domain.TierMedium:
		return domain.RecommendMonitorMedium
	default:
		return domain.RecommendApprove
	}
}

func clampProbability(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return math.Min(math.Max(p, 0), 1)
}

// newAssessment fills the fields shared by every strategy from the final
// probability.
func newAssessment(
	tx domain.Transaction,
	f domain.DerivedFeatures,
	strategy domain.StrategyName,
	p, confidence float64,
	reasons []string,
) *domain.RiskAssessment {
	p = clampProbability(p)
	tier := TierFor(p)
	if reasons == nil {
		reasons = []string{}
	}
	fraud := IsFraud(p)

	return &domain.RiskAssessment{
		ID:               "asm_" + uuid.NewString(),
		TransactionID:    tx.ID,
		FraudProbability: p,
		RiskTier:         tier,
		RiskScore:        tier.NominalScore(),
		IsFraud:          fraud,
		Reasons:          reasons,
		Recommendation:   RecommendationFor(fraud, tier, p),
		Confidence:       confidence,
		Strategy:         strategy,
		FeaturesUsed:     f,
		CustomerRegion:   tx.CustomerRegion,
		EvaluatedAt:      time.Now().UTC(),
	}
}
