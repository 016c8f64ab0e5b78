package domain

import (
	"strings"
	"time"
)

type RiskTier string

const (
	TierVeryLow RiskTier = "VERY_LOW"
	TierLow     RiskTier = "LOW"
	TierMedium  RiskTier = "MEDIUM"
	TierHigh    RiskTier = "HIGH"
)

// Rank orders tiers from VERY_LOW (0) to HIGH (3).
func (t RiskTier) Rank() int {
	switch t {
	case TierHigh:
		return 3
	case TierMedium:
		return 2
	case TierLow:
		return 1
	default:
		return 0
	}
}

// NominalScore is the representative risk score reported alongside a tier.
func (t RiskTier) NominalScore() float64 {
	switch t {
	case TierHigh:
		return 0.9
	case TierMedium:
		return 0.6
	case TierLow:
		return 0.3
	default:
		return 0.1
	}
}

type Recommendation string

const (
	RecommendBlock           Recommendation = "BLOCK — confirmed fraud"
	RecommendSuspend         Recommendation = "SUSPEND — manual review required"
	RecommendMonitorModerate Recommendation = "MONITOR — moderate risk"
	RecommendVerify          Recommendation = "VERIFY — high risk detected"
	RecommendMonitorMedium   Recommendation = "MONITOR — medium risk"
	RecommendApprove         Recommendation = "APPROVE — low risk"
)

// Action returns the leading verb of the recommendation, e.g. "BLOCK".
func (r Recommendation) Action() string {
	action, _, _ := strings.Cut(string(r), " ")
	return action
}

type StrategyName string

const (
	StrategyClassifier    StrategyName = "classifier"
	StrategyWeightedRules StrategyName = "weighted_rules"
)

// FraudThreshold is the fixed probability above which a transaction is
// classified as fraud.
const FraudThreshold = 0.5

// RiskAssessment is the outcome of scoring one transaction.
type RiskAssessment struct {
	ID               string             `json:"id"`
	TransactionID    string             `json:"transaction_id,omitempty"`
	FraudProbability float64            `json:"fraud_probability"`
	RiskTier         RiskTier           `json:"risk_tier"`
	RiskScore        float64            `json:"risk_score"`
	IsFraud          bool               `json:"is_fraud"`
	Reasons          []string           `json:"reasons"`
	Recommendation   Recommendation     `json:"recommendation"`
	Confidence       float64            `json:"confidence"`
	Strategy         StrategyName       `json:"strategy"`
	Fallback         bool               `json:"fallback"`
	FallbackReason   string             `json:"fallback_reason,omitempty"`
	ScoreBreakdown   map[string]float64 `json:"score_breakdown,omitempty"`
	FeaturesUsed     DerivedFeatures    `json:"features_used"`
	CustomerRegion   string             `json:"customer_region,omitempty"`
	EvaluatedAt      time.Time          `json:"evaluated_at"`
}

// AssessmentRecord pairs an assessment with the transaction it was computed
// from, for caller-side history.
type AssessmentRecord struct {
	Transaction Transaction    `json:"transaction"`
	Assessment  RiskAssessment `json:"assessment"`
	RecordedAt  time.Time      `json:"recorded_at"`
}

// AssessmentStats aggregates recorded assessments.
type AssessmentStats struct {
	Total              int              `json:"total"`
	Fraudulent         int              `json:"fraudulent"`
	FraudRate          float64          `json:"fraud_rate"`
	AverageProbability float64          `json:"average_probability"`
	ByTier             map[RiskTier]int `json:"by_tier"`
	Fallbacks          int              `json:"fallbacks"`
}
