package scoring

import (
	"errors"
	"fmt"
	"math"

	"fraud_scorer/internal/domain"
)

const (
	veryHighProbability  = 0.7
	abnormalAmountScore  = 3
	highIncomeRatioFloor = 0.5
)

// ModelSource hands out a consistent encoder/classifier pair. Implementations
// return an error wrapping domain.ErrScoringUnavailable when no model is
// loaded.
type ModelSource interface {
	Snapshot() (Encoder, Classifier, error)
}

// CallGuard wraps calls into the classifier, e.g. with a circuit breaker.
type CallGuard interface {
	Execute(fn func() (interface{}, error)) (interface{}, error)
}

type ClassifierStrategy struct {
	models ModelSource
	guard  CallGuard
}

func NewClassifierStrategy(models ModelSource, guard CallGuard) *ClassifierStrategy {
	return &ClassifierStrategy{models: models, guard: guard}
}

func (s *ClassifierStrategy) Name() domain.StrategyName {
	return domain.StrategyClassifier
}

func (s *ClassifierStrategy) Assess(tx domain.Transaction, f domain.DerivedFeatures) (*domain.RiskAssessment, error) {
	if s.models == nil {
		return nil, fmt.Errorf("%w: no model source configured", domain.ErrScoringUnavailable)
	}

	encoder, classifier, err := s.models.Snapshot()
	if err != nil {
		if errors.Is(err, domain.ErrScoringUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrScoringUnavailable, err)
	}

	vector, err := AssembleVector(tx, f, encoder, classifier.FeatureOrder())
	if err != nil {
		return nil, err
	}

	probs, err := s.predict(classifier, vector)
	if err != nil {
		return nil, err
	}

	p := probs[1]
	confidence := 0.0
	for _, q := range probs {
		confidence = math.Max(confidence, q)
	}

	return newAssessment(tx, f, s.Name(), p, confidence, classifierReasons(tx, f, p)), nil
}

func (s *ClassifierStrategy) predict(classifier Classifier, vector []float64) ([]float64, error) {
	call := func() (interface{}, error) {
		return classifier.PredictProbabilities(vector)
	}

	var (
		out interface{}
		err error
	)
	if s.guard != nil {
		out, err = s.guard.Execute(call)
	} else {
		out, err = call()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: classifier call failed: %v", domain.ErrScoringUnavailable, err)
	}

	probs, _ := out.([]float64)
	if len(probs) < 2 {
		return nil, fmt.Errorf("%w: classifier returned %d class probabilities", domain.ErrScoringUnavailable, len(probs))
	}
	for _, q := range probs {
		if math.IsNaN(q) || q < 0 || q > 1 {
			return nil, fmt.Errorf("%w: classifier returned probability %v outside [0,1]", domain.ErrScoringUnavailable, q)
		}
	}
	return probs, nil
}

// classifierReasons explains a model score with qualitative checks that do
// not influence the probability.
func classifierReasons(tx domain.Transaction, f domain.DerivedFeatures, p float64) []string {
	reasons := []string{}

	if p > veryHighProbability {
		reasons = append(reasons, "very high fraud probability")
	}
	if f.AmountAnomalyScore > abnormalAmountScore {
		reasons = append(reasons, fmt.Sprintf("abnormal amount (score: %.2f)", f.AmountAnomalyScore))
	}
	if f.IsOddHour {
		reasons = append(reasons, "unusual-hour transaction")
	}
	if f.IsForeignLocation {
		reasons = append(reasons, "foreign transaction")
	}
	if f.IsRiskyCategory {
		reasons = append(reasons, "high-risk merchant category")
	}
	if f.AmountToIncomeRatio > highIncomeRatioFloor {
		reasons = append(reasons, fmt.Sprintf("amount high relative to income (%.2f%%)", f.AmountToIncomeRatio*100))
	}
	if tx.AccountAgeDays < recentAccountDays {
		reasons = append(reasons, "recent customer account")
	}

	if len(reasons) == 0 && p < normalReasonCeiling {
		reasons = append(reasons, normalReason)
	}
	return reasons
}
