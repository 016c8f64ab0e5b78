package repository

import (
	"context"
	"errors"

	"fraud_scorer/internal/domain"
)

// AssessmentRepository is the caller-owned history of completed
// assessments. List and GetByTier return the newest records first.
type AssessmentRepository interface {
	Save(ctx context.Context, record *domain.AssessmentRecord) error
	GetByID(ctx context.Context, id string) (*domain.AssessmentRecord, error)
	List(ctx context.Context, limit, offset int) ([]*domain.AssessmentRecord, error)
	GetByTier(ctx context.Context, tier domain.RiskTier, limit int) ([]*domain.AssessmentRecord, error)
	Stats(ctx context.Context) (*domain.AssessmentStats, error)
}

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate entry")
)

// StatsAccumulator folds assessments into running counters. Counters are
// cumulative and survive eviction from the bounded history.
type StatsAccumulator struct {
	total       int
	fraudulent  int
	fallbacks   int
	probability float64
	byTier      map[domain.RiskTier]int
}

func (s *StatsAccumulator) Add(a *domain.RiskAssessment) {
	if s.byTier == nil {
		s.byTier = make(map[domain.RiskTier]int)
	}
	s.total++
	s.probability += a.FraudProbability
	s.byTier[a.RiskTier]++
	if a.IsFraud {
		s.fraudulent++
	}
	if a.Fallback {
		s.fallbacks++
	}
}

func (s *StatsAccumulator) Snapshot() *domain.AssessmentStats {
	return BuildStats(s.total, s.fraudulent, s.fallbacks, s.probability, s.byTier)
}

// BuildStats derives rates from raw counters.
func BuildStats(total, fraudulent, fallbacks int, probabilitySum float64, byTier map[domain.RiskTier]int) *domain.AssessmentStats {
	stats := &domain.AssessmentStats{
		Total:      total,
		Fraudulent: fraudulent,
		Fallbacks:  fallbacks,
		ByTier:     make(map[domain.RiskTier]int, len(byTier)),
	}
	for tier, n := range byTier {
		stats.ByTier[tier] = n
	}
	if total > 0 {
		stats.FraudRate = float64(fraudulent) / float64(total)
		stats.AverageProbability = probabilitySum / float64(total)
	}
	return stats
}
