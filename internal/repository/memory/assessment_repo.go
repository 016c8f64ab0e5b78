package memory

import (
	"context"
	"fmt"
	"sync"

	"fraud_scorer/internal/domain"
	"fraud_scorer/internal/repository"
)

// AssessmentRepository keeps the most recent records up to a fixed limit.
type AssessmentRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.AssessmentRecord
	order   []string
	limit   int
	stats   repository.StatsAccumulator
}

func NewAssessmentRepository(limit int) *AssessmentRepository {
	if limit <= 0 {
		limit = 1000
	}
	return &AssessmentRepository{
		records: make(map[string]*domain.AssessmentRecord),
		limit:   limit,
	}
}

func (r *AssessmentRepository) Save(ctx context.Context, record *domain.AssessmentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := record.Assessment.ID
	if _, exists := r.records[id]; exists {
		return fmt.Errorf("%w: assessment %s", repository.ErrDuplicate, id)
	}

	r.records[id] = record
	r.order = append(r.order, id)
	r.stats.Add(&record.Assessment)

	for len(r.order) > r.limit {
		delete(r.records, r.order[0])
		r.order = r.order[1:]
	}

	return nil
}

func (r *AssessmentRepository) GetByID(ctx context.Context, id string) (*domain.AssessmentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[id]
	if !exists {
		return nil, fmt.Errorf("%w: assessment %s", repository.ErrNotFound, id)
	}
	return record, nil
}

func (r *AssessmentRepository) List(ctx context.Context, limit, offset int) ([]*domain.AssessmentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*domain.AssessmentRecord{}
	if offset < 0 {
		offset = 0
	}
	for i := len(r.order) - 1 - offset; i >= 0 && len(result) < limit; i-- {
		result = append(result, r.records[r.order[i]])
	}
	return result, nil
}

func (r *AssessmentRepository) GetByTier(ctx context.Context, tier domain.RiskTier, limit int) ([]*domain.AssessmentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []*domain.AssessmentRecord{}
	for i := len(r.order) - 1; i >= 0 && len(result) < limit; i-- {
		record := r.records[r.order[i]]
		if record.Assessment.RiskTier == tier {
			result = append(result, record)
		}
	}
	return result, nil
}

func (r *AssessmentRepository) Stats(ctx context.Context) (*domain.AssessmentStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.stats.Snapshot(), nil
}
