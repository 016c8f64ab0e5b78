// Package redisstore keeps assessment history in Redis so it is shared by
// every scorer replica.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fraud_scorer/internal/domain"
	"fraud_scorer/internal/repository"

	"github.com/redis/go-redis/v9"
)

var _ repository.AssessmentRepository = (*AssessmentRepository)(nil)

const (
	defaultPrefix = "fraud"

	fieldTotal          = "total"
	fieldFraudulent     = "fraudulent"
	fieldFallbacks      = "fallbacks"
	fieldProbabilitySum = "probability_sum"
	tierFieldPrefix     = "tier:"
)

// AssessmentRepository stores each record as JSON under <prefix>:assessment:<id>
// with a TTL, keeps a capped list of recent IDs, and aggregates counters in a
// hash.
type AssessmentRepository struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	limit  int
}

func NewAssessmentRepository(client *redis.Client, prefix string, ttl time.Duration, limit int) *AssessmentRepository {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if limit <= 0 {
		limit = 1000
	}
	return &AssessmentRepository{client: client, prefix: prefix, ttl: ttl, limit: limit}
}

func (r *AssessmentRepository) recordKey(id string) string {
	return r.prefix + ":assessment:" + id
}

func (r *AssessmentRepository) recentKey() string {
	return r.prefix + ":assessments:recent"
}

func (r *AssessmentRepository) statsKey() string {
	return r.prefix + ":assessments:stats"
}

func (r *AssessmentRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *AssessmentRepository) Save(ctx context.Context, record *domain.AssessmentRecord) error {
	id := record.Assessment.ID
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal assessment %s: %w", id, err)
	}

	created, err := r.client.SetNX(ctx, r.recordKey(id), data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("store assessment %s: %w", id, err)
	}
	if !created {
		return fmt.Errorf("%w: assessment %s", repository.ErrDuplicate, id)
	}

	// Index and stats go out in one MULTI/EXEC round trip.
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.recentKey(), id)
		pipe.LTrim(ctx, r.recentKey(), 0, int64(r.limit-1))
		r.incrementStats(ctx, pipe, &record.Assessment)
		return nil
	})
	if err != nil {
		return fmt.Errorf("index assessment %s: %w", id, err)
	}
	return nil
}

func (r *AssessmentRepository) incrementStats(ctx context.Context, pipe redis.Pipeliner, a *domain.RiskAssessment) {
	key := r.statsKey()

	pipe.HIncrBy(ctx, key, fieldTotal, 1)
	pipe.HIncrByFloat(ctx, key, fieldProbabilitySum, a.FraudProbability)
	pipe.HIncrBy(ctx, key, tierFieldPrefix+string(a.RiskTier), 1)
	if a.IsFraud {
		pipe.HIncrBy(ctx, key, fieldFraudulent, 1)
	}
	if a.Fallback {
		pipe.HIncrBy(ctx, key, fieldFallbacks, 1)
	}
}

func (r *AssessmentRepository) GetByID(ctx context.Context, id string) (*domain.AssessmentRecord, error) {
	data, err := r.client.Get(ctx, r.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: assessment %s", repository.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load assessment %s: %w", id, err)
	}

	var record domain.AssessmentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode assessment %s: %w", id, err)
	}
	return &record, nil
}

// List skips IDs whose records have already expired.
func (r *AssessmentRepository) List(ctx context.Context, limit, offset int) ([]*domain.AssessmentRecord, error) {
	if limit <= 0 {
		return []*domain.AssessmentRecord{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	ids, err := r.client.LRange(ctx, r.recentKey(), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list recent assessments: %w", err)
	}
	return r.load(ctx, ids)
}

func (r *AssessmentRepository) load(ctx context.Context, ids []string) ([]*domain.AssessmentRecord, error) {
	result := []*domain.AssessmentRecord{}
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.recordKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load assessments: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var record domain.AssessmentRecord
		if err := json.Unmarshal([]byte(s), &record); err != nil {
			return nil, fmt.Errorf("decode assessment %s: %w", ids[i], err)
		}
		result = append(result, &record)
	}
	return result, nil
}

func (r *AssessmentRepository) GetByTier(ctx context.Context, tier domain.RiskTier, limit int) ([]*domain.AssessmentRecord, error) {
	all, err := r.List(ctx, r.limit, 0)
	if err != nil {
		return nil, err
	}

	result := []*domain.AssessmentRecord{}
	for _, record := range all {
		if len(result) >= limit {
			break
		}
		if record.Assessment.RiskTier == tier {
			result = append(result, record)
		}
	}
	return result, nil
}

func (r *AssessmentRepository) Stats(ctx context.Context) (*domain.AssessmentStats, error) {
	fields, err := r.client.HGetAll(ctx, r.statsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}

	var (
		total, fraudulent, fallbacks int
		probabilitySum               float64
		byTier                       = make(map[domain.RiskTier]int)
	)
	for field, raw := range fields {
		switch {
		case field == fieldProbabilitySum:
			probabilitySum, err = strconv.ParseFloat(raw, 64)
		case field == fieldTotal:
			total, err = strconv.Atoi(raw)
		case field == fieldFraudulent:
			fraudulent, err = strconv.Atoi(raw)
		case field == fieldFallbacks:
			fallbacks, err = strconv.Atoi(raw)
		case strings.HasPrefix(field, tierFieldPrefix):
			var n int
			n, err = strconv.Atoi(raw)
			byTier[domain.RiskTier(strings.TrimPrefix(field, tierFieldPrefix))] = n
		}
		if err != nil {
			return nil, fmt.Errorf("parse stats field %s: %w", field, err)
		}
	}

	return repository.BuildStats(total, fraudulent, fallbacks, probabilitySum, byTier), nil
}
