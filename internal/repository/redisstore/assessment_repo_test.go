package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"fraud_scorer/internal/domain"
	"fraud_scorer/internal/repository"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(id string, p float64, tier domain.RiskTier, fallback bool) *domain.AssessmentRecord {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return &domain.AssessmentRecord{
		Transaction: domain.Transaction{ID: "txn_" + id, Amount: 125000, Hour: 3},
		Assessment: domain.RiskAssessment{
			ID:               id,
			TransactionID:    "txn_" + id,
			FraudProbability: p,
			RiskTier:         tier,
			IsFraud:          p > domain.FraudThreshold,
			Reasons:          []string{"night-time transaction (3h)"},
			Recommendation:   domain.RecommendBlock,
			Strategy:         domain.StrategyWeightedRules,
			Fallback:         fallback,
			EvaluatedAt:      at,
		},
		RecordedAt: at,
	}
}

func encode(t *testing.T, record *domain.AssessmentRecord) []byte {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	return data
}

func TestSave_WritesRecordIndexAndStats(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewAssessmentRepository(client, "test", time.Hour, 100)
	record := testRecord("a1", 0.9, domain.TierHigh, true)

	mock.ExpectSetNX("test:assessment:a1", encode(t, record), time.Hour).SetVal(true)
	mock.ExpectTxPipeline()
	mock.ExpectLPush("test:assessments:recent", "a1").SetVal(1)
	mock.ExpectLTrim("test:assessments:recent", 0, 99).SetVal("OK")
	mock.ExpectHIncrBy("test:assessments:stats", "total", 1).SetVal(1)
	mock.ExpectHIncrByFloat("test:assessments:stats", "probability_sum", 0.9).SetVal(0.9)
	mock.ExpectHIncrBy("test:assessments:stats", "tier:HIGH", 1).SetVal(1)
	mock.ExpectHIncrBy("test:assessments:stats", "fraudulent", 1).SetVal(1)
	mock.ExpectHIncrBy("test:assessments:stats", "fallbacks", 1).SetVal(1)
	mock.ExpectTxPipelineExec()

	err := repo.Save(context.Background(), record)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_Duplicate(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewAssessmentRepository(client, "test", time.Hour, 100)
	record := testRecord("a1", 0.1, domain.TierVeryLow, false)

	mock.ExpectSetNX("test:assessment:a1", encode(t, record), time.Hour).SetVal(false)

	err := repo.Save(context.Background(), record)

	assert.ErrorIs(t, err, repository.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_RedisError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewAssessmentRepository(client, "test", time.Hour, 100)
	record := testRecord("a1", 0.1, domain.TierVeryLow, false)

	mock.ExpectSetNX("test:assessment:a1", encode(t, record), time.Hour).SetErr(errors.New("connection refused"))

	err := repo.Save(context.Background(), record)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSave_IndexError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewAssessmentRepository(client, "test", time.Hour, 100)
	record := testRecord("a1", 0.1, domain.TierVeryLow, false)

	mock.ExpectSetNX("test:assessment:a1", encode(t, record), time.Hour).SetVal(true)
	mock.ExpectTxPipeline()
	mock.ExpectLPush("test:assessments:recent", "a1").SetErr(errors.New("READONLY replica"))
	mock.ExpectLTrim("test:assessments:recent", 0, 99).SetVal("OK")
	mock.ExpectHIncrBy("test:assessments:stats", "total", 1).SetVal(1)
	mock.ExpectHIncrByFloat("test:assessments:stats", "probability_sum", 0.1).SetVal(0.1)
	mock.ExpectHIncrBy("test:assessments:stats", "tier:VERY_LOW", 1).SetVal(1)
	mock.ExpectTxPipelineExec()

	err := repo.Save(context.Background(), record)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "index assessment a1")
}

func TestGetByID(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewAssessmentRepository(client, "test", time.Hour, 100)
	record := testRecord("a1", 0.9, domain.TierHigh, false)

	mock.ExpectGet("test:assessment:a1").SetVal(string(encode(t, record)))
	mock.ExpectGet("test:assessment:gone").RedisNil()

	got, err := repo.GetByID(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, record.Assessment.Reasons, got.Assessment.Reasons)
	assert.Equal(t, record.Assessment.EvaluatedAt, got.Assessment.EvaluatedAt)
	assert.Equal(t, domain.TierHigh, got.Assessment.RiskTier)

	_, err = repo.GetByID(context.Background(), "gone")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestList_SkipsExpiredRecords(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewAssessmentRepository(client, "test", time.Hour, 100)
	a2 := testRecord("a2", 0.2, domain.TierLow, false)

	mock.ExpectLRange("test:assessments:recent", 0, 1).SetVal([]string{"a2", "a1"})
	mock.ExpectMGet("test:assessment:a2", "test:assessment:a1").SetVal([]interface{}{string(encode(t, a2)), nil})

	got, err := repo.List(context.Background(), 2, 0)

	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a2", got[0].Assessment.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewAssessmentRepository(client, "test", time.Hour, 100)

	mock.ExpectHGetAll("test:assessments:stats").SetVal(map[string]string{
		"total":           "4",
		"fraudulent":      "1",
		"fallbacks":       "2",
		"probability_sum": "1.6",
		"tier:HIGH":       "1",
		"tier:VERY_LOW":   "3",
	})

	stats, err := repo.Stats(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 0.25, stats.FraudRate)
	assert.InDelta(t, 0.4, stats.AverageProbability, 1e-9)
	assert.Equal(t, 2, stats.Fallbacks)
	assert.Equal(t, 3, stats.ByTier[domain.TierVeryLow])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStats_CorruptField(t *testing.T) {
	client, mock := redismock.NewClientMock()
	repo := NewAssessmentRepository(client, "test", time.Hour, 100)

	mock.ExpectHGetAll("test:assessments:stats").SetVal(map[string]string{"total": "many"})

	_, err := repo.Stats(context.Background())

	assert.Error(t, err)
}
