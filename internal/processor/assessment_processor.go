package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fraud_scorer/internal/domain"
	"fraud_scorer/internal/repository"
	"fraud_scorer/internal/scoring"
	"fraud_scorer/pkg/traces"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrEmptyBatch    = errors.New("batch is empty")
	ErrBatchTooLarge = errors.New("batch too large")
)

// Alerter raises alerts for assessments that warrant one.
type Alerter interface {
	RaiseAlert(ctx context.Context, tx *domain.Transaction, a *domain.RiskAssessment) (bool, error)
}

// Recorder receives per-assessment metrics.
type Recorder interface {
	RecordAssessment(duration time.Duration, strategy, tier string, probability float64, fallback bool)
	RecordFailure(code string)
}

type BatchItem struct {
	Transaction domain.Transaction      `json:"transaction"`
	Supplied    domain.SuppliedFeatures `json:"features"`
}

type BatchSummary struct {
	Total              int     `json:"total"`
	Fraudulent         int     `json:"fraudulent"`
	FraudRate          float64 `json:"fraud_rate"`
	AverageProbability float64 `json:"average_probability"`
	HighRisk           int     `json:"high_risk"`
	MediumRisk         int     `json:"medium_risk"`
	LowRisk            int     `json:"low_risk"`
	ProcessingTimeMs   float64 `json:"processing_time_ms"`
}

type BatchResult struct {
	Assessments []*domain.RiskAssessment `json:"assessments"`
	Summary     BatchSummary             `json:"summary"`
}

// AssessmentProcessor runs the scorer for single and batch requests and
// records completed assessments in the caller-owned history.
type AssessmentProcessor struct {
	scorer     *scoring.Scorer
	repo       repository.AssessmentRepository
	alerter    Alerter
	recorder   Recorder
	tracer     trace.Tracer
	workerPool chan struct{}
	maxBatch   int
	logger     *slog.Logger
}

func NewAssessmentProcessor(
	scorer *scoring.Scorer,
	repo repository.AssessmentRepository,
	maxWorkers int,
	logger *slog.Logger,
) *AssessmentProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}

	return &AssessmentProcessor{
		scorer:     scorer,
		repo:       repo,
		workerPool: make(chan struct{}, maxWorkers),
		maxBatch:   100,
		logger:     logger,
	}
}

func (p *AssessmentProcessor) WithAlerter(a Alerter) *AssessmentProcessor {
	p.alerter = a
	return p
}

func (p *AssessmentProcessor) WithRecorder(r Recorder) *AssessmentProcessor {
	p.recorder = r
	return p
}

func (p *AssessmentProcessor) WithTracer(t trace.Tracer) *AssessmentProcessor {
	p.tracer = t
	return p
}

func (p *AssessmentProcessor) WithMaxBatchSize(n int) *AssessmentProcessor {
	if n > 0 {
		p.maxBatch = n
	}
	return p
}

func (p *AssessmentProcessor) Scorer() *scoring.Scorer {
	return p.scorer
}

// scored is an assessment whose history, alert and metric side effects have
// not run yet.
type scored struct {
	tx         domain.Transaction
	assessment *domain.RiskAssessment
	duration   time.Duration
}

// Assess scores one transaction. History and alert failures are logged and
// never turn a completed assessment into an error.
func (p *AssessmentProcessor) Assess(ctx context.Context, tx domain.Transaction, supplied domain.SuppliedFeatures) (*domain.RiskAssessment, error) {
	result, err := p.score(ctx, tx, supplied)
	if err != nil {
		return nil, err
	}
	p.complete(ctx, result)
	return result.assessment, nil
}

// score runs the scorer only. Failures are counted and traced here; nothing
// is recorded or alerted.
func (p *AssessmentProcessor) score(ctx context.Context, tx domain.Transaction, supplied domain.SuppliedFeatures) (scored, error) {
	startTime := time.Now()

	if tx.ID == "" {
		tx.ID = domain.NewTransactionID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = startTime.UTC()
	}

	ctx, span := traces.StartSpan(ctx, p.tracer, "scoring.assess",
		traces.TransactionID(tx.ID),
		traces.Strategy(string(p.scorer.Strategy())))
	defer span.End()

	assessment, err := p.scorer.Assess(tx, supplied)
	if err != nil {
		code := FailureCode(err)
		if p.recorder != nil {
			p.recorder.RecordFailure(code)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		p.logger.WarnContext(ctx, "Assessment failed",
			slog.String("transaction_id", tx.ID),
			slog.String("code", code),
			slog.String("error", err.Error()))
		return scored{}, err
	}

	span.SetAttributes(
		traces.AssessmentID(assessment.ID),
		traces.RiskTier(string(assessment.RiskTier)),
		traces.FraudProbability(assessment.FraudProbability),
		traces.Fallback(assessment.Fallback))

	return scored{tx: tx, assessment: assessment, duration: time.Since(startTime)}, nil
}

// complete runs the side effects of a successful assessment.
func (p *AssessmentProcessor) complete(ctx context.Context, s scored) {
	assessment := s.assessment

	if p.recorder != nil {
		p.recorder.RecordAssessment(s.duration, string(assessment.Strategy), string(assessment.RiskTier),
			assessment.FraudProbability, assessment.Fallback)
	}

	p.record(ctx, s.tx, assessment)

	if p.alerter != nil {
		if _, err := p.alerter.RaiseAlert(ctx, &s.tx, assessment); err != nil {
			p.logger.ErrorContext(ctx, "Failed to raise alert",
				slog.String("assessment_id", assessment.ID),
				slog.String("error", err.Error()))
		}
	}

	p.logger.InfoContext(ctx, "Transaction assessed",
		slog.String("transaction_id", s.tx.ID),
		slog.String("assessment_id", assessment.ID),
		slog.String("strategy", string(assessment.Strategy)),
		slog.String("risk_tier", string(assessment.RiskTier)),
		slog.Float64("fraud_probability", assessment.FraudProbability),
		slog.Bool("fallback", assessment.Fallback),
		slog.Duration("duration", s.duration))
}

func (p *AssessmentProcessor) record(ctx context.Context, tx domain.Transaction, a *domain.RiskAssessment) {
	if p.repo == nil {
		return
	}
	record := &domain.AssessmentRecord{
		Transaction: tx,
		Assessment:  *a,
		RecordedAt:  time.Now().UTC(),
	}
	if err := p.repo.Save(ctx, record); err != nil {
		p.logger.ErrorContext(ctx, "Failed to record assessment",
			slog.String("assessment_id", a.ID),
			slog.String("error", err.Error()))
	}
}

// ProcessBatch scores every item concurrently and returns the assessments in
// input order. Items are validated up front; any failure fails the batch and
// nothing from it is recorded or alerted.
func (p *AssessmentProcessor) ProcessBatch(ctx context.Context, items []BatchItem) (*BatchResult, error) {
	startTime := time.Now()

	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(items) > p.maxBatch {
		return nil, fmt.Errorf("%w: %d items, maximum %d", ErrBatchTooLarge, len(items), p.maxBatch)
	}

	for i, item := range items {
		if err := p.scorer.Validate(item.Transaction, item.Supplied); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	ctx, span := traces.StartSpan(ctx, p.tracer, "scoring.batch", traces.BatchSize(len(items)))
	defer span.End()

	results := make([]scored, len(items))
	errs := make([]error, len(items))

	var wg sync.WaitGroup
	for i := range items {
		select {
		case p.workerPool <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-p.workerPool }()
			results[i], errs[i] = p.score(ctx, items[i].Transaction, items[i].Supplied)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, FailureCode(err))
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	assessments := make([]*domain.RiskAssessment, len(results))
	for i, r := range results {
		p.complete(ctx, r)
		assessments[i] = r.assessment
	}

	summary := Summarize(assessments)
	summary.ProcessingTimeMs = float64(time.Since(startTime).Microseconds()) / 1000

	p.logger.InfoContext(ctx, "Batch assessed",
		slog.Int("total", summary.Total),
		slog.Int("fraudulent", summary.Fraudulent),
		slog.Float64("processing_time_ms", summary.ProcessingTimeMs))

	return &BatchResult{Assessments: assessments, Summary: summary}, nil
}

// Summarize aggregates a batch. VERY_LOW assessments count as low risk.
func Summarize(assessments []*domain.RiskAssessment) BatchSummary {
	summary := BatchSummary{Total: len(assessments)}
	if len(assessments) == 0 {
		return summary
	}

	var probabilitySum float64
	for _, a := range assessments {
		probabilitySum += a.FraudProbability
		if a.IsFraud {
			summary.Fraudulent++
		}
		switch a.RiskTier {
		case domain.TierHigh:
			summary.HighRisk++
		case domain.TierMedium:
			summary.MediumRisk++
		default:
			summary.LowRisk++
		}
	}

	summary.FraudRate = float64(summary.Fraudulent) / float64(summary.Total)
	summary.AverageProbability = probabilitySum / float64(summary.Total)
	return summary
}

func (p *AssessmentProcessor) GetAssessment(ctx context.Context, id string) (*domain.AssessmentRecord, error) {
	return p.repo.GetByID(ctx, id)
}

func (p *AssessmentProcessor) ListAssessments(ctx context.Context, limit, offset int) ([]*domain.AssessmentRecord, error) {
	return p.repo.List(ctx, limit, offset)
}

func (p *AssessmentProcessor) ListByTier(ctx context.Context, tier domain.RiskTier, limit int) ([]*domain.AssessmentRecord, error) {
	return p.repo.GetByTier(ctx, tier, limit)
}

func (p *AssessmentProcessor) Stats(ctx context.Context) (*domain.AssessmentStats, error) {
	return p.repo.Stats(ctx)
}

// FailureCode maps an assessment error to its API error code.
func FailureCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTransaction):
		return "VALIDATION_ERROR"
	case errors.Is(err, domain.ErrFeatureAssemblyMismatch):
		return "FEATURE_MISMATCH"
	case errors.Is(err, domain.ErrScoringUnavailable):
		return "SCORING_UNAVAILABLE"
	default:
		return "SERVER_ERROR"
	}
}
