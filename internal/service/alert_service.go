package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fraud_scorer/internal/domain"
)

var (
	ErrServiceStopped = errors.New("alert service stopped")
	ErrQueueFull      = errors.New("alert queue full")
)

const defaultQueueSize = 1000

// Alert is published for assessments that recommend blocking or suspending
// a transaction.
type Alert struct {
	AssessmentID     string                `json:"assessment_id"`
	TransactionID    string                `json:"transaction_id,omitempty"`
	Action           string                `json:"action"`
	Recommendation   domain.Recommendation `json:"recommendation"`
	FraudProbability float64               `json:"fraud_probability"`
	RiskTier         domain.RiskTier       `json:"risk_tier"`
	Reasons          []string              `json:"reasons"`
	Amount           float64               `json:"amount"`
	CustomerRegion   string                `json:"customer_region,omitempty"`
	Strategy         domain.StrategyName   `json:"strategy"`
	Fallback         bool                  `json:"fallback"`
	CreatedAt        time.Time             `json:"created_at"`
}

type AlertSink interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// AlertRecorder counts delivery outcomes.
type AlertRecorder interface {
	RecordAlert(delivered bool)
}

type AlertService struct {
	sinks        []AlertSink
	queue        chan Alert
	workers      int
	recorder     AlertRecorder
	shutdownChan chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	logger       *slog.Logger
}

func NewAlertService(sinks []AlertSink, workers int, recorder AlertRecorder, logger *slog.Logger) *AlertService {
	return newAlertService(sinks, workers, defaultQueueSize, recorder, logger)
}

func newAlertService(sinks []AlertSink, workers, queueSize int, recorder AlertRecorder, logger *slog.Logger) *AlertService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}

	s := &AlertService{
		sinks:        sinks,
		queue:        make(chan Alert, queueSize),
		workers:      workers,
		recorder:     recorder,
		shutdownChan: make(chan struct{}),
		logger:       logger,
	}

	s.startWorkers()

	return s
}

// ShouldAlert reports whether an assessment recommends BLOCK or SUSPEND.
func ShouldAlert(a *domain.RiskAssessment) bool {
	switch a.Recommendation.Action() {
	case "BLOCK", "SUSPEND":
		return true
	default:
		return false
	}
}

func NewAlert(tx *domain.Transaction, a *domain.RiskAssessment) Alert {
	return Alert{
		AssessmentID:     a.ID,
		TransactionID:    tx.ID,
		Action:           a.Recommendation.Action(),
		Recommendation:   a.Recommendation,
		FraudProbability: a.FraudProbability,
		RiskTier:         a.RiskTier,
		Reasons:          append([]string(nil), a.Reasons...),
		Amount:           tx.Amount,
		CustomerRegion:   tx.CustomerRegion,
		Strategy:         a.Strategy,
		Fallback:         a.Fallback,
		CreatedAt:        time.Now().UTC(),
	}
}

// RaiseAlert queues an alert when the assessment warrants one. It reports
// whether an alert was queued and never waits for queue space: a full queue
// drops the alert and counts it as failed.
func (s *AlertService) RaiseAlert(ctx context.Context, tx *domain.Transaction, a *domain.RiskAssessment) (bool, error) {
	if !ShouldAlert(a) {
		return false, nil
	}

	alert := NewAlert(tx, a)

	select {
	case <-s.shutdownChan:
		return false, ErrServiceStopped
	default:
	}

	select {
	case s.queue <- alert:
		s.logger.Warn("Fraud alert queued",
			slog.String("assessment_id", alert.AssessmentID),
			slog.String("transaction_id", alert.TransactionID),
			slog.String("action", alert.Action),
			slog.Float64("fraud_probability", alert.FraudProbability))
		return true, nil
	default:
		if s.recorder != nil {
			s.recorder.RecordAlert(false)
		}
		s.logger.WarnContext(ctx, "Alert queue full, dropping alert",
			slog.String("assessment_id", alert.AssessmentID),
			slog.String("transaction_id", alert.TransactionID),
			slog.Int("queue_size", cap(s.queue)))
		return false, ErrQueueFull
	}
}

func (s *AlertService) startWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}
}

func (s *AlertService) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("Alert worker started", slog.Int("worker_id", id))

	for {
		select {
		case alert := <-s.queue:
			s.deliver(alert, id)
		case <-s.shutdownChan:
			for {
				select {
				case alert := <-s.queue:
					s.deliver(alert, id)
				default:
					s.logger.Debug("Alert worker stopping", slog.Int("worker_id", id))
					return
				}
			}
		}
	}
}

func (s *AlertService) deliver(alert Alert, workerID int) {
	for _, sink := range s.sinks {
		startTime := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := sink.Send(ctx, alert)
		cancel()

		if s.recorder != nil {
			s.recorder.RecordAlert(err == nil)
		}

		if err != nil {
			s.logger.Error("Failed to deliver alert",
				slog.String("sink", sink.Name()),
				slog.String("assessment_id", alert.AssessmentID),
				slog.String("error", err.Error()),
				slog.Int("worker_id", workerID),
				slog.Duration("duration", time.Since(startTime)))
			continue
		}
		s.logger.Info("Alert delivered",
			slog.String("sink", sink.Name()),
			slog.String("assessment_id", alert.AssessmentID),
			slog.Int("worker_id", workerID),
			slog.Duration("duration", time.Since(startTime)))
	}
}

// Shutdown stops the workers after the queued alerts are delivered.
func (s *AlertService) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.shutdownChan) })

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Alert service shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogSink writes alerts to the structured log.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) Send(ctx context.Context, alert Alert) error {
	l.logger.Warn("FRAUD ALERT",
		slog.String("assessment_id", alert.AssessmentID),
		slog.String("transaction_id", alert.TransactionID),
		slog.String("recommendation", string(alert.Recommendation)),
		slog.Float64("fraud_probability", alert.FraudProbability),
		slog.Float64("amount", alert.Amount),
		slog.Any("reasons", alert.Reasons))
	return nil
}

// Publisher is the subset of *nats.Conn the NATS sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes alerts as JSON on a subject.
type NATSSink struct {
	publisher Publisher
	subject   string
}

func NewNATSSink(publisher Publisher, subject string) *NATSSink {
	return &NATSSink{publisher: publisher, subject: subject}
}

func (n *NATSSink) Name() string { return "nats" }

func (n *NATSSink) Send(ctx context.Context, alert Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := n.publisher.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish alert to %s: %w", n.subject, err)
	}
	return nil
}
