package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fraud_scorer/internal/api"
	"fraud_scorer/internal/domain"
	"fraud_scorer/internal/model"
	"fraud_scorer/internal/processor"
	"fraud_scorer/internal/repository/memory"
	"fraud_scorer/internal/scoring"
	"fraud_scorer/internal/service"
	"fraud_scorer/pkg/crypto"
	"fraud_scorer/pkg/metrics"
	"fraud_scorer/pkg/resilience"
)

const testSecret = "test-secret"

type capturingSink struct {
	mu     sync.Mutex
	alerts []service.Alert
}

func (c *capturingSink) Name() string { return "capture" }

func (c *capturingSink) Send(ctx context.Context, alert service.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, alert)
	return nil
}

func (c *capturingSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}

type testEnv struct {
	registry  *model.Registry
	repo      *memory.AssessmentRepository
	alerts    *service.AlertService
	sink      *capturingSink
	processor *processor.AssessmentProcessor
	handler   http.Handler
	signer    *crypto.Signer
	logger    *slog.Logger
}

func setup(t *testing.T, loadModel bool, policy scoring.FallbackPolicy) *testEnv {
	t.Helper()
	logger := slog.Default()

	registry := model.NewRegistry(
		filepath.Join("..", "models", "features_info.json"),
		filepath.Join("..", "models", "fraud_model.json"),
		logger,
	)
	if loadModel {
		if err := registry.Reload(); err != nil {
			t.Fatalf("load shipped model failed: %v", err)
		}
	}

	metricsCollector := metrics.NewMetricsCollector(logger)
	breaker := resilience.NewBreaker(resilience.BuildSettings("classifier", 60, 30, 5, 1), nil, logger)
	scorer := scoring.NewScorer(scoring.NewClassifierStrategy(registry, breaker), policy, logger)
	repo := memory.NewAssessmentRepository(100)
	sink := &capturingSink{}
	alerts := service.NewAlertService([]service.AlertSink{sink}, 1, metricsCollector, logger)
	t.Cleanup(func() { _ = alerts.Shutdown(context.Background()) })

	proc := processor.NewAssessmentProcessor(scorer, repo, 4, logger).
		WithAlerter(alerts).
		WithRecorder(metricsCollector).
		WithMaxBatchSize(10)
	signer := crypto.NewSigner(testSecret, logger)
	handler := api.NewAPIHandler(proc, registry, metricsCollector, signer, logger)

	return &testEnv{
		registry:  registry,
		repo:      repo,
		alerts:    alerts,
		sink:      sink,
		processor: proc,
		handler:   handler.Handler(),
		signer:    signer,
		logger:    logger,
	}
}

func exampleTransaction(t *testing.T, name string) domain.Transaction {
	t.Helper()
	for _, ex := range domain.Examples() {
		if ex.Name == name {
			return ex.Transaction
		}
	}
	t.Fatalf("unknown example %s", name)
	return domain.Transaction{}
}

func do(t *testing.T, env *testEnv, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request failed: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response failed: %v (body %q)", err, w.Body.String())
	}
	return v
}

func assess(t *testing.T, env *testEnv, tx domain.Transaction) (*domain.RiskAssessment, *httptest.ResponseRecorder) {
	t.Helper()
	w := do(t, env, "POST", "/api/v1/assessments", api.AssessTransactionRequest{Transaction: tx})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	a := decode[domain.RiskAssessment](t, w)
	return &a, w
}

func TestIntegration_AssessNormalTransaction(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)

	a, w := assess(t, env, exampleTransaction(t, "normal_transaction"))

	if a.IsFraud || a.Strategy != domain.StrategyClassifier || a.Fallback {
		t.Errorf("expected non-fraud classifier assessment, got %+v", a)
	}
	if len(a.Reasons) == 0 {
		t.Errorf("expected reasons")
	}
	if w.Header().Get(api.RequestIDHeader) == "" {
		t.Errorf("expected a generated request ID")
	}

	sig := w.Header().Get(crypto.SignatureHeader)
	if sig == "" {
		t.Fatalf("expected a signature header")
	}
	verify := do(t, env, "POST", "/api/v1/assessments/verify", api.VerifySignatureRequest{Assessment: *a, Signature: sig})
	if verify.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", verify.Code, verify.Body.String())
	}
	if got := decode[api.VerifySignatureResponse](t, verify); !got.Valid {
		t.Errorf("signature did not verify")
	}
}

func TestIntegration_VerifySignature(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)
	a, w := assess(t, env, exampleTransaction(t, "suspicious_transaction"))
	sig := w.Header().Get(crypto.SignatureHeader)

	tampered := *a
	tampered.FraudProbability = 0.01
	tampered.RiskTier = domain.TierVeryLow

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantValid  bool
	}{
		{"original", api.VerifySignatureRequest{Assessment: *a, Signature: sig}, http.StatusOK, true},
		{"tampered assessment", api.VerifySignatureRequest{Assessment: tampered, Signature: sig}, http.StatusOK, false},
		{"wrong signature", api.VerifySignatureRequest{Assessment: *a, Signature: "deadbeef"}, http.StatusOK, false},
		{"missing signature", api.VerifySignatureRequest{Assessment: *a}, http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, env, "POST", "/api/v1/assessments/verify", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if got := decode[api.VerifySignatureResponse](t, w); got.Valid != tt.wantValid {
				t.Errorf("expected valid=%v, got %v", tt.wantValid, got.Valid)
			}
		})
	}
}

func TestIntegration_VerifySignatureWithoutSecret(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)
	env.handler = api.NewAPIHandler(env.processor, env.registry, nil, nil, env.logger).Handler()

	w := do(t, env, "POST", "/api/v1/assessments", api.AssessTransactionRequest{Transaction: exampleTransaction(t, "normal_transaction")})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if sig := w.Header().Get(crypto.SignatureHeader); sig != "" {
		t.Errorf("expected no signature header, got %q", sig)
	}

	verify := do(t, env, "POST", "/api/v1/assessments/verify", api.VerifySignatureRequest{Signature: "deadbeef"})
	if verify.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", verify.Code)
	}
	if errResp := decode[api.ErrorResponse](t, verify); errResp.Code != "SIGNING_DISABLED" {
		t.Errorf("expected SIGNING_DISABLED, got %s", errResp.Code)
	}
}

func TestIntegration_FraudulentTransactionRaisesAlert(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)

	a, _ := assess(t, env, exampleTransaction(t, "fraudulent_transaction"))

	if !a.IsFraud || a.RiskTier != domain.TierHigh {
		t.Fatalf("expected HIGH fraud, got %s fraud=%v p=%.3f", a.RiskTier, a.IsFraud, a.FraudProbability)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := env.alerts.Shutdown(ctx); err != nil {
		t.Fatalf("alert shutdown failed: %v", err)
	}
	if service.ShouldAlert(a) && env.sink.count() != 1 {
		t.Errorf("expected one alert for %s, got %d", a.Recommendation, env.sink.count())
	}
}

func TestIntegration_InvalidTransaction(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)
	tx := exampleTransaction(t, "normal_transaction")
	tx.Hour = 25

	w := do(t, env, "POST", "/api/v1/assessments", api.AssessTransactionRequest{Transaction: tx})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp := decode[api.ErrorResponse](t, w); resp.Code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", resp.Code)
	}
}

func TestIntegration_MalformedBody(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)
	r := httptest.NewRequest("POST", "/api/v1/assessments", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()

	env.handler.ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if resp := decode[api.ErrorResponse](t, w); resp.Code != "INVALID_REQUEST" {
		t.Errorf("expected INVALID_REQUEST, got %s", resp.Code)
	}
}

func TestIntegration_SuppliedFeaturesAreKept(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)
	ratio := 4.0
	req := api.AssessTransactionRequest{
		Transaction: exampleTransaction(t, "normal_transaction"),
		Features:    domain.SuppliedFeatures{AmountToIncomeRatio: &ratio},
	}

	w := do(t, env, "POST", "/api/v1/assessments", req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if a := decode[domain.RiskAssessment](t, w); a.FeaturesUsed.AmountToIncomeRatio != ratio {
		t.Errorf("expected supplied ratio %v, got %v", ratio, a.FeaturesUsed.AmountToIncomeRatio)
	}
}

func TestIntegration_UnloadedModel(t *testing.T) {
	t.Run("fail policy", func(t *testing.T) {
		env := setup(t, false, scoring.PolicyFail)

		w := do(t, env, "POST", "/api/v1/assessments", api.AssessTransactionRequest{Transaction: exampleTransaction(t, "normal_transaction")})

		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", w.Code)
		}
		if resp := decode[api.ErrorResponse](t, w); resp.Code != "SCORING_UNAVAILABLE" {
			t.Errorf("expected SCORING_UNAVAILABLE, got %s", resp.Code)
		}
	})

	t.Run("fallback policy", func(t *testing.T) {
		env := setup(t, false, scoring.PolicyFallback)

		a, _ := assess(t, env, exampleTransaction(t, "fraudulent_transaction"))

		if !a.Fallback || a.Strategy != domain.StrategyWeightedRules || a.FallbackReason == "" {
			t.Errorf("expected flagged fallback, got strategy=%s fallback=%v reason=%q", a.Strategy, a.Fallback, a.FallbackReason)
		}
	})
}

func TestIntegration_BatchAssessment(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)
	var req api.BatchAssessRequest
	for _, ex := range domain.Examples() {
		req.Transactions = append(req.Transactions, api.AssessTransactionRequest{Transaction: ex.Transaction})
	}

	w := do(t, env, "POST", "/api/v1/assessments/batch", req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	result := decode[processor.BatchResult](t, w)
	if len(result.Assessments) != len(req.Transactions) || result.Summary.Total != len(req.Transactions) {
		t.Fatalf("expected %d assessments, got %+v", len(req.Transactions), result.Summary)
	}
	s := result.Summary
	if s.HighRisk+s.MediumRisk+s.LowRisk != s.Total {
		t.Errorf("tier counts do not add up: %+v", s)
	}
}

func TestIntegration_BatchTooLarge(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)
	var req api.BatchAssessRequest
	for i := 0; i < 11; i++ {
		req.Transactions = append(req.Transactions, api.AssessTransactionRequest{Transaction: exampleTransaction(t, "normal_transaction")})
	}

	w := do(t, env, "POST", "/api/v1/assessments/batch", req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestIntegration_HistoryAndStats(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)
	normal, _ := assess(t, env, exampleTransaction(t, "normal_transaction"))
	assess(t, env, exampleTransaction(t, "fraudulent_transaction"))

	w := do(t, env, "GET", "/api/v1/assessments?id="+normal.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if record := decode[domain.AssessmentRecord](t, w); record.Assessment.ID != normal.ID {
		t.Errorf("expected %s, got %s", normal.ID, record.Assessment.ID)
	}

	if w := do(t, env, "GET", "/api/v1/assessments?id=missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}

	w = do(t, env, "GET", "/api/v1/assessments?limit=10", nil)
	list := decode[struct {
		Assessments []domain.AssessmentRecord `json:"assessments"`
		Count       int                       `json:"count"`
	}](t, w)
	if list.Count != 2 || list.Assessments[1].Assessment.ID != normal.ID {
		t.Errorf("expected 2 records newest first, got %+v", list)
	}

	if w := do(t, env, "GET", "/api/v1/assessments?tier=EXTREME", nil); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown tier, got %d", w.Code)
	}

	w = do(t, env, "GET", "/api/v1/stats", nil)
	stats := decode[domain.AssessmentStats](t, w)
	if stats.Total != 2 || stats.Fraudulent != 1 || stats.FraudRate != 0.5 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestIntegration_ModelEndpoints(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)

	info := decode[model.Info](t, do(t, env, "GET", "/api/v1/model", nil))
	if !info.Loaded || info.FeaturesCount == 0 {
		t.Errorf("expected loaded model info, got %+v", info)
	}

	w := do(t, env, "GET", "/api/v1/model/importance?n=3", nil)
	importance := decode[struct {
		TopFeatures []model.FeatureImportance `json:"top_features"`
	}](t, w)
	if len(importance.TopFeatures) != 3 {
		t.Errorf("expected 3 features, got %d", len(importance.TopFeatures))
	}

	before := env.registry.Current()
	if w := do(t, env, "POST", "/api/v1/model/reload", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 on reload, got %d: %s", w.Code, w.Body.String())
	}
	if env.registry.Current() == before {
		t.Errorf("expected a new bundle after reload")
	}
}

func TestIntegration_ExamplesAndHealth(t *testing.T) {
	env := setup(t, true, scoring.PolicyFail)

	examples := decode[struct {
		Examples      []domain.Example  `json:"examples"`
		AllowedValues api.AllowedValues `json:"allowed_values"`
	}](t, do(t, env, "GET", "/api/v1/examples", nil))
	if len(examples.Examples) != 3 {
		t.Errorf("expected 3 examples, got %d", len(examples.Examples))
	}
	allowed := examples.AllowedValues
	if len(allowed.TransactionTypes) != 5 || len(allowed.MerchantCategories) != 12 || len(allowed.PaymentChannels) != 5 {
		t.Errorf("unexpected allowed values: %+v", allowed)
	}
	for _, v := range allowed.TransactionTypes {
		if !v.Valid() {
			t.Errorf("transaction type %q is not accepted", v)
		}
	}
	for _, v := range allowed.PaymentChannels {
		if !v.Valid() {
			t.Errorf("payment channel %q is not accepted", v)
		}
	}

	r := httptest.NewRequest("GET", "/api/health", nil)
	r.Header.Set(api.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, r)

	if got := w.Header().Get(api.RequestIDHeader); got != "req-123" {
		t.Errorf("expected request ID echoed, got %q", got)
	}
	health := decode[api.HealthResponse](t, w)
	if health.Status != "healthy" || !health.ModelLoaded || health.FallbackPolicy != "fail" {
		t.Errorf("unexpected health: %+v", health)
	}
}

func TestIntegration_ConcurrentAssessments(t *testing.T) {
	env := setup(t, true, scoring.PolicyFallback)
	examples := domain.Examples()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tx := examples[i%len(examples)].Transaction
			tx.ID = fmt.Sprintf("txn_%d", i)
			if i%10 == 0 {
				if err := env.registry.Reload(); err != nil {
					errs <- err
					return
				}
			}
			if _, err := env.processor.Assess(context.Background(), tx, domain.SuppliedFeatures{}); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent assessment failed: %v", err)
	}
	if stats, _ := env.repo.Stats(context.Background()); stats.Total != 40 {
		t.Errorf("expected 40 recorded assessments, got %d", stats.Total)
	}
}
