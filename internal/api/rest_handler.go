package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"fraud_scorer/internal/domain"
	"fraud_scorer/internal/model"
	"fraud_scorer/internal/processor"
	"fraud_scorer/internal/repository"
	"fraud_scorer/pkg/crypto"
	"fraud_scorer/pkg/logging"
	"fraud_scorer/pkg/metrics"

	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	Version         = "1.0.0"

	defaultListLimit  = 50
	defaultImportance = 10
)

// ModelRegistry is the model surface exposed over HTTP.
type ModelRegistry interface {
	Info() model.Info
	Importance(n int) ([]model.FeatureImportance, error)
	Reload() error
}

type APIHandler struct {
	processor      *processor.AssessmentProcessor
	models         ModelRegistry
	metrics        *metrics.MetricsCollector
	signer         *crypto.Signer
	logger         *slog.Logger
	requestTimeout time.Duration
}

// NewAPIHandler builds the handler. models may be nil when the service runs
// the weighted rule strategy only; metrics and signer are optional.
func NewAPIHandler(
	processor *processor.AssessmentProcessor,
	models ModelRegistry,
	metrics *metrics.MetricsCollector,
	signer *crypto.Signer,
	logger *slog.Logger,
) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &APIHandler{
		processor:      processor,
		models:         models,
		metrics:        metrics,
		signer:         signer,
		logger:         logger,
		requestTimeout: 30 * time.Second,
	}
}

// AssessTransactionRequest is a transaction plus any derived features the
// caller already computed.
type AssessTransactionRequest struct {
	domain.Transaction
	Features domain.SuppliedFeatures `json:"features"`
}

type BatchAssessRequest struct {
	Transactions []AssessTransactionRequest `json:"transactions"`
}

// VerifySignatureRequest pairs an assessment returned by this service with
// the signature header it was served with.
type VerifySignatureRequest struct {
	Assessment domain.RiskAssessment `json:"assessment"`
	Signature  string                `json:"signature"`
}

type VerifySignatureResponse struct {
	Valid bool `json:"valid"`
}

// AllowedValues lists the enumerated transaction fields.
type AllowedValues struct {
	TransactionTypes   []domain.TransactionType  `json:"transaction_type"`
	MerchantCategories []domain.MerchantCategory `json:"merchant_category"`
	PaymentChannels    []domain.PaymentChannel   `json:"payment_channel"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status         string              `json:"status"`
	Timestamp      time.Time           `json:"timestamp"`
	Version        string              `json:"version"`
	Strategy       domain.StrategyName `json:"strategy"`
	FallbackPolicy string              `json:"fallback_policy"`
	ModelLoaded    bool                `json:"model_loaded"`
}

func (h *APIHandler) AssessTransactionHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req AssessTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	assessment, err := h.processor.Assess(ctx, req.Transaction, req.Features)
	if err != nil {
		h.sendAssessmentError(ctx, w, err)
		return
	}

	if h.signer.Enabled() {
		w.Header().Set(crypto.SignatureHeader, h.signer.SignAssessment(
			assessment.ID,
			assessment.TransactionID,
			assessment.FraudProbability,
			string(assessment.RiskTier),
			assessment.EvaluatedAt.Unix(),
		))
	}

	h.sendJSON(w, assessment, http.StatusOK)
}

func (h *APIHandler) BatchAssessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	var req BatchAssessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	items := make([]processor.BatchItem, len(req.Transactions))
	for i, t := range req.Transactions {
		items[i] = processor.BatchItem{Transaction: t.Transaction, Supplied: t.Features}
	}

	result, err := h.processor.ProcessBatch(ctx, items)
	if err != nil {
		if errors.Is(err, processor.ErrEmptyBatch) || errors.Is(err, processor.ErrBatchTooLarge) {
			h.sendError(w, err.Error(), http.StatusBadRequest, "INVALID_REQUEST", "")
			return
		}
		h.sendAssessmentError(ctx, w, err)
		return
	}

	h.sendJSON(w, result, http.StatusOK)
}

// GetAssessmentsHandler returns one assessment by ?id=, or the most recent
// ones with optional ?limit=, ?offset= and ?tier= filters.
func (h *APIHandler) GetAssessmentsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	query := r.URL.Query()

	if id := query.Get("id"); id != "" {
		record, err := h.processor.GetAssessment(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				h.sendError(w, "Assessment not found", http.StatusNotFound, "NOT_FOUND", "")
			} else {
				h.logger.ErrorContext(ctx, "Failed to get assessment", slog.String("error", err.Error()))
				h.sendError(w, "Failed to get assessment", http.StatusInternalServerError, "SERVER_ERROR", "")
			}
			return
		}
		h.sendJSON(w, record, http.StatusOK)
		return
	}

	limit, err := intParam(query.Get("limit"), defaultListLimit)
	if err != nil {
		h.sendError(w, "limit must be a positive integer", http.StatusBadRequest, "INVALID_REQUEST", "")
		return
	}
	offset, err := intParam(query.Get("offset"), 0)
	if err != nil {
		h.sendError(w, "offset must be a non-negative integer", http.StatusBadRequest, "INVALID_REQUEST", "")
		return
	}

	var records []*domain.AssessmentRecord
	if tier := domain.RiskTier(query.Get("tier")); tier != "" {
		if !validTier(tier) {
			h.sendError(w, fmt.Sprintf("unknown risk tier %q", tier), http.StatusBadRequest, "INVALID_REQUEST", "")
			return
		}
		records, err = h.processor.ListByTier(ctx, tier, limit)
	} else {
		records, err = h.processor.ListAssessments(ctx, limit, offset)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to list assessments", slog.String("error", err.Error()))
		h.sendError(w, "Failed to list assessments", http.StatusInternalServerError, "SERVER_ERROR", "")
		return
	}
	if records == nil {
		records = []*domain.AssessmentRecord{}
	}

	h.sendJSON(w, map[string]interface{}{
		"assessments": records,
		"count":       len(records),
	}, http.StatusOK)
}

func (h *APIHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	stats, err := h.processor.Stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to load stats", slog.String("error", err.Error()))
		h.sendError(w, "Failed to load stats", http.StatusInternalServerError, "SERVER_ERROR", "")
		return
	}

	h.sendJSON(w, stats, http.StatusOK)
}

func (h *APIHandler) ModelInfoHandler(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		h.sendJSON(w, model.Info{}, http.StatusOK)
		return
	}
	h.sendJSON(w, h.models.Info(), http.StatusOK)
}

func (h *APIHandler) FeatureImportanceHandler(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		h.sendError(w, "No model configured", http.StatusServiceUnavailable, "SCORING_UNAVAILABLE", "")
		return
	}

	n, err := intParam(r.URL.Query().Get("n"), defaultImportance)
	if err != nil {
		h.sendError(w, "n must be a positive integer", http.StatusBadRequest, "INVALID_REQUEST", "")
		return
	}

	top, err := h.models.Importance(n)
	if err != nil {
		h.sendError(w, "Model not loaded", http.StatusServiceUnavailable, "SCORING_UNAVAILABLE", err.Error())
		return
	}

	h.sendJSON(w, map[string]interface{}{"top_features": top}, http.StatusOK)
}

func (h *APIHandler) ReloadModelHandler(w http.ResponseWriter, r *http.Request) {
	if h.models == nil {
		h.sendError(w, "No model configured", http.StatusServiceUnavailable, "SCORING_UNAVAILABLE", "")
		return
	}

	err := h.models.Reload()
	if h.metrics != nil {
		h.metrics.RecordModelReload(err == nil)
	}
	if err != nil {
		logging.L(r.Context()).Error("Model reload failed", slog.String("error", err.Error()))
		h.sendError(w, "Model reload failed", http.StatusInternalServerError, "SERVER_ERROR", err.Error())
		return
	}

	h.sendJSON(w, h.models.Info(), http.StatusOK)
}

// VerifySignatureHandler checks an assessment against its signature.
func (h *APIHandler) VerifySignatureHandler(w http.ResponseWriter, r *http.Request) {
	if !h.signer.Enabled() {
		h.sendError(w, "Signing not configured", http.StatusServiceUnavailable, "SIGNING_DISABLED", "")
		return
	}

	var req VerifySignatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, "Invalid request body", http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.Signature == "" {
		h.sendError(w, "Signature is required", http.StatusBadRequest, "INVALID_REQUEST", "")
		return
	}

	a := req.Assessment
	err := h.signer.VerifyAssessment(a.ID, a.TransactionID, a.FraudProbability, string(a.RiskTier), a.EvaluatedAt.Unix(), req.Signature)
	h.sendJSON(w, VerifySignatureResponse{Valid: err == nil}, http.StatusOK)
}

func (h *APIHandler) ExamplesHandler(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]interface{}{
		"examples": domain.Examples(),
		"allowed_values": AllowedValues{
			TransactionTypes:   domain.TransactionTypes(),
			MerchantCategories: domain.MerchantCategories(),
			PaymentChannels:    domain.PaymentChannels(),
		},
	}, http.StatusOK)
}

func (h *APIHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	scorer := h.processor.Scorer()
	response := HealthResponse{
		Status:         "healthy",
		Timestamp:      time.Now().UTC(),
		Version:        Version,
		Strategy:       scorer.Strategy(),
		FallbackPolicy: string(scorer.Policy()),
	}
	if h.models != nil {
		response.ModelLoaded = h.models.Info().Loaded
	}
	h.sendJSON(w, response, http.StatusOK)
}

func (h *APIHandler) sendAssessmentError(ctx context.Context, w http.ResponseWriter, err error) {
	code := processor.FailureCode(err)
	switch code {
	case "VALIDATION_ERROR":
		h.sendError(w, "Invalid transaction", http.StatusBadRequest, code, err.Error())
	case "FEATURE_MISMATCH":
		h.sendError(w, "Feature assembly mismatch", http.StatusUnprocessableEntity, code, err.Error())
	case "SCORING_UNAVAILABLE":
		h.sendError(w, "Scoring unavailable", http.StatusServiceUnavailable, code, err.Error())
	default:
		logging.L(ctx).Error("Assessment failed", slog.String("error", err.Error()))
		h.sendError(w, "Assessment failed", http.StatusInternalServerError, code, "")
	}
}

func (h *APIHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func (h *APIHandler) sendError(w http.ResponseWriter, message string, statusCode int, code, details string) {
	errorResponse := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse)

	h.logger.Warn("API error response",
		slog.String("message", message),
		slog.String("code", code),
		slog.Int("status", statusCode))
}

func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/assessments", h.AssessTransactionHandler)
	mux.HandleFunc("POST /api/v1/assessments/batch", h.BatchAssessHandler)
	mux.HandleFunc("POST /api/v1/assessments/verify", h.VerifySignatureHandler)
	mux.HandleFunc("GET /api/v1/assessments", h.GetAssessmentsHandler)
	mux.HandleFunc("GET /api/v1/stats", h.StatsHandler)
	mux.HandleFunc("GET /api/v1/model", h.ModelInfoHandler)
	mux.HandleFunc("GET /api/v1/model/importance", h.FeatureImportanceHandler)
	mux.HandleFunc("POST /api/v1/model/reload", h.ReloadModelHandler)
	mux.HandleFunc("GET /api/v1/examples", h.ExamplesHandler)
	mux.HandleFunc("GET /api/health", h.HealthCheckHandler)
}

// Handler returns the routes wrapped with request-ID propagation.
func (h *APIHandler) Handler() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.withRequestID(mux)
}

func (h *APIHandler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)

		ctx := logging.WithRequestID(r.Context(), requestID)
		ctx = logging.WithLogger(ctx, h.logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func intParam(raw string, defaultValue int) (int, error) {
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || (n == 0 && defaultValue > 0) {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return n, nil
}

func validTier(t domain.RiskTier) bool {
	switch t {
	case domain.TierVeryLow, domain.TierLow, domain.TierMedium, domain.TierHigh:
		return true
	default:
		return false
	}
}
