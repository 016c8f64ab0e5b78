package model

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"fraud_scorer/internal/domain"
	"fraud_scorer/internal/scoring"
)

// Bundle is an immutable encoder/classifier pair loaded together.
type Bundle struct {
	Manifest *Manifest
	Encoder  *OneHotEncoder
	Model    *LogisticModel
	LoadedAt time.Time
}

type Info struct {
	Loaded        bool               `json:"model_loaded"`
	ModelName     string             `json:"model_name,omitempty"`
	Version       string             `json:"version,omitempty"`
	Metrics       map[string]float64 `json:"performance_metrics,omitempty"`
	TrainingInfo  map[string]any     `json:"training_info,omitempty"`
	FeaturesCount int                `json:"features_count"`
	LoadedAt      *time.Time         `json:"loaded_at,omitempty"`
}

// Registry holds the active bundle. Reload builds a new bundle off to the
// side and swaps the pointer, so concurrent assessments always see one
// consistent pair.
type Registry struct {
	manifestPath string
	modelPath    string
	current      atomic.Pointer[Bundle]
	reloadMu     sync.Mutex
	logger       *slog.Logger
}

func NewRegistry(manifestPath, modelPath string, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		manifestPath: manifestPath,
		modelPath:    modelPath,
		logger:       logger,
	}
}

// Reload reads both files and activates them. On failure the previous bundle
// stays active.
func (r *Registry) Reload() error {
	r.reloadMu.Lock()
	defer r.reloadMu.Unlock()

	manifest, err := LoadManifest(r.manifestPath)
	if err != nil {
		r.logger.Error("Failed to load feature manifest",
			slog.String("path", r.manifestPath),
			slog.String("error", err.Error()))
		return err
	}

	m, err := LoadLogisticModel(r.modelPath)
	if err != nil {
		r.logger.Error("Failed to load model",
			slog.String("path", r.modelPath),
			slog.String("error", err.Error()))
		return err
	}

	bundle, err := NewBundle(manifest, m)
	if err != nil {
		r.logger.Error("Model does not match manifest", slog.String("error", err.Error()))
		return err
	}

	r.Activate(bundle)
	r.logger.Info("Model loaded",
		slog.String("model", m.Name),
		slog.String("version", m.Version),
		slog.Int("features", len(m.Features)))
	return nil
}

// NewBundle pairs a manifest with a model. Every model column must be
// declared by the manifest.
func NewBundle(manifest *Manifest, m *LogisticModel) (*Bundle, error) {
	declared := make(map[string]struct{}, len(manifest.AllFeatures))
	for _, name := range manifest.AllFeatures {
		declared[name] = struct{}{}
	}
	for _, name := range m.Features {
		if _, ok := declared[name]; !ok {
			return nil, fmt.Errorf("%w: model column %q not in manifest", ErrInvalidModel, name)
		}
	}

	return &Bundle{
		Manifest: manifest,
		Encoder:  NewOneHotEncoder(manifest.CategoricalFeatures, manifest.Categories),
		Model:    m,
		LoadedAt: time.Now().UTC(),
	}, nil
}

// Activate makes b the bundle every later Snapshot returns.
func (r *Registry) Activate(b *Bundle) {
	r.current.Store(b)
}

func (r *Registry) Current() *Bundle {
	return r.current.Load()
}

// Snapshot implements scoring.ModelSource.
func (r *Registry) Snapshot() (scoring.Encoder, scoring.Classifier, error) {
	b := r.current.Load()
	if b == nil {
		return nil, nil, fmt.Errorf("%w: no model loaded", domain.ErrScoringUnavailable)
	}
	return b.Encoder, b.Model, nil
}

func (r *Registry) Info() Info {
	b := r.current.Load()
	if b == nil {
		return Info{}
	}
	loadedAt := b.LoadedAt
	name := b.Manifest.ModelName
	if name == "" {
		name = b.Model.Name
	}
	return Info{
		Loaded:        true,
		ModelName:     name,
		Version:       b.Model.Version,
		Metrics:       b.Manifest.Metrics,
		TrainingInfo:  b.Manifest.TrainingInfo,
		FeaturesCount: len(b.Model.Features),
		LoadedAt:      &loadedAt,
	}
}

// Importance returns the top n columns of the active model.
func (r *Registry) Importance(n int) ([]FeatureImportance, error) {
	b := r.current.Load()
	if b == nil {
		return nil, fmt.Errorf("%w: no model loaded", domain.ErrScoringUnavailable)
	}
	return b.Model.TopFeatures(n), nil
}
