// Package model loads the classifier and categorical encoder used by the
// classifier scoring strategy and keeps the active pair swappable at runtime.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var ErrInvalidManifest = errors.New("invalid feature manifest")

// Manifest describes the feature layout a model was trained with.
type Manifest struct {
	ModelName           string              `json:"model_name"`
	NumericalFeatures   []string            `json:"numerical_features"`
	BinaryFeatures      []string            `json:"binary_features"`
	CategoricalFeatures []string            `json:"categorical_features"`
	Categories          map[string][]string `json:"categories"`
	AllFeatures         []string            `json:"all_features"`
	Metrics             map[string]float64  `json:"metrics,omitempty"`
	TrainingInfo        map[string]any      `json:"training_info,omitempty"`
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) Validate() error {
	if len(m.AllFeatures) == 0 {
		return fmt.Errorf("%w: all_features is empty", ErrInvalidManifest)
	}

	seen := make(map[string]struct{}, len(m.AllFeatures))
	for _, name := range m.AllFeatures {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: duplicate column %q", ErrInvalidManifest, name)
		}
		seen[name] = struct{}{}
	}

	for _, feature := range m.CategoricalFeatures {
		if len(m.Categories[feature]) == 0 {
			return fmt.Errorf("%w: no categories for %q", ErrInvalidManifest, feature)
		}
	}
	return nil
}
