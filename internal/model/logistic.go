package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
)

var ErrInvalidModel = errors.New("invalid model")

// LogisticModel is a binary logistic regression over named columns.
type LogisticModel struct {
	Name         string             `json:"name"`
	Version      string             `json:"version"`
	Intercept    float64            `json:"intercept"`
	Features     []string           `json:"features"`
	Coefficients map[string]float64 `json:"coefficients"`

	weights []float64
}

// FeatureImportance is the absolute coefficient of one column.
type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

func LoadLogisticModel(path string) (*LogisticModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	var m LogisticModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModel, err)
	}
	if err := m.compile(); err != nil {
		return nil, err
	}
	return &m, nil
}

func NewLogisticModel(name string, intercept float64, features []string, coefficients map[string]float64) (*LogisticModel, error) {
	m := &LogisticModel{
		Name:         name,
		Intercept:    intercept,
		Features:     append([]string(nil), features...),
		Coefficients: coefficients,
	}
	if err := m.compile(); err != nil {
		return nil, err
	}
	return m, nil
}

// compile resolves coefficients into the declared column order. Columns
// without a coefficient weigh zero; coefficients for undeclared columns are
// rejected.
func (m *LogisticModel) compile() error {
	if len(m.Features) == 0 {
		return fmt.Errorf("%w: no features declared", ErrInvalidModel)
	}

	index := make(map[string]int, len(m.Features))
	for i, name := range m.Features {
		if _, dup := index[name]; dup {
			return fmt.Errorf("%w: duplicate feature %q", ErrInvalidModel, name)
		}
		index[name] = i
	}

	m.weights = make([]float64, len(m.Features))
	for name, w := range m.Coefficients {
		i, ok := index[name]
		if !ok {
			return fmt.Errorf("%w: coefficient for undeclared feature %q", ErrInvalidModel, name)
		}
		m.weights[i] = w
	}
	return nil
}

func (m *LogisticModel) FeatureOrder() []string {
	return append([]string(nil), m.Features...)
}

// PredictProbabilities returns [P(legit), P(fraud)].
func (m *LogisticModel) PredictProbabilities(vector []float64) ([]float64, error) {
	if len(vector) != len(m.weights) {
		return nil, fmt.Errorf("expected %d features, got %d", len(m.weights), len(vector))
	}

	z := m.Intercept
	for i, x := range vector {
		z += m.weights[i] * x
	}
	p := 1 / (1 + math.Exp(-z))
	return []float64{1 - p, p}, nil
}

// TopFeatures returns up to n columns ordered by absolute coefficient.
func (m *LogisticModel) TopFeatures(n int) []FeatureImportance {
	out := make([]FeatureImportance, 0, len(m.Features))
	for i, name := range m.Features {
		out = append(out, FeatureImportance{Feature: name, Importance: math.Abs(m.weights[i])})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Importance > out[j].Importance
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
