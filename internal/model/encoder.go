package model

import (
	"fmt"

	"fraud_scorer/internal/scoring"
)

// OneHotEncoder emits one `<feature>_<value>` column per known category.
// Unknown values encode as all zeros.
type OneHotEncoder struct {
	features   []string
	categories map[string][]string
}

func NewOneHotEncoder(features []string, categories map[string][]string) *OneHotEncoder {
	e := &OneHotEncoder{
		features:   append([]string(nil), features...),
		categories: make(map[string][]string, len(features)),
	}
	for _, f := range features {
		e.categories[f] = append([]string(nil), categories[f]...)
	}
	return e
}

func (e *OneHotEncoder) CategoricalFeatures() []string {
	return append([]string(nil), e.features...)
}

func (e *OneHotEncoder) Encode(values map[string]string) (scoring.Encoding, error) {
	var enc scoring.Encoding
	for _, f := range e.features {
		v, ok := values[f]
		if !ok {
			return scoring.Encoding{}, fmt.Errorf("missing value for categorical feature %q", f)
		}
		for _, c := range e.categories[f] {
			enc.Columns = append(enc.Columns, f+"_"+c)
			if v == c {
				enc.Values = append(enc.Values, 1)
			} else {
				enc.Values = append(enc.Values, 0)
			}
		}
	}
	return enc, nil
}
