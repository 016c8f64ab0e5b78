package scoring

import (
	"fmt"
	"slices"
	"strings"

	"fraud_scorer/internal/domain"
)

// Column names of the numeric and binary features the core assembles itself.
const (
	ColAmount              = "amount"
	ColHour                = "hour"
	ColAmountAnomalyScore  = "amount_anomaly_score"
	ColAmountToIncomeRatio = "amount_to_income_ratio"
	ColAccountAgeDays      = "account_age_days"
	ColMonthlyIncome       = "monthly_income"

	ColIsOddHour         = "is_odd_hour"
	ColIsForeignLocation = "is_foreign_location"
	ColIsRiskyCategory   = "is_risky_category"
)

// Categorical attribute names handed to the encoder.
const (
	CatTransactionType  = "transaction_type"
	CatMerchantCategory = "merchant_category"
	CatPaymentChannel   = "payment_channel"
	CatCustomerRegion   = "customer_region"
)

// NumericColumns lists the numeric columns followed by the binary ones, in
// the order the core assembles them.
func NumericColumns() []string {
	return []string{
		ColAmount, ColHour, ColAmountAnomalyScore, ColAmountToIncomeRatio, ColAccountAgeDays, ColMonthlyIncome,
		ColIsOddHour, ColIsForeignLocation, ColIsRiskyCategory,
	}
}

// Encoding is the encoder's output: one value per declared column name.
type Encoding struct {
	Columns []string
	Values  []float64
}

// Encoder turns categorical attributes into named numeric columns.
type Encoder interface {
	// CategoricalFeatures lists the attributes the encoder expects.
	CategoricalFeatures() []string
	Encode(values map[string]string) (Encoding, error)
}

// Classifier returns per-class probabilities; index 1 is the fraud class.
type Classifier interface {
	// FeatureOrder is the exact column order PredictProbabilities expects.
	FeatureOrder() []string
	PredictProbabilities(vector []float64) ([]float64, error)
}

func categoricalValues(tx domain.Transaction) map[string]string {
	return map[string]string{
		CatTransactionType:  string(tx.Type),
		CatMerchantCategory: string(tx.MerchantCategory),
		CatPaymentChannel:   string(tx.PaymentChannel),
		CatCustomerRegion:   tx.CustomerRegion,
	}
}

func boolColumn(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// AssembleVector builds the classifier input. Columns are collected by name
// (numeric, binary, then one-hot) and then placed into the classifier's
// declared order through an explicit name-to-index mapping. A declared
// column that is missing is zero-filled only when it is a one-hot column of
// a categorical feature the encoder handles; anything else is a mismatch.
func AssembleVector(tx domain.Transaction, f domain.DerivedFeatures, enc Encoder, order []string) ([]float64, error) {
	if len(order) == 0 {
		return nil, fmt.Errorf("%w: classifier declares no columns", domain.ErrFeatureAssemblyMismatch)
	}

	columns := map[string]float64{
		ColAmount:              tx.Amount,
		ColHour:                float64(tx.Hour),
		ColAmountAnomalyScore:  f.AmountAnomalyScore,
		ColAmountToIncomeRatio: f.AmountToIncomeRatio,
		ColAccountAgeDays:      float64(tx.AccountAgeDays),
		ColMonthlyIncome:       tx.MonthlyIncome,
		ColIsOddHour:           boolColumn(f.IsOddHour),
		ColIsForeignLocation:   boolColumn(f.IsForeignLocation),
		ColIsRiskyCategory:     boolColumn(f.IsRiskyCategory),
	}

	available := categoricalValues(tx)
	categorical := enc.CategoricalFeatures()
	input := make(map[string]string, len(categorical))
	for _, name := range categorical {
		v, ok := available[name]
		if !ok {
			return nil, fmt.Errorf("%w: encoder expects unknown categorical feature %q", domain.ErrFeatureAssemblyMismatch, name)
		}
		input[name] = v
	}

	encoding, err := enc.Encode(input)
	if err != nil {
		return nil, fmt.Errorf("%w: encode categorical features: %v", domain.ErrFeatureAssemblyMismatch, err)
	}
	if len(encoding.Columns) != len(encoding.Values) {
		return nil, fmt.Errorf("%w: encoder returned %d columns for %d values",
			domain.ErrFeatureAssemblyMismatch, len(encoding.Columns), len(encoding.Values))
	}
	for i, name := range encoding.Columns {
		if _, dup := columns[name]; dup {
			return nil, fmt.Errorf("%w: encoded column %q collides with an existing column", domain.ErrFeatureAssemblyMismatch, name)
		}
		columns[name] = encoding.Values[i]
	}

	index := make(map[string]int, len(order))
	for i, name := range order {
		if _, dup := index[name]; dup {
			return nil, fmt.Errorf("%w: classifier declares column %q twice", domain.ErrFeatureAssemblyMismatch, name)
		}
		index[name] = i
	}

	vector := make([]float64, len(order))
	var missing []string
	for name, i := range index {
		if v, ok := columns[name]; ok {
			vector[i] = v
			continue
		}
		if isOneHotColumn(name, categorical) {
			continue
		}
		missing = append(missing, name)
	}

	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("%w: cannot satisfy declared columns %s",
			domain.ErrFeatureAssemblyMismatch, strings.Join(missing, ", "))
	}

	return vector, nil
}

func isOneHotColumn(name string, categorical []string) bool {
	for _, feature := range categorical {
		if strings.HasPrefix(name, feature+"_") && len(name) > len(feature)+1 {
			return true
		}
	}
	return false
}
