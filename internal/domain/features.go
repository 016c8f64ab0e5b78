package domain

// DerivedFeatures are the secondary signals the scorer consumes. Every field
// is populated before a strategy sees it.
type DerivedFeatures struct {
	AmountAnomalyScore  float64 `json:"amount_anomaly_score"`
	IsOddHour           bool    `json:"is_odd_hour"`
	IsForeignLocation   bool    `json:"is_foreign_location"`
	IsRiskyCategory     bool    `json:"is_risky_category"`
	AmountToIncomeRatio float64 `json:"amount_to_income_ratio"`
}

// SuppliedFeatures carries derived features a caller already computed.
// A nil field means "derive it from the transaction".
type SuppliedFeatures struct {
	AmountAnomalyScore  *float64 `json:"amount_anomaly_score,omitempty" validate:"omitempty,gte=0"`
	IsOddHour           *bool    `json:"is_odd_hour,omitempty"`
	IsForeignLocation   *bool    `json:"is_foreign_location,omitempty"`
	IsRiskyCategory     *bool    `json:"is_risky_category,omitempty"`
	AmountToIncomeRatio *float64 `json:"amount_to_income_ratio,omitempty" validate:"omitempty,gte=0"`
}
