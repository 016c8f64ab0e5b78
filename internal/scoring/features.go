package scoring

import (
	"math"

	"fraud_scorer/internal/domain"
)

const (
	// expectedAmountShare is the fraction of monthly income treated as a
	// typical transaction amount.
	expectedAmountShare = 0.1

	oddHourStart = 1
	oddHourEnd   = 5
)

var riskyCategories = map[domain.MerchantCategory]struct{}{
	domain.CategoryElectronics: {},
	domain.CategoryTravel:      {},
	domain.CategoryRealEstate:  {},
}

// DeriveFeatures fills every derived feature the caller did not supply.
// Supplied values are kept as-is, so deriving twice yields the same result.
func DeriveFeatures(tx domain.Transaction, supplied domain.SuppliedFeatures) domain.DerivedFeatures {
	var f domain.DerivedFeatures

	if supplied.AmountAnomalyScore != nil {
		f.AmountAnomalyScore = *supplied.AmountAnomalyScore
	} else {
		f.AmountAnomalyScore = amountAnomalyScore(tx.Amount, tx.MonthlyIncome)
	}

	if supplied.IsOddHour != nil {
		f.IsOddHour = *supplied.IsOddHour
	} else {
		f.IsOddHour = isOddHour(tx.Hour)
	}

	if supplied.IsForeignLocation != nil {
		f.IsForeignLocation = *supplied.IsForeignLocation
	}

	if supplied.IsRiskyCategory != nil {
		f.IsRiskyCategory = *supplied.IsRiskyCategory
	} else {
		f.IsRiskyCategory = isRiskyCategory(tx.MerchantCategory)
	}

	if supplied.AmountToIncomeRatio != nil {
		f.AmountToIncomeRatio = *supplied.AmountToIncomeRatio
	} else {
		f.AmountToIncomeRatio = tx.Amount / math.Max(tx.MonthlyIncome, 1)
	}

	return f
}

// Supplied converts fully derived features back into the supplied form, so a
// second DeriveFeatures call keeps every value.
func Supplied(f domain.DerivedFeatures) domain.SuppliedFeatures {
	return domain.SuppliedFeatures{
		AmountAnomalyScore:  &f.AmountAnomalyScore,
		IsOddHour:           &f.IsOddHour,
		IsForeignLocation:   &f.IsForeignLocation,
		IsRiskyCategory:     &f.IsRiskyCategory,
		AmountToIncomeRatio: &f.AmountToIncomeRatio,
	}
}

func amountAnomalyScore(amount, monthlyIncome float64) float64 {
	expected := monthlyIncome * expectedAmountShare
	return math.Abs(amount-expected) / math.Max(expected, 1)
}

func isOddHour(hour int) bool {
	return hour >= oddHourStart && hour <= oddHourEnd
}

func isLateHour(hour int) bool {
	return hour == 22 || hour == 23 || hour == 0
}

func isRiskyCategory(c domain.MerchantCategory) bool {
	_, ok := riskyCategories[c]
	return ok
}
