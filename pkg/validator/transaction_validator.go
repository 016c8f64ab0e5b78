package validator

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"fraud_scorer/internal/domain"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidAmount          = errors.New("invalid transaction amount")
	ErrInvalidHour            = errors.New("invalid hour of day")
	ErrInvalidIncome          = errors.New("invalid monthly income")
	ErrInvalidAccountAge      = errors.New("invalid account age")
	ErrInvalidCategorical     = errors.New("invalid categorical attribute")
	ErrInvalidSuppliedFeature = errors.New("invalid supplied feature")
)

// ValidationError lists every violated field of a transaction. It matches
// domain.ErrInvalidTransaction and the per-field sentinels with errors.Is.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
	causes []error
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	messages := make([]string, 0, len(keys))
	for _, k := range keys {
		messages = append(messages, e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", domain.ErrInvalidTransaction, strings.Join(messages, "; "))
}

func (e *ValidationError) Unwrap() []error {
	return append([]error{domain.ErrInvalidTransaction}, e.causes...)
}

type TransactionValidator struct {
	validate *validator.Validate
}

func NewTransactionValidator() *TransactionValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	_ = v.RegisterValidation("transaction_type", func(fl validator.FieldLevel) bool {
		return domain.TransactionType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("merchant_category", func(fl validator.FieldLevel) bool {
		return domain.MerchantCategory(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("payment_channel", func(fl validator.FieldLevel) bool {
		return domain.PaymentChannel(fl.Field().String()).Valid()
	})

	return &TransactionValidator{validate: v}
}

// ValidateTransaction checks the primitive field constraints. Values are
// never clamped; any violation is reported.
func (v *TransactionValidator) ValidateTransaction(tx domain.Transaction) error {
	return v.check(tx)
}

// ValidateSuppliedFeatures rejects negative caller-supplied derived values.
func (v *TransactionValidator) ValidateSuppliedFeatures(f domain.SuppliedFeatures) error {
	return v.check(f)
}

func (v *TransactionValidator) check(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidTransaction, err)
	}

	verr := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	seen := make(map[error]struct{})
	for _, fe := range fieldErrs {
		verr.Fields[fe.Field()] = fieldMessage(fe)
		cause := fieldSentinel(fe.StructField())
		if _, ok := seen[cause]; !ok {
			seen[cause] = struct{}{}
			verr.causes = append(verr.causes, cause)
		}
	}
	return verr
}

func fieldSentinel(structField string) error {
	switch structField {
	case "Amount":
		return ErrInvalidAmount
	case "Hour":
		return ErrInvalidHour
	case "MonthlyIncome":
		return ErrInvalidIncome
	case "AccountAgeDays":
		return ErrInvalidAccountAge
	case "AmountAnomalyScore", "AmountToIncomeRatio":
		return ErrInvalidSuppliedFeature
	default:
		return ErrInvalidCategorical
	}
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", field, fe.Param())
	case "transaction_type", "merchant_category", "payment_channel":
		return fmt.Sprintf("%s has unknown value %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
