package domain

import "errors"

var (
	// ErrInvalidTransaction is returned before feature derivation when a
	// primitive field violates its constraint.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrFeatureAssemblyMismatch is returned when the classifier's declared
	// columns cannot be satisfied by the assembled feature set.
	ErrFeatureAssemblyMismatch = errors.New("feature assembly mismatch")

	// ErrScoringUnavailable is returned when the classifier or encoder is
	// not loaded or failing.
	ErrScoringUnavailable = errors.New("scoring unavailable")
)
