// Package memory holds the in-process assessment history used when no
// external store is configured.
package memory

import (
	"fraud_scorer/internal/repository"
)

var (
	_ repository.AssessmentRepository = (*AssessmentRepository)(nil)
)
