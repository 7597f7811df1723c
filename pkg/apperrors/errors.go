package apperrors

import "errors"

var (
	// ErrStructural marks fatal data-shape problems: a required column or
	// table missing from the Raw Store. Aborts the affected family chain.
	ErrStructural = errors.New("structural error")

	// ErrMissingColumn is a structural error for one named column.
	ErrMissingColumn = errors.New("required column missing")

	// ErrRunInProgress is returned when another run holds the pipeline lock.
	ErrRunInProgress = errors.New("pipeline run already in progress")

	// ErrKeyCollision marks a surrogate-key collision, an invariant violation.
	ErrKeyCollision = errors.New("surrogate key collision")

	// ErrDependencyFailed marks a chain skipped because an upstream family
	// chain it gates on did not complete.
	ErrDependencyFailed = errors.New("upstream dependency failed")
)
