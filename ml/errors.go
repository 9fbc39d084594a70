package ml

import "errors"

var (
	// ErrSchemaMismatch reports an input that violates the feature contract:
	// wrong field count, wrong order, or a non-finite value. Always a caller
	// error, never retried.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrInsufficientData reports a training set below the viability
	// threshold or with a single-class label distribution. The previous
	// artifact, if any, is left untouched.
	ErrInsufficientData = errors.New("insufficient training data")
)
