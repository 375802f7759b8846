package models

import "errors"

// Error taxonomy for the conversion pipeline. Callers branch with
// errors.Is; wrapped causes stay retrievable for diagnostics.
var (
	ErrUnsupportedConversion = errors.New("conversion not supported")
	ErrConverterFailure      = errors.New("converter failed")
	ErrEmptyOutput           = errors.New("converter produced no output")
	ErrStorageFailure        = errors.New("artifact storage failure")
	ErrNotFound              = errors.New("not found")
	ErrNotReady              = errors.New("conversion not completed yet")
	ErrValidation            = errors.New("validation failed")
)
