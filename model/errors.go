package model

import "errors"

var (
	ErrValidation        = errors.New("validation failed")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrProviderFailure   = errors.New("provider failure")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEvaluation        = errors.New("evaluation failed")
)
