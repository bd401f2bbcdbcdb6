package models

import "errors"

// Error taxonomy shared by the scoring, classification and playbook layers.
var (
	// ErrInsufficientData: training skipped, the previous model stays active.
	ErrInsufficientData = errors.New("insufficient training data")
	// ErrModelUnavailable: no model loaded; callers fall back to a neutral result.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrSchemaMismatch: feature schema differs between training and scoring.
	ErrSchemaMismatch = errors.New("feature schema mismatch")
	// ErrInvalidInput: malformed event data, rejected before feature extraction.
	ErrInvalidInput = errors.New("invalid input")
)
