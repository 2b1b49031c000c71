package domain

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrUnknownPlan = errors.New("unknown plan")
	// ErrGeneration marks failures of the text-generation provider,
	// timeouts included.
	ErrGeneration = errors.New("generation failure")
	ErrStoreIO    = errors.New("store io failure")
)
