package memory

import "errors"

// Sentinel errors for the memory package.
var (
	// ErrSampling indicates the system memory reading failed.
	ErrSampling = errors.New("memory sampling failed")

	// ErrInvalidThresholds indicates a misconfigured threshold set.
	ErrInvalidThresholds = errors.New("invalid memory thresholds")
)
