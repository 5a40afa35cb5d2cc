package embed

import "errors"

// Sentinel errors for the embed package.
var (
	// ErrEmbeddingFailed indicates the backing model call failed.
	ErrEmbeddingFailed = errors.New("embedding request failed")

	// ErrDimensionMismatch indicates the model returned vectors of an
	// unexpected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
