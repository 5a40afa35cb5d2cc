package vectorstore

import "errors"

// Sentinel errors for the vectorstore package.
var (
	// ErrPoolTimeout indicates no connection slot became available within
	// the acquire timeout.
	ErrPoolTimeout = errors.New("connection pool acquire timed out")

	// ErrQueryFailed indicates a similarity query failed after retries.
	ErrQueryFailed = errors.New("similarity query failed")

	// ErrInsertFailed indicates a batch insert failed after retries.
	ErrInsertFailed = errors.New("batch insert failed")

	// ErrMissingEmbedding indicates a symbol was submitted without a vector.
	ErrMissingEmbedding = errors.New("symbol has no embedding")

	// ErrStoreClosed indicates use after Close.
	ErrStoreClosed = errors.New("store is closed")
)
