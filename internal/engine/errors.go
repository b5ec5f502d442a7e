package engine

import "errors"

// ErrRetriesExhausted indicates every process-level attempt failed with a retryable error.
var ErrRetriesExhausted = errors.New("migration retries exhausted")
