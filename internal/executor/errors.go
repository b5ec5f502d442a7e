package executor

import "errors"

// ErrExecutionFailed indicates a migration failed to execute.
var ErrExecutionFailed = errors.New("migration execution failed")

// ErrLedger indicates the ledger could not be read or written around a migration.
var ErrLedger = errors.New("migration ledger unavailable")
