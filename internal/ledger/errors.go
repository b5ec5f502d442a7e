package ledger

import "errors"

// ErrRecordNotFound indicates no ledger row exists for the given filename.
var ErrRecordNotFound = errors.New("migration not found in ledger")

// ErrSchemaSetup indicates the ledger table or one of its columns could not be created.
var ErrSchemaSetup = errors.New("setting up ledger table")
