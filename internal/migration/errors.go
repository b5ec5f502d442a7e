package migration

import "errors"

// ErrLoad indicates the migrations directory or one of its files could not be read.
var ErrLoad = errors.New("loading migrations")
