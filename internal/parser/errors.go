package parser

import "errors"

// ErrParse indicates the SQL could not be parsed by the Postgres grammar.
var ErrParse = errors.New("parsing SQL")

// ErrUnknownExtractor indicates an extractor name with no implementation.
var ErrUnknownExtractor = errors.New("unknown extractor")
