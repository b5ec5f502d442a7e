package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCircularDependency indicates the migration set has no valid execution order.
var ErrCircularDependency = errors.New("circular migration dependency")

// ErrExtract indicates the extractor rejected a migration's SQL.
var ErrExtract = errors.New("extracting entities")

// CycleError names the migration at which a dependency cycle was closed.
// Path runs from that migration through its dependencies back to itself.
type CycleError struct {
	Filename string
	Path     []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s at %s: %s", ErrCircularDependency, e.Filename, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrCircularDependency
}
