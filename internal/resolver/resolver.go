package resolver

import (
	"fmt"
	"sort"

	"github.com/aqasim81/depmigrate/internal/migration"
	"github.com/aqasim81/depmigrate/internal/parser"
)

// Plan is the outcome of resolving a migration set.
type Plan struct {
	Migrations []migration.Migration // execution order, Order set 1..n
	Forward    []ForwardReference
}

// Resolver extracts entities from each migration, links dependencies and
// orders the set.
type Resolver struct {
	extractor    parser.Extractor
	allowForward bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithExtractor replaces the default regex extractor.
func WithExtractor(e parser.Extractor) Option {
	return func(r *Resolver) {
		r.extractor = e
	}
}

// WithForwardDependencies lets a migration depend on a later-named file.
func WithForwardDependencies(allow bool) Option {
	return func(r *Resolver) {
		r.allowForward = allow
	}
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{extractor: parser.RegexExtractor{}}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns ms in dependency order. The input slice is not modified.
func (r *Resolver) Resolve(ms []migration.Migration) (*Plan, error) {
	extracted, err := r.extract(ms)
	if err != nil {
		return nil, err
	}

	linked, forward := linkDependencies(extracted, r.allowForward)

	ordered, err := Order(linked)
	if err != nil {
		return nil, err
	}

	return &Plan{Migrations: ordered, Forward: forward}, nil
}

func (r *Resolver) extract(ms []migration.Migration) ([]migration.Migration, error) {
	out := make([]migration.Migration, len(ms))

	for i, m := range ms {
		entities, err := r.extractor.Extract(m.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrExtract, m.Filename, err)
		}

		m.Creates = entities.Creates
		m.References = entities.References
		out[i] = m
	}

	return out, nil
}

// Order topologically sorts migrations whose Dependencies are already set.
// Nodes are visited in filename order so ties resolve deterministically;
// each node is appended after all of its dependencies and numbered by its
// position in the result.
func Order(ms []migration.Migration) ([]migration.Migration, error) {
	byName := make(map[string]migration.Migration, len(ms))
	names := make([]string, 0, len(ms))

	for _, m := range ms {
		byName[m.Filename] = m
		names = append(names, m.Filename)
	}

	sort.Strings(names)

	g := buildGraph(ms)
	visited := make(map[string]bool, len(ms))
	visiting := make(map[string]bool)
	resolved := make([]migration.Migration, 0, len(ms))

	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		if visited[name] {
			return nil
		}

		if visiting[name] {
			return &CycleError{Filename: name, Path: cyclePath(stack, name)}
		}

		visiting[name] = true
		stack = append(stack, name)

		for _, dep := range g[name] {
			if _, ok := byName[dep]; !ok {
				continue
			}

			if err := visit(dep); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		visiting[name] = false
		visited[name] = true

		m := byName[name]
		resolved = append(resolved, m)
		resolved[len(resolved)-1].Order = len(resolved)

		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	return resolved, nil
}

// cyclePath returns the stack suffix starting at name, closed with name.
func cyclePath(stack []string, name string) []string {
	for i, s := range stack {
		if s == name {
			path := append([]string{}, stack[i:]...)

			return append(path, name)
		}
	}

	return []string{name, name}
}
