package resolver

import (
	"sort"

	"github.com/aqasim81/depmigrate/internal/migration"
)

// graph maps a migration filename to the filenames it depends on.
type graph map[string][]string

// ForwardReference is a reference whose only creator sorts after the
// referencing file. Under the default filename constraint no edge is
// recorded for it, so the two files run in lexical order.
type ForwardReference struct {
	Filename  string `json:"filename"`
	Entity    string `json:"entity"`
	CreatedBy string `json:"created_by"`
}

// linkDependencies fills Dependencies on every migration. A migration M
// depends on O when O creates an entity M references and, unless
// allowForward is set, O's filename is not greater than M's.
func linkDependencies(ms []migration.Migration, allowForward bool) ([]migration.Migration, []ForwardReference) {
	creators := make(map[string][]string) // entity -> filenames, in filename order
	for _, m := range ms {
		for _, e := range m.Creates {
			creators[e] = append(creators[e], m.Filename)
		}
	}

	out := make([]migration.Migration, len(ms))
	copy(out, ms)

	var forward []ForwardReference

	for i := range out {
		m := &out[i]
		deps := make(map[string]struct{})

		for _, ref := range m.References {
			var later []string

			for _, owner := range creators[ref] {
				switch {
				case owner == m.Filename:
					// a file never depends on itself
				case allowForward || owner <= m.Filename:
					deps[owner] = struct{}{}
				default:
					later = append(later, owner)
				}
			}

			if len(later) > 0 && !createdAtOrBefore(creators[ref], m.Filename) {
				forward = append(forward, ForwardReference{Filename: m.Filename, Entity: ref, CreatedBy: later[0]})
			}
		}

		m.Dependencies = sortedKeys(deps)
	}

	return out, forward
}

func createdAtOrBefore(owners []string, filename string) bool {
	for _, o := range owners {
		if o <= filename {
			return true
		}
	}

	return false
}

func buildGraph(ms []migration.Migration) graph {
	g := make(graph, len(ms))
	for _, m := range ms {
		g[m.Filename] = m.Dependencies
	}

	return g
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
