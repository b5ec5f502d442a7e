package migration

import "sort"

// Sort returns a new slice of migrations sorted by Filename in lexicographic order.
// The sort is stable to preserve insertion order for equal filenames.
func Sort(migrations []Migration) []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Filename < sorted[j].Filename
	})

	return sorted
}

// Filenames returns the filenames of migrations in slice order.
func Filenames(migrations []Migration) []string {
	names := make([]string, len(migrations))
	for i, m := range migrations {
		names[i] = m.Filename
	}

	return names
}
