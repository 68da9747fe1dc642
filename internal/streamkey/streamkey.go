// Package streamkey derives the canonical SRS stream key from a stream's
// display name.
package streamkey

import "strings"

// Derive lowercases name, collapses every run of non [a-z0-9] characters
// into a single underscore, and trims leading/trailing underscores. It is
// pure and idempotent: Derive(Derive(name)) == Derive(name) whenever the
// first result is already canonical.
func Derive(name string) string {
	lower := strings.ToLower(name)

	var b strings.Builder
	b.Grow(len(lower))
	inRun := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			inRun = false
			continue
		}
		if !inRun {
			b.WriteByte('_')
			inRun = true
		}
	}

	return strings.Trim(b.String(), "_")
}
