package repository

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// lineStats counts the lines added and removed between two file bodies.
func lineStats(before, after string) (added, removed int) {
	if before == after {
		return 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	for _, d := range diffs {
		n := countLines(d.Text)

		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		}
	}

	return added, removed
}

func countLines(s string) int {
	if s == "" {
		return 0
	}

	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}

	return n
}
