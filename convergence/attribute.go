package convergence

import (
	"sort"
	"strings"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// Fix is one fix task to dispatch: a path, its owner and every failure that
// was routed to it.
type Fix struct {
	Owner    string
	Path     string
	Failures []core.Failure
	// Broadcast is set when every routed failure was unattributable.
	Broadcast bool
}

// Diagnostic merges the routed failures into the single diagnostic carried by
// the fix task.
func (f Fix) Diagnostic() core.Failure {
	var (
		messages []string
		excerpts []string
		seen     = map[string]bool{}
		at       string
	)

	for _, fl := range f.Failures {
		if at == "" {
			at = fl.FilePath
		}

		if fl.Message != "" && !seen[fl.Message] {
			seen[fl.Message] = true
			messages = append(messages, fl.Message)
		}

		if fl.Excerpt != "" {
			excerpts = append(excerpts, fl.Excerpt)
		}
	}

	return core.Failure{
		FilePath: at,
		Message:  strings.Join(messages, "; "),
		Excerpt:  strings.Join(excerpts, "\n\n"),
	}
}

// Attribute maps failures to fix tasks using the path to owner table. A
// failure on an owned path goes to its owner; any other failure (empty path,
// a test file, a path outside the plan) is broadcast to every owned path.
// Failures landing on the same (owner, path) are merged, so the number of
// fixes is the number of completions the round will produce. Fixes are
// returned in first-routed order.
func Attribute(failures []core.Failure, owners map[string]string) []Fix {
	owned := make([]string, 0, len(owners))
	for p := range owners {
		owned = append(owned, p)
	}

	sort.Strings(owned)

	var fixes []Fix

	index := make(map[string]int)

	route := func(path string, f core.Failure, broadcast bool) {
		key := owners[path] + "\x00" + path

		if i, ok := index[key]; ok {
			fixes[i].Failures = append(fixes[i].Failures, f)
			fixes[i].Broadcast = fixes[i].Broadcast && broadcast

			return
		}

		index[key] = len(fixes)
		fixes = append(fixes, Fix{Owner: owners[path], Path: path, Failures: []core.Failure{f}, Broadcast: broadcast})
	}

	for _, f := range failures {
		if _, ok := owners[f.FilePath]; ok {
			route(f.FilePath, f, false)
			continue
		}

		for _, p := range owned {
			route(p, f, true)
		}
	}

	return fixes
}
