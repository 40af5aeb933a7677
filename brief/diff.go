package brief

import (
	"slices"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// Diff fills the added, modified and removed lists of rec by comparing the
// previous brief of a file with the new one. A nil prev means every
// declaration is new.
func Diff(prev *core.InterfaceBrief, next core.InterfaceBrief, rec *core.AuditRecord) {
	var (
		oldFns  []core.FuncBrief
		oldClss []core.ClassBrief
	)

	if prev != nil {
		oldFns, oldClss = prev.Functions, prev.Classes
	}

	rec.FunctionsAdded, rec.FunctionsModified, rec.FunctionsRemoved = diffFuncs(oldFns, next.Functions)
	rec.ClassesAdded, rec.ClassesModified, rec.ClassesRemoved = diffClasses(oldClss, next.Classes)
}

func diffFuncs(prev, next []core.FuncBrief) (added, modified, removed []core.FuncBrief) {
	added, modified, removed = []core.FuncBrief{}, []core.FuncBrief{}, []core.FuncBrief{}

	old := make(map[string]core.FuncBrief, len(prev))
	for _, f := range prev {
		old[f.Name] = f
	}

	seen := make(map[string]bool, len(next))

	for _, f := range next {
		seen[f.Name] = true

		o, ok := old[f.Name]
		switch {
		case !ok:
			added = append(added, f)
		case o.Signature != f.Signature:
			modified = append(modified, f)
		}
	}

	for _, f := range prev {
		if !seen[f.Name] {
			removed = append(removed, f)
		}
	}

	return added, modified, removed
}

func diffClasses(prev, next []core.ClassBrief) (added, modified, removed []core.ClassBrief) {
	added, modified, removed = []core.ClassBrief{}, []core.ClassBrief{}, []core.ClassBrief{}

	old := make(map[string]core.ClassBrief, len(prev))
	for _, c := range prev {
		old[c.Name] = c
	}

	seen := make(map[string]bool, len(next))

	for _, c := range next {
		seen[c.Name] = true

		o, ok := old[c.Name]
		switch {
		case !ok:
			added = append(added, c)
		case o.InitSignature != c.InitSignature || !sameMethods(o.Methods, c.Methods):
			modified = append(modified, c)
		}
	}

	for _, c := range prev {
		if !seen[c.Name] {
			removed = append(removed, c)
		}
	}

	return added, modified, removed
}

func sameMethods(a, b []core.FuncBrief) bool {
	return slices.EqualFunc(a, b, func(x, y core.FuncBrief) bool {
		return x.Name == y.Name && x.Signature == y.Signature
	})
}
