package brief

import (
	"strings"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// Extractor derives the signature-only summary of one source file.
type Extractor interface {
	Extract(path, source string) (core.InterfaceBrief, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(path, source string) (core.InterfaceBrief, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(path, source string) (core.InterfaceBrief, error) {
	return f(path, source)
}

// ForLanguage returns the extractor for a plan language. Unknown languages
// get an extractor that yields empty briefs.
func ForLanguage(language string) Extractor {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "python", "py":
		return Python{}
	case "go", "golang":
		return Go{}
	default:
		return ExtractorFunc(func(path, _ string) (core.InterfaceBrief, error) {
			return Empty(path), nil
		})
	}
}

// Empty returns a brief without declarations.
func Empty(path string) core.InterfaceBrief {
	return core.InterfaceBrief{Path: path, Functions: []core.FuncBrief{}, Classes: []core.ClassBrief{}}
}
