package planning

import (
	"context"
	"fmt"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/internal/util"
	"github.com/WhitenWhiten/CodeTeam/logging"
	"github.com/WhitenWhiten/CodeTeam/schema"
)

var selectorPrompt = util.MustParse("selector", `You are the CTO. Score each of the design specifications below on feasibility, complexity, cost, testability and consistency, then pick the best one.
Prefer a plan whose language is one of {{join ", " .Languages}}.
Output strict JSON: {"chosen_index": number, "rationale": string}. chosen_index is the zero-based position in the list.

Q:
{{.Question}}

Candidates (JSON array):
{{json .Candidates}}
{{- if .Snippets}}

Reference projects:
{{- range .Snippets}}
{{.Text}}
{{- end}}
{{- end}}
`)

// SelectorOptions configures a Selector.
type SelectorOptions struct {
	// Lenient falls back to the first candidate instead of failing on an
	// unusable answer. The mock provider enables it.
	Lenient bool
	// Languages is the preferred language set shown to the scorer.
	Languages []string
	// Retriever supplies reference snippets; nil disables retrieval.
	Retriever   core.Retriever
	MaxSnippets int
	Logger      logging.Logger
}

// Selector picks one plan out of the viable candidates.
type Selector struct {
	gen  core.Generator
	opts SelectorOptions
}

// NewSelector creates a selector over gen.
func NewSelector(gen core.Generator, optFns ...func(o *SelectorOptions)) *Selector {
	opts := SelectorOptions{
		Languages:   []string{"python", "go"},
		MaxSnippets: 6,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Selector{gen: gen, opts: opts}
}

// Choose scores the candidates and returns the chosen plan with the
// scorer's rationale. An unusable answer fails with core.ErrInvalidSelection
// unless the selector is lenient.
func (s *Selector) Choose(ctx context.Context, question string, candidates []*core.DesignPlan) (*core.DesignPlan, string, error) {
	if len(candidates) == 0 {
		return nil, "", fmt.Errorf("%w: no candidates", core.ErrInvalidSelection)
	}

	var snippets []core.Document

	if s.opts.Retriever != nil {
		snippets = s.opts.Retriever.Query(ctx, question)
		if len(snippets) > s.opts.MaxSnippets {
			snippets = snippets[:s.opts.MaxSnippets]
		}
	}

	prompt, err := util.Render(selectorPrompt, struct {
		Question   string
		Languages  []string
		Candidates []*core.DesignPlan
		Snippets   []core.Document
	}{question, s.opts.Languages, candidates, snippets})
	if err != nil {
		return nil, "", err
	}

	payload, err := s.gen.GenerateStructured(ctx, prompt, core.SchemaSelection)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", err
		}

		return s.fallback(candidates, fmt.Errorf("%w: %w", core.ErrInvalidSelection, err))
	}

	sel, err := schema.DecodeSelection(payload)
	if err != nil {
		return s.fallback(candidates, fmt.Errorf("%w: %w", core.ErrInvalidSelection, err))
	}

	if sel.ChosenIndex < 0 || sel.ChosenIndex >= len(candidates) {
		return s.fallback(candidates, fmt.Errorf("%w: index %d out of range [0, %d)", core.ErrInvalidSelection, sel.ChosenIndex, len(candidates)))
	}

	s.opts.Logger.Info("Plan selected", "index", sel.ChosenIndex, "candidates", len(candidates), "plan_id", candidates[sel.ChosenIndex].ID)

	return candidates[sel.ChosenIndex], sel.Rationale, nil
}

func (s *Selector) fallback(candidates []*core.DesignPlan, err error) (*core.DesignPlan, string, error) {
	if !s.opts.Lenient {
		return nil, "", err
	}

	s.opts.Logger.Warn("Selection unusable, defaulting to first candidate", "error", err.Error())

	return candidates[0], "defaulted to the first candidate: " + err.Error(), nil
}
