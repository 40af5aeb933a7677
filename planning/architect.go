package planning

import (
	"context"
	"fmt"
	"strings"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/internal/util"
	"github.com/WhitenWhiten/CodeTeam/logging"
	"github.com/WhitenWhiten/CodeTeam/schema"
)

// Proposer produces one candidate design plan per call.
type Proposer interface {
	Name() string
	Propose(ctx context.Context, question string) (*core.DesignPlan, error)
}

var architectPrompt = util.MustParse("architect", `You are a senior software architect. Produce a software design specification as strict JSON matching the design plan schema.
Requirements:
- tech_stack: language must be one of {{join ", " .Languages}}{{if .TestFramework}}; test_framework must be {{.TestFramework}}{{end}}.
- repo_structure: list every file and directory, including the test files under {{.TestDir}}/.
- file_specs: one entry per source file with its responsibilities, interface signatures (functions and classes) and the paths of the files it depends on. Do not write specs for files under {{.TestDir}}/.
- dev_plan: assign every source file to exactly one developer (for example Dev-1, Dev-2). Never assign files under {{.TestDir}}/.
- Consistency: every file_specs path must appear in repo_structure and dev_plan must cover every file_specs path exactly once.
- Output a single JSON object and nothing else.

Q:
{{.Question}}
{{- if .Snippets}}

Reference projects:
{{- range $i, $d := .Snippets}}
[{{inc $i}}] {{$d.Source}}
{{$d.Text}}
{{- end}}
{{- end}}
`)

// ArchitectOptions configures an Architect.
type ArchitectOptions struct {
	// Languages lists the languages the plan may use.
	Languages []string
	// TestFramework, when set, is required of the plan.
	TestFramework string
	// Retriever supplies reference snippets; nil disables retrieval.
	Retriever core.Retriever
	// MaxSnippets bounds the number of snippets in the prompt.
	MaxSnippets int
	Logger      logging.Logger
}

// Architect proposes a plan through one structured generation call.
type Architect struct {
	name string
	gen  core.Generator
	opts ArchitectOptions
}

var _ Proposer = (*Architect)(nil)

// NewArchitect creates an architect proposer.
func NewArchitect(name string, gen core.Generator, optFns ...func(o *ArchitectOptions)) *Architect {
	opts := ArchitectOptions{
		Languages:   []string{"python", "go"},
		MaxSnippets: 8,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Architect{name: name, gen: gen, opts: opts}
}

// Name returns the architect name.
func (a *Architect) Name() string { return a.name }

// Prompt renders the proposal prompt for question.
func (a *Architect) Prompt(ctx context.Context, question string) (string, error) {
	var snippets []core.Document

	if a.opts.Retriever != nil {
		snippets = a.opts.Retriever.Query(ctx, question)
		if len(snippets) > a.opts.MaxSnippets {
			snippets = snippets[:a.opts.MaxSnippets]
		}
	}

	return util.Render(architectPrompt, struct {
		Question      string
		Languages     []string
		TestFramework string
		TestDir       string
		Snippets      []core.Document
	}{
		Question:      strings.TrimSpace(question),
		Languages:     a.opts.Languages,
		TestFramework: a.opts.TestFramework,
		TestDir:       core.TestDir,
		Snippets:      snippets,
	})
}

// Propose implements Proposer.
func (a *Architect) Propose(ctx context.Context, question string) (*core.DesignPlan, error) {
	prompt, err := a.Prompt(ctx, question)
	if err != nil {
		return nil, err
	}

	payload, err := a.gen.GenerateStructured(ctx, prompt, core.SchemaDesignPlan)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}

	plan, err := schema.DecodePlan(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}

	return plan, nil
}
