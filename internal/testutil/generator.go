package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/generation"
)

// ScriptedGenerator is a core.Generator whose text output is scripted per
// file path (taken from the FILE_PATH prompt header). Each path serves its
// outputs in order and repeats the last one.
type ScriptedGenerator struct {
	mu         sync.Mutex
	code       map[string][]string
	errs       map[string]error
	structured map[core.SchemaKind][]map[string]any
	files      map[string]string
	filesErr   error
	prompts    []string
	// Hook, when set, runs before every text generation.
	Hook func(path string)
}

var _ core.Generator = (*ScriptedGenerator)(nil)

// NewScriptedGenerator creates an empty generator.
func NewScriptedGenerator() *ScriptedGenerator {
	return &ScriptedGenerator{
		code:       map[string][]string{},
		errs:       map[string]error{},
		structured: map[core.SchemaKind][]map[string]any{},
		files:      map[string]string{},
	}
}

// Code scripts the successive outputs for path (chainable).
func (g *ScriptedGenerator) Code(path string, outputs ...string) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.code[path] = append(g.code[path], outputs...)

	return g
}

// Fail makes text generation for path fail with err (chainable).
func (g *ScriptedGenerator) Fail(path string, err error) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.errs[path] = err

	return g
}

// Structured scripts the successive outputs for a schema kind (chainable).
func (g *ScriptedGenerator) Structured(kind core.SchemaKind, outputs ...map[string]any) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.structured[kind] = append(g.structured[kind], outputs...)

	return g
}

// Files scripts the file map output (chainable).
func (g *ScriptedGenerator) Files(files map[string]string) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()

	for p, c := range files {
		g.files[p] = c
	}

	return g
}

// FailFiles makes multi-file generation fail with err (chainable).
func (g *ScriptedGenerator) FailFiles(err error) *ScriptedGenerator {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.filesErr = err

	return g
}

// Prompts returns every prompt received, in order.
func (g *ScriptedGenerator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	return append([]string(nil), g.prompts...)
}

// PromptsFor returns the text prompts received for path.
func (g *ScriptedGenerator) PromptsFor(path string) []string {
	var out []string

	for _, p := range g.Prompts() {
		if generation.FilePathFromPrompt(p) == path {
			out = append(out, p)
		}
	}

	return out
}

// GenerateText implements core.Generator.
func (g *ScriptedGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := generation.FilePathFromPrompt(prompt)

	if g.Hook != nil {
		g.Hook(path)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, prompt)

	if err, ok := g.errs[path]; ok {
		return "", err
	}

	outs := g.code[path]
	if len(outs) == 0 {
		return "", fmt.Errorf("no scripted code for %q", path)
	}

	out := outs[0]
	if len(outs) > 1 {
		g.code[path] = outs[1:]
	}

	return out, nil
}

// GenerateStructured implements core.Generator.
func (g *ScriptedGenerator) GenerateStructured(ctx context.Context, prompt string, kind core.SchemaKind) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, prompt)

	outs := g.structured[kind]
	if len(outs) == 0 {
		return nil, fmt.Errorf("%w: nothing scripted for %s", core.ErrStructuredGenerationFailed, kind)
	}

	out := outs[0]
	if len(outs) > 1 {
		g.structured[kind] = outs[1:]
	}

	return out, nil
}

// GenerateFiles implements core.Generator.
func (g *ScriptedGenerator) GenerateFiles(ctx context.Context, prompt string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, prompt)

	if g.filesErr != nil {
		return nil, g.filesErr
	}

	out := make(map[string]string, len(g.files))
	for p, c := range g.files {
		out[p] = c
	}

	return out, nil
}
