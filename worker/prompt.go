package worker

import (
	"unicode/utf8"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/generation"
	"github.com/WhitenWhiten/CodeTeam/internal/util"
)

var developerPrompt = util.MustParse("developer", generation.FilePathHeader+` {{.Spec.Path}}
You are a senior developer implementing a single file.
Constraints:
- Write only the target file {{.Spec.Path}}; do not create any other file.
- Other files are known only through the briefs below (signatures only); do not ask for their source.
- Implement every interface declared below; private helpers are allowed.
- The code must run under the project's test framework ({{.Language}}); include type annotations and docstrings.
- Output only the complete source of this file, without explanations.

Responsibilities:
{{.Spec.Responsibilities}}

Interfaces:
{{- range .Spec.Interfaces.Functions}}
- function: {{.Signature}}{{if .Doc}}  # {{.Doc}}{{end}}
{{- end}}
{{- range .Spec.Interfaces.Classes}}
- class: {{.Name}}
{{- if .InitSignature}}
  init: {{.InitSignature}}
{{- end}}
{{- range .Methods}}
  method: {{.Signature}}{{if .Doc}}  # {{.Doc}}{{end}}
{{- end}}
{{- end}}
{{- if not (or .Spec.Interfaces.Functions .Spec.Interfaces.Classes)}}
(none)
{{- end}}

Briefs of other files (read-only):
{{- range .Briefs}}
* {{.Path}}
{{- range .Functions}}
  - {{.Signature}}
{{- end}}
{{- range .Classes}}
  - class {{.Name}}
{{- range .Methods}}
    - {{.Signature}}
{{- end}}
{{- end}}
{{- else}}
(none)
{{- end}}
{{- if .Diagnostic}}

The current version of this file fails the tests. Fix it.
Failure: {{.Diagnostic.Message}}
{{- if .Diagnostic.FilePath}}
Reported at: {{.Diagnostic.FilePath}}
{{- end}}
{{- if .Excerpt}}
Excerpt:
{{.Excerpt}}
{{- end}}

Current source:
{{.Current}}
{{- end}}
`)

type promptData struct {
	Spec       core.FileSpec
	Language   string
	Briefs     []core.InterfaceBrief
	Diagnostic *core.Failure
	Excerpt    string
	Current    string
}

// truncate bounds s to limit bytes, keeping the tail where test runners put
// the assertion.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}

	start := len(s) - limit
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}

	return "...(truncated)\n" + s[start:]
}

func buildPrompt(data promptData) (string, error) {
	return util.Render(developerPrompt, data)
}
