package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

var funcs = template.FuncMap{
	"default": func(defaultVal any, val any) any {
		if val == nil || val == "" {
			return defaultVal
		}
		return val
	},
	"inc":   func(i int) int { return i + 1 },
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join": func(sep string, items []string) string {
		return strings.Join(items, sep)
	},
	"indent": func(n int, s string) string {
		pad := strings.Repeat(" ", n)
		return pad + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+pad)
	},
	"json": func(v any) (string, error) {
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	},
}

var cache sync.Map // name -> *template.Template

// MustParse compiles a named prompt template once and caches it. It panics
// on a malformed template, so call it from package initialization.
func MustParse(name, text string) *template.Template {
	if t, ok := cache.Load(name); ok {
		return t.(*template.Template)
	}

	t := template.Must(template.New(name).Funcs(funcs).Option("missingkey=error").Parse(text))
	actual, _ := cache.LoadOrStore(name, t)

	return actual.(*template.Template)
}

// Render executes a prompt template against data.
func Render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}

	return buf.String(), nil
}

// RenderTemplate parses and executes text in one step. Text without
// template markers is returned unchanged.
func RenderTemplate(text string, data any) (string, error) {
	if !strings.Contains(text, "{{") { // fast path: no template markers
		return text, nil
	}

	t, err := template.New("prompt").Funcs(funcs).Parse(text)
	if err != nil {
		return "", err
	}

	return Render(t, data)
}
