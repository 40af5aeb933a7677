package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("plain text", nil)
	require.NoError(t, err)
	assert.Equal(t, "plain text", out)

	out, err = RenderTemplate(`{{upper .Name}} <{{join ", " .Items}}> {{default "none" .Missing}}`, map[string]any{
		"Name":    "dev",
		"Items":   []string{"a", "b"},
		"Missing": "",
	})
	require.NoError(t, err)
	assert.Equal(t, "DEV <a, b> none", out)

	_, err = RenderTemplate("{{ .Broken", nil)
	assert.Error(t, err)
}

func TestMustParseAndRender(t *testing.T) {
	tpl := MustParse("util-test", "{{indent 2 .Body}}\n{{json .Data}}")
	assert.Same(t, tpl, MustParse("util-test", "ignored"))

	out, err := Render(tpl, struct {
		Body string
		Data map[string]int
	}{Body: "a\nb\n", Data: map[string]int{"x": 1}})
	require.NoError(t, err)
	assert.Equal(t, "  a\n  b\n{\n  \"x\": 1\n}", out)
}

func TestRender_MissingKey(t *testing.T) {
	tpl := MustParse("util-missing", "{{.Nope}}")

	_, err := Render(tpl, map[string]any{})
	assert.Error(t, err)
}
