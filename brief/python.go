package brief

import (
	"regexp"
	"strings"

	"github.com/WhitenWhiten/CodeTeam/core"
)

var (
	pyDef   = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+([A-Za-z_]\w*)\s*\(`)
	pyClass = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)\s*[(:]`)
)

// Python extracts module-level functions and classes (with their directly
// nested methods) from Python source by scanning indentation. Bodies are
// skipped; signatures keep their annotations.
type Python struct{}

// Extract implements Extractor.
func (Python) Extract(path, source string) (core.InterfaceBrief, error) {
	b := Empty(path)
	lines := strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n")

	var (
		cls          *core.ClassBrief
		methodIndent = -1
	)

	flush := func() {
		if cls != nil {
			b.Classes = append(b.Classes, *cls)
			cls = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" || strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}

		indent := len(line) - len(strings.TrimLeft(line, " \t"))

		if indent == 0 && cls != nil && !pyClass.MatchString(line) && !pyDef.MatchString(line) {
			flush()
			continue
		}

		if m := pyClass.FindStringSubmatch(line); m != nil {
			flush()

			cls = &core.ClassBrief{Name: m[1], Methods: []core.FuncBrief{}}
			_, next := joinHeader(lines, i)
			i = next
			cls.Doc = docstring(lines, i+1)
			methodIndent = -1

			continue
		}

		m := pyDef.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		header, next := joinHeader(lines, i)
		i = next
		fn := core.FuncBrief{Name: m[2], Signature: header, Doc: docstring(lines, i+1)}

		switch {
		case indent == 0:
			flush()
			b.Functions = append(b.Functions, fn)
		case cls != nil && (methodIndent < 0 || indent == methodIndent):
			methodIndent = indent
			cls.Methods = append(cls.Methods, fn)

			if fn.Name == "__init__" {
				cls.InitSignature = fn.Signature
			}
		}
	}

	flush()

	return b, nil
}

// joinHeader collects a def or class header that may span several lines
// until the parentheses balance and the line ends with a colon. It returns
// the normalized header and the index of its last line.
func joinHeader(lines []string, start int) (string, int) {
	var (
		parts []string
		depth int
	)

	for i := start; i < len(lines); i++ {
		l := strings.TrimSpace(stripComment(lines[i]))
		parts = append(parts, l)

		for _, r := range l {
			switch r {
			case '(', '[', '{':
				depth++
			case ')', ']', '}':
				depth--
			}
		}

		if depth <= 0 && strings.HasSuffix(l, ":") {
			return normalizeHeader(strings.Join(parts, " ")), i
		}
	}

	return normalizeHeader(strings.Join(parts, " ")), len(lines) - 1
}

func normalizeHeader(h string) string {
	h = strings.Join(strings.Fields(h), " ")
	h = strings.ReplaceAll(h, "( ", "(")
	h = strings.ReplaceAll(h, " )", ")")
	h = strings.ReplaceAll(h, ", )", ")")

	return h
}

func stripComment(l string) string {
	if i := strings.Index(l, " #"); i >= 0 && !strings.ContainsAny(l[:i], `"'`) {
		return l[:i]
	}

	return l
}

// docstring returns the first paragraph of the docstring starting at or
// after line index from, if the first statement is one.
func docstring(lines []string, from int) string {
	for i := from; i < len(lines); i++ {
		l := strings.TrimSpace(lines[i])
		if l == "" {
			continue
		}

		for _, q := range []string{`"""`, `'''`} {
			if !strings.HasPrefix(l, q) {
				continue
			}

			body := strings.TrimPrefix(l, q)
			if end := strings.Index(body, q); end >= 0 {
				return strings.TrimSpace(body[:end])
			}

			var sb strings.Builder
			sb.WriteString(body)

			for j := i + 1; j < len(lines); j++ {
				if end := strings.Index(lines[j], q); end >= 0 {
					sb.WriteString("\n" + lines[j][:end])
					break
				}

				sb.WriteString("\n" + lines[j])
			}

			return firstParagraph(sb.String())
		}

		return ""
	}

	return ""
}

func firstParagraph(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "\n\n"); i >= 0 {
		s = s[:i]
	}

	return strings.Join(strings.Fields(s), " ")
}
