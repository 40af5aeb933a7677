package testexec

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// Parser extracts attributed failures from test output. root is the
// repository root, used to relativize absolute paths.
type Parser func(output, root string) []core.Failure

// ParserFor picks the parser matching a test command.
func ParserFor(command string) Parser {
	if strings.Contains(command, "go test") {
		return ParseGoTest
	}

	return ParsePytest
}

var (
	pytestSummary = regexp.MustCompile(`^(FAILED|ERROR) ([^\s:]+\.py)(?:::\S+)?(?: - (.*))?$`)
	pytestFrame   = regexp.MustCompile(`^(\S+\.py):(\d+):`)
	pytestTBFrame = regexp.MustCompile(`^\s*File "([^"]+\.py)", line (\d+)`)
	goLocation    = regexp.MustCompile(`^\s*(\S+\.go):(\d+)(?::\d+)?: (.*)$`)
	goFailLine    = regexp.MustCompile(`^--- FAIL: (\S+)`)
)

// collector dedupes failures by path, keeping the first message.
type collector struct {
	root  string
	out   []core.Failure
	index map[string]int
}

func newCollector(root string) *collector {
	return &collector{root: root, index: map[string]int{}}
}

func (c *collector) relative(p string) (string, bool) {
	p = strings.TrimPrefix(filepath.ToSlash(p), "./")

	if filepath.IsAbs(p) {
		if c.root == "" {
			return "", false
		}

		root, err := filepath.Abs(c.root)
		if err != nil {
			return "", false
		}

		rel, err := filepath.Rel(root, p)
		if err != nil || strings.HasPrefix(rel, "..") {
			return "", false
		}

		p = filepath.ToSlash(rel)
	}

	if strings.Contains(p, "site-packages/") || strings.HasPrefix(p, "..") {
		return "", false
	}

	return p, true
}

func (c *collector) add(p, message, excerpt string) {
	rel, ok := c.relative(p)
	if !ok {
		return
	}

	if i, seen := c.index[rel]; seen {
		if c.out[i].Message == "test failure" && message != "" && message != "test failure" {
			c.out[i].Message = message
		}

		return
	}

	if message == "" {
		message = "test failure"
	}

	c.index[rel] = len(c.out)
	c.out = append(c.out, core.Failure{FilePath: rel, Message: message, Excerpt: excerpt})
}

// ParsePytest extracts failures from pytest output: every file named by a
// FAILED/ERROR summary line or by a traceback frame inside the repository
// becomes one failure. Error lines ("E   ...") form the excerpt.
func ParsePytest(output, root string) []core.Failure {
	c := newCollector(root)
	lines := strings.Split(output, "\n")

	var errLines []string

	for _, ln := range lines {
		if strings.HasPrefix(ln, "E   ") || strings.HasPrefix(ln, "Traceback") {
			errLines = append(errLines, ln)
		}
	}

	excerpt := strings.Join(errLines, "\n")

	for _, ln := range lines {
		trimmed := strings.TrimRight(ln, "\r")

		if m := pytestFrame.FindStringSubmatch(trimmed); m != nil {
			c.add(m[1], "test failure", excerpt)
			continue
		}

		if m := pytestTBFrame.FindStringSubmatch(trimmed); m != nil {
			c.add(m[1], "test failure", excerpt)
			continue
		}

		if m := pytestSummary.FindStringSubmatch(trimmed); m != nil {
			c.add(m[2], m[3], excerpt)
		}
	}

	if len(c.out) == 0 && excerpt != "" {
		return []core.Failure{{Message: "test failure", Excerpt: excerpt}}
	}

	return c.out
}

// ParseGoTest extracts failures from go test and go build output. Paths are
// reported relative to the package directory by the go tool, so test file
// locations often cannot be attributed and end up unowned.
func ParseGoTest(output, root string) []core.Failure {
	c := newCollector(root)

	var failing []string

	for _, ln := range strings.Split(output, "\n") {
		ln = strings.TrimRight(ln, "\r")

		if m := goFailLine.FindStringSubmatch(ln); m != nil {
			failing = append(failing, m[1])
			continue
		}

		if m := goLocation.FindStringSubmatch(ln); m != nil {
			c.add(m[1], strings.TrimSpace(m[3]), ln)
		}
	}

	if len(c.out) == 0 && len(failing) > 0 {
		return []core.Failure{{Message: "failing tests: " + strings.Join(failing, ", ")}}
	}

	return c.out
}
