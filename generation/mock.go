package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// FilePathHeader prefixes the first line of every implementation prompt.
const FilePathHeader = "# FILE_PATH:"

// FilePathFromPrompt returns the path named by the first prompt line, or ""
// when the prompt has no FILE_PATH header.
func FilePathFromPrompt(prompt string) string {
	first, _, _ := strings.Cut(prompt, "\n")
	first = strings.TrimSpace(first)

	if !strings.HasPrefix(first, FilePathHeader) {
		return ""
	}

	return strings.TrimSpace(strings.TrimPrefix(first, FilePathHeader))
}

const mockPlan = `{
  "id": "plan-mock-001",
  "problem": "Generate a small, testable greeting program",
  "tech_stack": {"language": "python", "frameworks": [], "runtime": "python3.10", "test_framework": "pytest"},
  "repo_structure": [
    {"path": "main.py", "type": "file"},
    {"path": "app", "type": "dir", "children": [{"path": "utils.py", "type": "file"}]},
    {"path": "tests", "type": "dir", "children": [
      {"path": "test_main.py", "type": "file"},
      {"path": "test_utils.py", "type": "file"}
    ]}
  ],
  "file_specs": [
    {
      "path": "main.py",
      "responsibilities": "Entry point; provides main(name: str = 'World') -> str delegating to greet in app/utils.py",
      "interfaces": {"functions": [{"name": "main", "signature": "def main(name: str = 'World') -> str:", "doc": "Return greeting"}], "classes": []},
      "dependencies": ["app/utils.py"]
    },
    {
      "path": "app/utils.py",
      "responsibilities": "Shared helpers; provides greet(name: str) -> str",
      "interfaces": {"functions": [{"name": "greet", "signature": "def greet(name: str) -> str:", "doc": "Return greeting text"}], "classes": []},
      "dependencies": []
    }
  ],
  "dev_plan": [
    {"developer_id": "Dev-1", "file_paths": ["main.py"]},
    {"developer_id": "Dev-2", "file_paths": ["app/utils.py"]}
  ],
  "constraints": {},
  "notes": "tests/ is written by QA; the test file paths are fixed in repo_structure"
}`

var mockCode = map[string]string{
	"app/utils.py": `"""
Utility functions.
"""


def greet(name: str) -> str:
    """Return a greeting message."""
    return f"Hello, {name}!"
`,
	"main.py": `"""
Application entry point.
"""
from app.utils import greet


def main(name: str = "World") -> str:
    """Return greeting by delegating to utils.greet."""
    message = greet(name)
    return message


if __name__ == "__main__":
    print(main())
`,
}

var mockTests = map[string]string{
	"tests/test_utils.py": `from app.utils import greet


def test_greet_basic():
    assert greet("Alice") == "Hello, Alice!"
`,
	"tests/test_main.py": `from main import main


def test_main_returns_message():
    assert main("Bob") == "Hello, Bob!"
`,
}

// Mock is a deterministic core.Generator producing the greeting project:
// a two-file plan, the first-candidate selection, per-file source keyed by
// the FILE_PATH header, and a matching test suite.
type Mock struct {
	mu    sync.Mutex
	calls map[string]int
}

var _ core.Generator = (*Mock)(nil)

// NewMock creates a Mock generator.
func NewMock() *Mock {
	return &Mock{calls: make(map[string]int)}
}

func (m *Mock) count(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[kind]++
}

// Calls reports how many calls of a kind (text, files or a schema kind)
// were served.
func (m *Mock) Calls(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.calls[kind]
}

// GenerateText implements core.Generator.
func (m *Mock) GenerateText(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.count("text")

	if code, ok := mockCode[FilePathFromPrompt(prompt)]; ok {
		return code, nil
	}

	return "# unknown file\n", nil
}

// GenerateStructured implements core.Generator.
func (m *Mock) GenerateStructured(ctx context.Context, _ string, kind core.SchemaKind) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.count(string(kind))

	switch kind {
	case core.SchemaDesignPlan:
		var plan map[string]any
		if err := json.Unmarshal([]byte(mockPlan), &plan); err != nil {
			return nil, err
		}

		return plan, nil
	case core.SchemaSelection:
		return map[string]any{"chosen_index": float64(0), "rationale": "Mock chooses the first plan"}, nil
	case core.SchemaFileMap:
		out := make(map[string]any, len(mockTests))
		for p, c := range mockTests {
			out[p] = c
		}

		return out, nil
	default:
		return nil, fmt.Errorf("%w: mock has no %s output", core.ErrStructuredGenerationFailed, kind)
	}
}

// GenerateFiles implements core.Generator.
func (m *Mock) GenerateFiles(ctx context.Context, _ string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.count("files")

	out := make(map[string]string, len(mockTests))
	for p, c := range mockTests {
		out[p] = c
	}

	return out, nil
}
