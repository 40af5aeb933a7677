package core

import (
	"path"
	"sort"
	"strings"
)

// NodeType distinguishes files from directories in a RepoNode tree.
type NodeType string

const (
	// NodeFile is a leaf that materializes as an (initially empty) file.
	NodeFile NodeType = "file"
	// NodeDir is a directory whose children are resolved relative to it.
	NodeDir NodeType = "dir"
)

// RepoNode is one entry of the declared repository tree. Child paths are
// relative to their parent directory.
type RepoNode struct {
	Path     string     `json:"path"`
	Type     NodeType   `json:"type"`
	Children []RepoNode `json:"children,omitempty"`
}

// FlattenTree returns the cleaned slash-separated leaf file paths of a tree in
// declaration order. Directories contribute only through their children.
func FlattenTree(nodes []RepoNode) []string {
	var out []string

	var walk func(prefix string, ns []RepoNode)
	walk = func(prefix string, ns []RepoNode) {
		for _, n := range ns {
			p := joinNode(prefix, n.Path)

			switch n.Type {
			case NodeDir:
				walk(p, n.Children)
			default:
				out = append(out, p)
			}
		}
	}

	walk("", nodes)

	return out
}

// FlattenDirs returns every directory path declared by a tree.
func FlattenDirs(nodes []RepoNode) []string {
	var out []string

	var walk func(prefix string, ns []RepoNode)
	walk = func(prefix string, ns []RepoNode) {
		for _, n := range ns {
			if n.Type != NodeDir {
				continue
			}

			p := joinNode(prefix, n.Path)

			out = append(out, p)
			walk(p, n.Children)
		}
	}

	walk("", nodes)

	return out
}

// joinNode resolves a node path against its parent directory in cleaned
// form, so "./a.py" and "a.py" name the same entry.
func joinNode(prefix, p string) string {
	return path.Clean(path.Join(prefix, strings.Trim(p, "/")))
}

// TechProfile declares the technology a plan commits to.
type TechProfile struct {
	Language      string   `json:"language"`
	Frameworks    []string `json:"frameworks"`
	Runtime       string   `json:"runtime"`
	TestFramework string   `json:"test_framework"`
}

// FuncBrief is a function signature summary.
type FuncBrief struct {
	Name      string `json:"name"`
	Signature string `json:"signature"`
	Doc       string `json:"doc,omitempty"`
}

// ClassBrief is a type or class signature summary including its methods.
type ClassBrief struct {
	Name          string      `json:"name"`
	InitSignature string      `json:"init_signature,omitempty"`
	Methods       []FuncBrief `json:"methods,omitempty"`
	Doc           string      `json:"doc,omitempty"`
}

// Interfaces is the declared public surface of a file.
type Interfaces struct {
	Functions []FuncBrief  `json:"functions"`
	Classes   []ClassBrief `json:"classes"`
}

// FileSpec describes what a single file must implement.
type FileSpec struct {
	Path             string     `json:"path"`
	Responsibilities string     `json:"responsibilities"`
	Interfaces       Interfaces `json:"interfaces"`
	Dependencies     []string   `json:"dependencies"`
}

// DevAssignment binds a set of files to one worker.
type DevAssignment struct {
	DeveloperID string   `json:"developer_id"`
	FilePaths   []string `json:"file_paths"`
}

// DesignPlan is the structured description of one generation run: the tree,
// the per-file specs and the developer assignment.
type DesignPlan struct {
	ID            string          `json:"id"`
	Problem       string          `json:"problem"`
	TechStack     TechProfile     `json:"tech_stack"`
	RepoStructure []RepoNode      `json:"repo_structure"`
	FileSpecs     []FileSpec      `json:"file_specs"`
	DevPlan       []DevAssignment `json:"dev_plan"`
	Constraints   map[string]any  `json:"constraints,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

// AllowedPaths returns the flattened file tree, the global allowed-path set.
func (p *DesignPlan) AllowedPaths() []string {
	return FlattenTree(p.RepoStructure)
}

// TestPaths returns the declared files under tests/.
func (p *DesignPlan) TestPaths() []string {
	var out []string

	for _, f := range p.AllowedPaths() {
		if strings.HasPrefix(f, TestDir+"/") {
			out = append(out, f)
		}
	}

	return out
}

// Owners maps every assigned path to its developer id.
func (p *DesignPlan) Owners() map[string]string {
	owners := make(map[string]string)

	for _, a := range p.DevPlan {
		for _, f := range a.FilePaths {
			owners[f] = a.DeveloperID
		}
	}

	return owners
}

// Developers returns the developer ids in plan order.
func (p *DesignPlan) Developers() []string {
	ids := make([]string, 0, len(p.DevPlan))
	for _, a := range p.DevPlan {
		ids = append(ids, a.DeveloperID)
	}

	return ids
}

// Spec returns the FileSpec for a path.
func (p *DesignPlan) Spec(filePath string) (FileSpec, bool) {
	for _, fs := range p.FileSpecs {
		if fs.Path == filePath {
			return fs, true
		}
	}

	return FileSpec{}, false
}

// SpecPaths returns the FileSpec paths sorted.
func (p *DesignPlan) SpecPaths() []string {
	out := make([]string, 0, len(p.FileSpecs))
	for _, fs := range p.FileSpecs {
		out = append(out, fs.Path)
	}

	sort.Strings(out)

	return out
}

// TestDir is the directory reserved for the QA role.
const TestDir = "tests"

// QAOwner is the identity the QA role writes test files under.
const QAOwner = "QA"

// InterfaceBrief is the signature-only summary of a generated file.
type InterfaceBrief struct {
	Path      string       `json:"path"`
	Functions []FuncBrief  `json:"functions"`
	Classes   []ClassBrief `json:"classes"`
}
