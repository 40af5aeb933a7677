package testutil

import (
	"path"
	"strings"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// PlanBuilder helps construct design plans with fluent chaining for tests.
// Example:
//
//	plan := NewPlanBuilder("plan-1").File("main.py", "Dev-1", "app/utils.py").File("app/utils.py", "Dev-2").Test("tests/test_main.py").Build()
type PlanBuilder struct {
	id       string
	language string
	files    []string
	specs    []core.FileSpec
	devs     []string
	assigned map[string][]string
}

// NewPlanBuilder creates a builder for a python plan with the given id.
func NewPlanBuilder(id string) *PlanBuilder {
	return &PlanBuilder{id: id, language: "python", assigned: map[string][]string{}}
}

// Language overrides the declared language (chainable).
func (b *PlanBuilder) Language(lang string) *PlanBuilder {
	b.language = lang
	return b
}

// File declares a source file with a FileSpec owned by dev (chainable).
func (b *PlanBuilder) File(filePath, dev string, deps ...string) *PlanBuilder {
	if deps == nil {
		deps = []string{}
	}

	name := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))

	b.files = append(b.files, filePath)
	b.specs = append(b.specs, core.FileSpec{
		Path:             filePath,
		Responsibilities: "implements " + name,
		Interfaces: core.Interfaces{
			Functions: []core.FuncBrief{{Name: name, Signature: "def " + name + "() -> str:", Doc: ""}},
			Classes:   []core.ClassBrief{},
		},
		Dependencies: deps,
	})

	if _, ok := b.assigned[dev]; !ok {
		b.devs = append(b.devs, dev)
	}

	b.assigned[dev] = append(b.assigned[dev], filePath)

	return b
}

// Test declares a file in the tree without a FileSpec (chainable).
func (b *PlanBuilder) Test(filePath string) *PlanBuilder {
	b.files = append(b.files, filePath)
	return b
}

// Build returns the plan with a tree derived from the declared files.
func (b *PlanBuilder) Build() *core.DesignPlan {
	plan := &core.DesignPlan{
		ID:      b.id,
		Problem: "test problem",
		TechStack: core.TechProfile{
			Language:      b.language,
			Frameworks:    []string{},
			Runtime:       b.language,
			TestFramework: "pytest",
		},
		RepoStructure: BuildTree(b.files...),
		FileSpecs:     append([]core.FileSpec(nil), b.specs...),
	}

	for _, dev := range b.devs {
		plan.DevPlan = append(plan.DevPlan, core.DevAssignment{DeveloperID: dev, FilePaths: append([]string(nil), b.assigned[dev]...)})
	}

	return plan
}

// Payload returns the plan in the generic map form produced by generators.
func (b *PlanBuilder) Payload() map[string]any {
	payload, err := core.ToPayload(b.Build())
	if err != nil {
		panic(err)
	}

	return payload
}

// BuildTree nests slash-separated file paths into RepoNodes preserving the
// order of first appearance.
func BuildTree(files ...string) []core.RepoNode {
	var root []core.RepoNode

	for _, f := range files {
		root = insert(root, strings.Split(f, "/"))
	}

	return root
}

func insert(nodes []core.RepoNode, parts []string) []core.RepoNode {
	if len(parts) == 1 {
		return append(nodes, core.RepoNode{Path: parts[0], Type: core.NodeFile})
	}

	for i := range nodes {
		if nodes[i].Type == core.NodeDir && nodes[i].Path == parts[0] {
			nodes[i].Children = insert(nodes[i].Children, parts[1:])
			return nodes
		}
	}

	return append(nodes, core.RepoNode{Path: parts[0], Type: core.NodeDir, Children: insert(nil, parts[1:])})
}

// GreetingPlan returns the two-file plan used across package tests:
// main.py (Dev-1) depends on app/utils.py (Dev-2), plus two QA test files.
func GreetingPlan() *core.DesignPlan {
	return GreetingPlanBuilder().Build()
}

// GreetingPlanBuilder returns the builder behind GreetingPlan.
func GreetingPlanBuilder() *PlanBuilder {
	return NewPlanBuilder("plan-greeting").
		File("main.py", "Dev-1", "app/utils.py").
		File("app/utils.py", "Dev-2").
		Test("tests/test_main.py").
		Test("tests/test_utils.py")
}
