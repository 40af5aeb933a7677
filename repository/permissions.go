package repository

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/schema"
)

// PermissionTable maps worker identities to the paths they may write, on top
// of a global allowed-path set derived from the declared tree. After
// construction it only grows, through Grant.
type PermissionTable struct {
	mu     sync.RWMutex
	global map[string]struct{}
	owners map[string]map[string]struct{}
}

// NewPermissionTable builds a table from the global set and per-owner sets.
// Paths are stored cleaned. Owner paths outside the global set are kept but
// can never be written.
func NewPermissionTable(global []string, byOwner map[string][]string) *PermissionTable {
	t := &PermissionTable{
		global: make(map[string]struct{}, len(global)),
		owners: make(map[string]map[string]struct{}, len(byOwner)),
	}

	for _, p := range global {
		t.global[path.Clean(p)] = struct{}{}
	}

	for owner, paths := range byOwner {
		set := make(map[string]struct{}, len(paths))
		for _, p := range paths {
			set[path.Clean(p)] = struct{}{}
		}

		t.owners[owner] = set
	}

	return t
}

// PermissionsFromPlan derives the table from a plan: the flattened tree is the
// global set and every DevPlan entry becomes an owner set.
func PermissionsFromPlan(plan *core.DesignPlan) *PermissionTable {
	byOwner := make(map[string][]string, len(plan.DevPlan))
	for _, a := range plan.DevPlan {
		byOwner[a.DeveloperID] = append(byOwner[a.DeveloperID], a.FilePaths...)
	}

	return NewPermissionTable(plan.AllowedPaths(), byOwner)
}

// Check returns nil when path may be written by owner. An empty owner only
// requires membership in the global set.
func (t *PermissionTable) Check(p, owner string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p = path.Clean(p)
	if _, ok := t.global[p]; !ok {
		return &core.PermissionError{Path: p, Owner: owner, Reason: "path not declared in repository structure"}
	}

	if owner == "" {
		return nil
	}

	set, ok := t.owners[owner]
	if !ok {
		return &core.PermissionError{Path: p, Owner: owner, Reason: "unknown owner"}
	}

	if _, ok := set[p]; !ok {
		return &core.PermissionError{Path: p, Owner: owner, Reason: "path not assigned to owner"}
	}

	return nil
}

// Allowed reports whether p is in the global set.
func (t *PermissionTable) Allowed(p string) bool {
	return t.Check(p, "") == nil
}

// Grant adds paths to an owner set. Every path must already be in the global
// set; on error nothing is granted.
func (t *PermissionTable) Grant(owner string, paths ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, p := range paths {
		if _, ok := t.global[path.Clean(p)]; !ok {
			return &core.PermissionError{Path: p, Owner: owner, Reason: "cannot grant undeclared path"}
		}
	}

	set, ok := t.owners[owner]
	if !ok {
		set = make(map[string]struct{}, len(paths))
		t.owners[owner] = set
	}

	for _, p := range paths {
		set[path.Clean(p)] = struct{}{}
	}

	return nil
}

// Global returns the global allowed set sorted.
func (t *PermissionTable) Global() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return sortedKeys(t.global)
}

// Owned returns the paths assigned to owner sorted.
func (t *PermissionTable) Owned(owner string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return sortedKeys(t.owners[owner])
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}

// NormalizePath cleans a slash-separated relative path ("./a/b" becomes
// "a/b") and rejects anything that escapes the root.
func NormalizePath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if strings.HasPrefix(p, "/") {
		return "", &core.PermissionError{Path: p, Reason: "absolute path"}
	}

	clean := path.Clean(p)
	if clean == "." || !schema.IsSafePath(clean) {
		return "", &core.PermissionError{Path: p, Reason: fmt.Sprintf("unsafe path %q", p)}
	}

	return clean, nil
}
