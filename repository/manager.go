// Package repository owns the generated file tree and its commit history.
// Every mutation goes through a permission check: a path must be declared
// in the tree and, when an owner is given, assigned to that owner.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/logging"
	"github.com/WhitenWhiten/CodeTeam/schema"
)

// StructureCommitMessage is the message of the commit created by InitStructure.
const StructureCommitMessage = "chore: init repository structure"

// Options configures a Manager.
type Options struct {
	// Validator checks audit records before they are committed.
	Validator *schema.Validator
	// History receives commits. Defaults to an in-memory history.
	History History
	// IgnorePatterns are extra gitignore-style patterns skipped by CommitAll.
	IgnorePatterns []string
	// Logger defaults to a no-op logger.
	Logger logging.Logger
	// Now returns the commit timestamp. Defaults to time.Now.
	Now func() time.Time
}

// Manager is the single writer of the artifact tree. Writes to distinct
// paths may run concurrently; commits are serialized.
type Manager struct {
	root   string
	perms  *PermissionTable
	opts   Options
	logger logging.Logger

	mu        sync.Mutex
	committed map[string]string // path -> content at last commit
}

// New creates a Manager rooted at root, creating the directory if needed.
func New(root string, perms *PermissionTable, optFns ...func(o *Options)) (*Manager, error) {
	opts := Options{Now: time.Now}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Validator == nil {
		opts.Validator = schema.New()
	}

	if opts.History == nil {
		opts.History = NewMemoryHistory()
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if perms == nil {
		return nil, errors.New("repository: permission table is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve repository root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create repository root: %w", err)
	}

	return &Manager{
		root:      abs,
		perms:     perms,
		opts:      opts,
		logger:    opts.Logger,
		committed: make(map[string]string),
	}, nil
}

// Root returns the absolute repository root.
func (m *Manager) Root() string { return m.root }

// Permissions returns the table guarding writes.
func (m *Manager) Permissions() *PermissionTable { return m.perms }

// History returns the commit log backend.
func (m *Manager) History() History { return m.opts.History }

func (m *Manager) abs(rel string) string {
	return filepath.Join(m.root, filepath.FromSlash(rel))
}

// InitStructure creates every declared directory and an empty placeholder
// for every declared file that does not exist yet, then commits the result.
func (m *Manager) InitStructure(ctx context.Context, tree []core.RepoNode) error {
	for _, dir := range core.FlattenDirs(tree) {
		if err := os.MkdirAll(m.abs(dir), 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	for _, f := range core.FlattenTree(tree) {
		p, err := NormalizePath(f)
		if err != nil {
			return err
		}

		if err := m.perms.Check(p, ""); err != nil {
			return err
		}

		if m.Exists(p) {
			continue
		}

		if err := os.MkdirAll(filepath.Dir(m.abs(p)), 0o755); err != nil {
			return err
		}

		if err := os.WriteFile(m.abs(p), nil, 0o644); err != nil {
			return fmt.Errorf("create placeholder %s: %w", p, err)
		}
	}

	_, err := m.CommitAll(ctx, StructureCommitMessage)

	return err
}

// Exists reports whether a regular file exists at the relative path.
func (m *Manager) Exists(rel string) bool {
	p, err := NormalizePath(rel)
	if err != nil {
		return false
	}

	info, err := os.Stat(m.abs(p))

	return err == nil && info.Mode().IsRegular()
}

// Read returns the current content of a file.
func (m *Manager) Read(rel string) (string, error) {
	p, err := NormalizePath(rel)
	if err != nil {
		return "", err
	}

	b, err := os.ReadFile(m.abs(p))
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// Write persists content at path on behalf of owner. An empty owner skips the
// per-owner check but never the global one. A rejected write leaves the tree
// untouched.
func (m *Manager) Write(rel, content, owner string) error {
	p, err := NormalizePath(rel)
	if err != nil {
		return err
	}

	if err := m.perms.Check(p, owner); err != nil {
		m.logger.Warn("write rejected", "path", p, "owner", owner, "error", err)
		return err
	}

	target := m.abs(p)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", p, err)
	}

	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", p, err)
	}

	return nil
}

// Commit validates rec and appends one commit for path whose message embeds
// the agent, the path and the serialized record.
func (m *Manager) Commit(ctx context.Context, rel string, rec core.AuditRecord, agent string) (Commit, error) {
	p, err := NormalizePath(rel)
	if err != nil {
		return Commit{}, err
	}

	if err := m.perms.Check(p, ""); err != nil {
		return Commit{}, err
	}

	if err := m.opts.Validator.ValidateAudit(rec); err != nil {
		return Commit{}, err
	}

	if rec.FilePath != p {
		return Commit{}, &core.SchemaError{
			Kind:   core.SchemaAuditRecord,
			Tier:   core.TierSemantic,
			Issues: []string{fmt.Sprintf("file_path %q does not match committed path %q", rec.FilePath, p)},
		}
	}

	msg, err := FormatCommitMessage(agent, p, rec)
	if err != nil {
		return Commit{}, err
	}

	content, err := os.ReadFile(m.abs(p))
	if err != nil {
		return Commit{}, fmt.Errorf("stage %s: %w", p, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	added, removed := lineStats(m.committed[p], string(content))

	c, err := m.opts.History.Append(ctx, Commit{
		Agent:        agent,
		Paths:        []string{p},
		Message:      msg,
		Digest:       contentDigest(content),
		LinesAdded:   added,
		LinesRemoved: removed,
		Time:         m.opts.Now(),
	})
	if err != nil {
		return Commit{}, err
	}

	m.committed[p] = string(content)
	m.logger.Debug("committed", "path", p, "agent", agent, "change", rec.ChangeType, "added", added, "removed", removed)

	return c, nil
}

// CommitAll commits every changed file in one bulk commit. It skips the
// per-owner check but rejects any file outside the declared tree. It
// returns nil (and no error) when nothing changed.
func (m *Manager) CommitAll(ctx context.Context, message string) (*Commit, error) {
	files, err := m.scan()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		changed        []string
		added, removed int
		digests        = make(map[string]string)
	)

	for p, content := range files {
		prev, seen := m.committed[p]
		if seen && prev == content {
			continue
		}

		a, r := lineStats(prev, content)
		added += a
		removed += r

		changed = append(changed, p)
		digests[p] = contentDigest([]byte(content))
	}

	if len(changed) == 0 {
		return nil, nil
	}

	sort.Strings(changed)

	c, err := m.opts.History.Append(ctx, Commit{
		Paths:        changed,
		Message:      message,
		Digest:       treeDigest(digests),
		LinesAdded:   added,
		LinesRemoved: removed,
		Time:         m.opts.Now(),
	})
	if err != nil {
		return nil, err
	}

	for _, p := range changed {
		m.committed[p] = files[p]
	}

	m.logger.Debug("committed tree", "message", message, "files", len(changed))

	return &c, nil
}

// scan reads every non-ignored file under the root. Undeclared files fail
// the scan with a permission error.
func (m *Manager) scan() (map[string]string, error) {
	rules := ignoreRules(m.root, m.opts.IgnorePatterns)
	files := make(map[string]string)

	err := filepath.WalkDir(m.root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(m.root, abs)
		if err != nil || rel == "." {
			return err
		}

		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rules.MatchesPath(rel + "/") {
				return filepath.SkipDir
			}

			return nil
		}

		if rules.MatchesPath(rel) || !d.Type().IsRegular() {
			return nil
		}

		if err := m.perms.Check(rel, ""); err != nil {
			return err
		}

		b, err := os.ReadFile(abs)
		if err != nil {
			return err
		}

		files[rel] = string(b)

		return nil
	})

	return files, err
}

// Log returns the commit history oldest first.
func (m *Manager) Log(ctx context.Context) ([]Commit, error) {
	return m.opts.History.List(ctx)
}

// AuditTrail returns the parsed audit entries of all per-path commits in
// commit order. Bulk commits are skipped.
func (m *Manager) AuditTrail(ctx context.Context) ([]AuditEntry, error) {
	commits, err := m.Log(ctx)
	if err != nil {
		return nil, err
	}

	return AuditTrail(commits)
}

// AuditTrail extracts audit entries from a commit list.
func AuditTrail(commits []Commit) ([]AuditEntry, error) {
	var out []AuditEntry

	for _, c := range commits {
		entry, err := c.Audit()
		if errors.Is(err, ErrNotAuditCommit) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", c.ID, err)
		}

		out = append(out, entry)
	}

	return out, nil
}

// IsPlaceholder reports whether path exists and holds only whitespace, as
// left behind by InitStructure.
func (m *Manager) IsPlaceholder(rel string) bool {
	content, err := m.Read(rel)
	return err == nil && strings.TrimSpace(content) == ""
}
