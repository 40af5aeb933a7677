package repository

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const systemAuthor = "codeteam"

// GitHistory records commits in a git repository rooted at the artifact
// tree, so the result can be inspected with ordinary git tooling. It shells
// out to the git binary.
type GitHistory struct {
	root string
}

// NewGitHistory initializes a repository at root when none exists.
func NewGitHistory(ctx context.Context, root string) (*GitHistory, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("git history: %w", err)
	}

	h := &GitHistory{root: root}

	if _, err := os.Stat(filepath.Join(root, ".git")); os.IsNotExist(err) {
		if _, err := h.git(ctx, "init", "-q"); err != nil {
			return nil, err
		}
	}

	return h, nil
}

func (h *GitHistory) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = h.root

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %v: %s", args[0], err, strings.TrimSpace(out.String()))
	}

	return out.String(), nil
}

// Append implements History by staging the commit paths and committing.
func (h *GitHistory) Append(ctx context.Context, c Commit) (Commit, error) {
	author := c.Agent
	if author == "" {
		author = systemAuthor
	}

	add := append([]string{"add", "-A", "--"}, c.Paths...)
	if _, err := h.git(ctx, add...); err != nil {
		return Commit{}, err
	}

	if _, err := h.git(ctx,
		"-c", "user.name="+author,
		"-c", "user.email="+strings.ToLower(author)+"@codeteam.local",
		"-c", "commit.gpgsign=false",
		"commit", "--allow-empty", "-q", "-m", c.Message,
	); err != nil {
		return Commit{}, err
	}

	head, err := h.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return Commit{}, err
	}

	c.ID = strings.TrimSpace(head)

	return c, nil
}

// List implements History using git log with numstat output.
func (h *GitHistory) List(ctx context.Context) ([]Commit, error) {
	if _, err := h.git(ctx, "rev-parse", "--verify", "-q", "HEAD"); err != nil {
		return nil, nil
	}

	out, err := h.git(ctx, "log", "--reverse", "--numstat", "--format=%x1e%H%x1f%an%x1f%at%x1f%B%x1f")
	if err != nil {
		return nil, err
	}

	var commits []Commit

	for _, rec := range strings.Split(out, "\x1e") {
		if strings.TrimSpace(rec) == "" {
			continue
		}

		fields := strings.SplitN(rec, "\x1f", 5)
		if len(fields) < 5 {
			continue
		}

		c := Commit{ID: fields[0], Agent: fields[1], Message: strings.TrimSpace(fields[3]), Digest: fields[0]}
		if c.Agent == systemAuthor {
			c.Agent = ""
		}

		if ts, err := strconv.ParseInt(fields[2], 10, 64); err == nil {
			c.Time = time.Unix(ts, 0).UTC()
		}

		for _, line := range strings.Split(strings.TrimSpace(fields[4]), "\n") {
			parts := strings.SplitN(line, "\t", 3)
			if len(parts) != 3 {
				continue
			}

			added, _ := strconv.Atoi(parts[0])
			removed, _ := strconv.Atoi(parts[1])
			c.LinesAdded += added
			c.LinesRemoved += removed
			c.Paths = append(c.Paths, parts[2])
		}

		commits = append(commits, c)
	}

	return commits, nil
}

// Close implements History.
func (h *GitHistory) Close() error { return nil }
