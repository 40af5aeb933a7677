package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// ErrNotAuditCommit is returned by ParseCommitMessage for commits that do
// not carry an audit record, such as bulk commits.
var ErrNotAuditCommit = errors.New("commit message carries no audit record")

// Commit is one entry of the append-only history.
type Commit struct {
	ID           string    `json:"id"`
	Agent        string    `json:"agent,omitempty"`
	Paths        []string  `json:"paths"`
	Message      string    `json:"message"`
	Digest       string    `json:"digest"`
	LinesAdded   int       `json:"lines_added"`
	LinesRemoved int       `json:"lines_removed"`
	Time         time.Time `json:"time"`
}

// Audit decodes the audit record embedded in the commit message.
func (c Commit) Audit() (AuditEntry, error) {
	return ParseCommitMessage(c.Message)
}

// AuditEntry is the parsed form of a per-path commit message.
type AuditEntry struct {
	Agent  string
	Path   string
	Record core.AuditRecord
}

const auditPrefix = "UPDATE_REASON="

var headerRe = regexp.MustCompile(`^\[([^\]]*)\] update (\S+)$`)

// FormatCommitMessage renders the message of a per-path commit:
//
//	[<agent>] update <path>
//	UPDATE_REASON=<json>
func FormatCommitMessage(agent, filePath string, rec core.AuditRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode audit record: %w", err)
	}

	return fmt.Sprintf("[%s] update %s\n%s%s", agent, filePath, auditPrefix, b), nil
}

// ParseCommitMessage recovers the agent, path and audit record from a
// message produced by FormatCommitMessage.
func ParseCommitMessage(msg string) (AuditEntry, error) {
	header, body, _ := strings.Cut(strings.TrimSpace(msg), "\n")

	m := headerRe.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return AuditEntry{}, ErrNotAuditCommit
	}

	var payload string

	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, auditPrefix) {
			payload = strings.TrimPrefix(line, auditPrefix)
			break
		}
	}

	if payload == "" {
		return AuditEntry{}, ErrNotAuditCommit
	}

	var rec core.AuditRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return AuditEntry{}, fmt.Errorf("decode audit record: %w", err)
	}

	return AuditEntry{Agent: m[1], Path: m[2], Record: rec}, nil
}
