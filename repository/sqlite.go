package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/WhitenWhiten/CodeTeam/core"
)

// SQLiteHistory persists commits in a SQLite database, so the audit trail
// survives the process.
type SQLiteHistory struct {
	database *sql.DB
	dbPath   string
}

// OpenSQLiteHistory opens (creating when needed) the history database.
func OpenSQLiteHistory(dbPath string) (*SQLiteHistory, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	database.SetMaxOpenConns(1)

	h := &SQLiteHistory{database: database, dbPath: dbPath}
	if err := h.migrate(context.Background()); err != nil {
		_ = database.Close()
		return nil, err
	}

	return h, nil
}

func (h *SQLiteHistory) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS commits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			agent TEXT NOT NULL,
			paths_json TEXT NOT NULL,
			message TEXT NOT NULL,
			digest TEXT NOT NULL,
			lines_added INTEGER NOT NULL DEFAULT 0,
			lines_removed INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := h.database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate history: %w", err)
		}
	}

	return nil
}

// DBPath returns the database file location.
func (h *SQLiteHistory) DBPath() string { return h.dbPath }

// Append implements History.
func (h *SQLiteHistory) Append(ctx context.Context, c Commit) (Commit, error) {
	if c.ID == "" {
		c.ID = core.NewID()
	}

	paths, err := json.Marshal(c.Paths)
	if err != nil {
		return Commit{}, err
	}

	_, err = h.database.ExecContext(ctx,
		`INSERT INTO commits (id, agent, paths_json, message, digest, lines_added, lines_removed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Agent, string(paths), c.Message, c.Digest, c.LinesAdded, c.LinesRemoved, c.Time.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Commit{}, fmt.Errorf("append commit: %w", err)
	}

	return c, nil
}

// List implements History.
func (h *SQLiteHistory) List(ctx context.Context) ([]Commit, error) {
	rows, err := h.database.QueryContext(ctx,
		`SELECT id, agent, paths_json, message, digest, lines_added, lines_removed, created_at
		 FROM commits ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var out []Commit

	for rows.Next() {
		var (
			c         Commit
			pathsJSON string
			created   string
		)

		if err := rows.Scan(&c.ID, &c.Agent, &pathsJSON, &c.Message, &c.Digest, &c.LinesAdded, &c.LinesRemoved, &created); err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(pathsJSON), &c.Paths); err != nil {
			return nil, fmt.Errorf("decode commit paths: %w", err)
		}

		if c.Time, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("decode commit time: %w", err)
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

// Close implements History.
func (h *SQLiteHistory) Close() error {
	return h.database.Close()
}
