package retrieval

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"

	"github.com/WhitenWhiten/CodeTeam/core"
	"github.com/WhitenWhiten/CodeTeam/logging"
)

// Nop is a Retriever that never returns documents.
type Nop struct{}

var _ core.Retriever = Nop{}

// Query implements core.Retriever.
func (Nop) Query(context.Context, string) []core.Document { return []core.Document{} }

// Options configures an Index.
type Options struct {
	// TopK bounds the number of documents per query.
	TopK int
	// MaxChars truncates each returned document text.
	MaxChars int
	Logger   logging.Logger
}

// Index is a full-text corpus index backed by SQLite FTS5.
type Index struct {
	database *sql.DB
	opts     Options
}

var _ core.Retriever = (*Index)(nil)

// CorpusEntry is one record of a corpus file.
type CorpusEntry struct {
	FullName    string `json:"full_name"`
	Description string `json:"description,omitempty"`
	Readme      string `json:"readme"`
}

const corpusDigestKey = "corpus_digest"

// Open opens (creating when needed) the index database.
func Open(dbPath string, optFns ...func(o *Options)) (*Index, error) {
	opts := Options{TopK: 6, MaxChars: 1500, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	opts.Logger = logging.OrNoOp(opts.Logger)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	database, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open index db: %w", err)
	}

	database.SetMaxOpenConns(1)

	idx := &Index{database: database, opts: opts}
	if err := idx.migrate(context.Background()); err != nil {
		_ = database.Close()
		return nil, err
	}

	return idx, nil
}

func (i *Index) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS documents USING fts5(source, text, tokenize = 'porter unicode61');`,
		`CREATE TABLE IF NOT EXISTS corpus_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}

	for _, stmt := range statements {
		if _, err := i.database.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate index: %w", err)
		}
	}

	return nil
}

// Close releases the database.
func (i *Index) Close() error { return i.database.Close() }

// Add indexes documents.
func (i *Index) Add(ctx context.Context, docs ...core.Document) error {
	tx, err := i.database.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := insert(ctx, tx, docs); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func insert(ctx context.Context, tx *sql.Tx, docs []core.Document) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO documents (source, text) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}

		if _, err := stmt.ExecContext(ctx, d.Source, d.Text); err != nil {
			return fmt.Errorf("index %s: %w", d.Source, err)
		}
	}

	return nil
}

// Count returns the number of indexed documents.
func (i *Index) Count(ctx context.Context) (int, error) {
	var n int
	err := i.database.QueryRowContext(ctx, `SELECT count(*) FROM documents`).Scan(&n)

	return n, err
}

// LoadCorpus replaces the indexed documents with a JSON array of corpus
// entries. A corpus identical to the loaded one (same blake3 digest) is
// skipped; the returned count is then zero.
func (i *Index) LoadCorpus(ctx context.Context, r io.Reader) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read corpus: %w", err)
	}

	sum := blake3.Sum256(raw)
	digest := hex.EncodeToString(sum[:])

	var current string

	err = i.database.QueryRowContext(ctx, `SELECT value FROM corpus_meta WHERE key = ?`, corpusDigestKey).Scan(&current)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("read corpus digest: %w", err)
	}

	if current == digest {
		i.opts.Logger.Debug("Corpus unchanged, skipping reindex", "digest", digest)
		return 0, nil
	}

	var entries []CorpusEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("decode corpus: %w", err)
	}

	docs := make([]core.Document, 0, len(entries))
	for _, e := range entries {
		text := e.Readme
		if e.Description != "" {
			text = e.Description + "\n\n" + text
		}

		docs = append(docs, core.Document{Source: e.FullName, Text: text})
	}

	tx, err := i.database.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("clear index: %w", err)
	}

	if err := insert(ctx, tx, docs); err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO corpus_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, corpusDigestKey, digest); err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("store corpus digest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	i.opts.Logger.Info("Corpus indexed", "documents", len(docs), "digest", digest)

	return len(docs), nil
}

// LoadCorpusFile is LoadCorpus over a file.
func (i *Index) LoadCorpusFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	return i.LoadCorpus(ctx, f)
}

var word = regexp.MustCompile(`[\p{L}\p{N}]{2,}`)

// matchExpression turns free text into an FTS5 OR query of quoted terms.
func matchExpression(text string) string {
	seen := map[string]bool{}

	var terms []string

	for _, w := range word.FindAllString(strings.ToLower(text), -1) {
		if seen[w] {
			continue
		}

		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}

	return strings.Join(terms, " OR ")
}

// Query implements core.Retriever. Documents are ranked by bm25.
func (i *Index) Query(ctx context.Context, text string) []core.Document {
	out := []core.Document{}

	expr := matchExpression(text)
	if expr == "" {
		return out
	}

	rows, err := i.database.QueryContext(ctx,
		`SELECT source, text FROM documents WHERE documents MATCH ? ORDER BY bm25(documents) LIMIT ?`,
		expr, i.opts.TopK)
	if err != nil {
		i.opts.Logger.Warn("Retrieval query failed", "error", err.Error())
		return out
	}
	defer rows.Close()

	for rows.Next() {
		var d core.Document
		if err := rows.Scan(&d.Source, &d.Text); err != nil {
			i.opts.Logger.Warn("Retrieval scan failed", "error", err.Error())
			return []core.Document{}
		}

		if i.opts.MaxChars > 0 && len(d.Text) > i.opts.MaxChars {
			d.Text = cutRunes(d.Text, i.opts.MaxChars)
		}

		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		i.opts.Logger.Warn("Retrieval query failed", "error", err.Error())
		return []core.Document{}
	}

	return out
}

// cutRunes returns the longest prefix of s within n bytes that ends on a rune
// boundary.
func cutRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}

	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}

	return s[:n]
}
