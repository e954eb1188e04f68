// Package refstore indexes a folder of reference material and serves the
// keyword retrieval that grounds drafting and reviewing prompts.
//
// Files are split into overlapping word-window chunks and stored in a
// SQLite database inside the indexed folder. Retrieval tokenizes the
// query, matches terms against chunk text, and ranks by the fraction of
// distinct terms present with raw frequency as the tiebreak. Identifiers
// (source path, chunk index) flow through to the final run metadata.
//
// Example usage:
//
//	store, err := refstore.Open("./knowledge")
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//	if _, _, err := store.Index(ctx); err != nil {
//		return err
//	}
//	snippets, err := store.Retrieve(ctx, "deployment checklist", 5)
package refstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DBFileName is the index database created inside the reference folder.
const DBFileName = ".refstore.db"

// defaultTopK is used when Retrieve is called with k <= 0.
const defaultTopK = 5

// Snippet is one retrieved reference chunk, ordered by relevance.
type Snippet struct {
	SourceID   string  // path relative to the indexed folder
	ChunkIndex int     // position of the chunk within its source
	Text       string  // chunk content, verbatim from the source
	Relevance  float64 // fraction of query terms present, in [0,1]
}

// Store is a SQLite-backed reference index over one folder.
type Store struct {
	db   *sql.DB
	root string
}

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	source_id     TEXT NOT NULL,
	chunk_index   INTEGER NOT NULL,
	content       TEXT NOT NULL,
	last_modified TEXT NOT NULL,
	UNIQUE(source_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks(source_id);
`

// Open opens (creating if needed) the index database for folder, stored
// as DBFileName inside it. The folder itself must already exist.
func Open(folder string) (*Store, error) {
	return OpenAt(folder, filepath.Join(folder, DBFileName))
}

// OpenAt is Open with an explicit database file location. An empty
// folder yields a retrieval-only store: Retrieve and Stats work against
// whatever the database already holds, while Index reports an error.
func OpenAt(folder, dbPath string) (*Store, error) {
	if folder != "" {
		info, err := os.Stat(folder)
		if err != nil {
			return nil, fmt.Errorf("reference folder %s: %w", folder, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("reference folder %s is not a directory", folder)
		}
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping reference index: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, root: folder}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Index rebuilds the whole index from the folder contents, replacing any
// previous state. Returns the number of files and chunks indexed.
func (s *Store) Index(ctx context.Context) (files, chunks int, err error) {
	if s.root == "" {
		return 0, 0, fmt.Errorf("store is not bound to a reference folder")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin index transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks"); err != nil {
		return 0, 0, fmt.Errorf("failed to clear previous index: %w", err)
	}

	insert, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (source_id, chunk_index, content, last_modified) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer insert.Close()

	walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !indexableFile(d.Name()) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("skipping unreadable reference file", "path", path, "error", err)
			return nil
		}
		text := string(data)
		if strings.TrimSpace(text) == "" || !utf8.ValidString(text) {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		modified := info.ModTime().UTC().Format(time.RFC3339)

		files++
		for i, chunk := range splitChunks(text, chunkWords, overlapWords) {
			if _, err := insert.ExecContext(ctx, filepath.ToSlash(rel), i, chunk, modified); err != nil {
				return fmt.Errorf("failed to store chunk %d of %s: %w", i, rel, err)
			}
			chunks++
		}
		return nil
	})
	if walkErr != nil {
		return 0, 0, fmt.Errorf("failed to index %s: %w", s.root, walkErr)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit index: %w", err)
	}

	slog.Info("reference folder indexed", "folder", s.root, "files", files, "chunks", chunks)
	return files, chunks, nil
}

// IsIndexed reports whether the index holds any chunks.
func (s *Store) IsIndexed(ctx context.Context) (bool, error) {
	_, chunks, err := s.Stats(ctx)
	return chunks > 0, err
}

// Stats returns the number of distinct sources and total chunks indexed.
func (s *Store) Stats(ctx context.Context) (sources, chunks int, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT source_id), COUNT(*) FROM chunks").Scan(&sources, &chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read index stats: %w", err)
	}
	return sources, chunks, nil
}

// Retrieve returns the top k chunks matching the query, ordered by
// descending relevance. A query with no usable terms returns nothing.
func (s *Store) Retrieve(ctx context.Context, query string, k int) ([]Snippet, error) {
	if k <= 0 {
		k = defaultTopK
	}
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	// Pre-filter in SQL, rank in Go. LIKE is case-insensitive for ASCII;
	// content is lowercased on comparison to cover the rest.
	conds := make([]string, len(terms))
	args := make([]any, len(terms))
	for i, term := range terms {
		conds[i] = "lower(content) LIKE ?"
		args[i] = "%" + term + "%"
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT source_id, chunk_index, content FROM chunks WHERE "+strings.Join(conds, " OR "), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	defer rows.Close()

	type candidate struct {
		snippet Snippet
		matched int
		freq    int
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.snippet.SourceID, &c.snippet.ChunkIndex, &c.snippet.Text); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		lc := strings.ToLower(c.snippet.Text)
		for _, term := range terms {
			if n := strings.Count(lc, term); n > 0 {
				c.matched++
				c.freq += n
			}
		}
		if c.matched == 0 {
			continue
		}
		c.snippet.Relevance = float64(c.matched) / float64(len(terms))
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read index rows: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.matched != b.matched {
			return a.matched > b.matched
		}
		if a.freq != b.freq {
			return a.freq > b.freq
		}
		if a.snippet.SourceID != b.snippet.SourceID {
			return a.snippet.SourceID < b.snippet.SourceID
		}
		return a.snippet.ChunkIndex < b.snippet.ChunkIndex
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	snippets := make([]Snippet, len(candidates))
	for i, c := range candidates {
		snippets[i] = c.snippet
	}
	return snippets, nil
}

// queryTerms tokenizes a query into distinct lowercase terms. Short
// tokens carry little signal and are dropped.
func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, field := range strings.Fields(strings.ToLower(query)) {
		term := strings.Trim(field, ".,;:!?\"'()[]{}`")
		if len(term) < 3 || seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
	}
	return terms
}

// skipDir filters directories that never hold reference content.
func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "vendor", "__pycache__", "env", "venv":
		return true
	}
	return false
}

// indexableFile filters hidden files and binary formats.
func indexableFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".pdf", ".zip", ".tar", ".gz",
		".exe", ".bin", ".so", ".dylib", ".dll", ".class", ".jar",
		".pyc", ".pyo", ".db", ".sqlite":
		return false
	}
	return true
}
