package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jward/callgraph/internal/graph"
)

const schemaVersion = "1"

// Store is the SQLite backend.
type Store struct {
	db *sql.DB
}

var _ GraphStore = (*Store)(nil)

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates the tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return s.SetMeta(context.Background(), "schema_version", schemaVersion)
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS graphs (
  id              INTEGER PRIMARY KEY,
  url             TEXT NOT NULL,
  ref             TEXT NOT NULL,
  commit_hash     TEXT,
  run_id          TEXT,
  built_at        TIMESTAMP,
  UNIQUE(url, ref)
);

CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  graph_id        INTEGER NOT NULL REFERENCES graphs(id) ON DELETE CASCADE,
  path            TEXT NOT NULL,
  language        TEXT NOT NULL,
  hash            TEXT,
  summary         BLOB NOT NULL,
  UNIQUE(graph_id, path)
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT
);

CREATE INDEX IF NOT EXISTS idx_graphs_url ON graphs(url);
CREATE INDEX IF NOT EXISTS idx_graphs_built ON graphs(built_at);
CREATE INDEX IF NOT EXISTS idx_files_graph ON files(graph_id);
CREATE INDEX IF NOT EXISTS idx_files_language ON files(language);
`

// GetMeta returns a metadata value, or "" when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var v sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v.String, nil
}

// SetMeta upserts a metadata value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) graphRow(ctx context.Context, url, ref string) (int64, *graph.Metadata, error) {
	var (
		row    *sql.Row
		id     int64
		meta   graph.Metadata
		commit sql.NullString
	)
	if ref == "" {
		row = s.db.QueryRowContext(ctx,
			"SELECT id, url, ref, commit_hash FROM graphs WHERE url = ? ORDER BY built_at DESC, id DESC LIMIT 1", url)
	} else {
		row = s.db.QueryRowContext(ctx,
			"SELECT id, url, ref, commit_hash FROM graphs WHERE url = ? AND ref = ?", url, ref)
	}
	err := row.Scan(&id, &meta.URL, &meta.Ref, &commit)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, fmt.Errorf("query graph: %w", err)
	}
	meta.CommitHash = commit.String
	return id, &meta, nil
}

// Metadata implements GraphStore.
func (s *Store) Metadata(ctx context.Context, url, ref string) (*graph.Metadata, error) {
	_, meta, err := s.graphRow(ctx, url, ref)
	return meta, err
}

// Latest implements GraphStore.
func (s *Store) Latest(ctx context.Context) (*graph.Metadata, error) {
	var (
		meta   graph.Metadata
		commit sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT url, ref, commit_hash FROM graphs ORDER BY built_at DESC, id DESC LIMIT 1").
		Scan(&meta.URL, &meta.Ref, &commit)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest graph: %w", err)
	}
	meta.CommitHash = commit.String
	return &meta, nil
}

// Load implements GraphStore.
func (s *Store) Load(ctx context.Context, url, ref string) (*graph.RepoGraph, error) {
	id, meta, err := s.graphRow(ctx, url, ref)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, "SELECT path, hash, summary FROM files WHERE graph_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	g := graph.NewRepoGraph(*meta)
	for rows.Next() {
		var (
			path string
			hash sql.NullString
			blob []byte
		)
		if err := rows.Scan(&path, &hash, &blob); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		fs, err := graph.UnmarshalFile(blob)
		if err != nil {
			return nil, fmt.Errorf("file %s: %w", path, err)
		}
		if hash.Valid {
			fs.Fingerprint, _ = strconv.ParseUint(hash.String, 16, 64)
		}
		g.Files[path] = fs
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return g, nil
}

// Save implements GraphStore. The graph row and all of its files are
// replaced in one transaction.
func (s *Store) Save(ctx context.Context, g *graph.RepoGraph, info BuildInfo) error {
	if info.BuiltAt.IsZero() {
		info.BuiltAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save graph: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO graphs (url, ref, commit_hash, run_id, built_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(url, ref) DO UPDATE SET commit_hash = excluded.commit_hash, run_id = excluded.run_id, built_at = excluded.built_at`,
		g.Metadata.URL, g.Metadata.Ref, nullString(g.Metadata.CommitHash), nullString(info.RunID), info.BuiltAt.UTC())
	if err != nil {
		return fmt.Errorf("save graph: upsert: %w", err)
	}
	var id int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM graphs WHERE url = ? AND ref = ?",
		g.Metadata.URL, g.Metadata.Ref).Scan(&id); err != nil {
		return fmt.Errorf("save graph: id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM files WHERE graph_id = ?", id); err != nil {
		return fmt.Errorf("save graph: clear files: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO files (graph_id, path, language, hash, summary) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("save graph: prepare: %w", err)
	}
	defer stmt.Close()
	for _, path := range g.SortedPaths() {
		fs := g.Files[path]
		blob, err := graph.MarshalFile(fs)
		if err != nil {
			return fmt.Errorf("save graph: %s: %w", path, err)
		}
		hash := fmt.Sprintf("%016x", fs.Fingerprint)
		if _, err := stmt.ExecContext(ctx, id, path, fs.Language, hash, blob); err != nil {
			return fmt.Errorf("save graph: insert %s: %w", path, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES ('last_run_id', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		info.RunID); err != nil {
		return fmt.Errorf("save graph: run id: %w", err)
	}
	return tx.Commit()
}
