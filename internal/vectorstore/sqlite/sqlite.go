// Package sqlite persists named vector collections in a single SQLite file.
// Search loads the collection and ranks it in memory.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"sedar-analyst/internal/domain"
	"sedar-analyst/internal/vectorstore/vecmath"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	model      TEXT NOT NULL,
	dimension  INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS entries (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	collection  TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	document_id TEXT NOT NULL,
	chunk_id    TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	source_ref  TEXT NOT NULL,
	text        TEXT NOT NULL,
	vector      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_collection ON entries(collection, seq);
`

// Store is one collection inside a SQLite database.
type Store struct {
	db         *sql.DB
	path       string
	collection string
}

// Open opens (creating if needed) the database at path and binds it to collection.
func Open(path, collection string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	// WAL mode lets queries read while an ingestion writes
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &Store{db: db, path: path, collection: collection}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) loadInfo(ctx context.Context, op string) (domain.CollectionInfo, error) {
	info := domain.CollectionInfo{Name: s.collection}
	err := s.db.QueryRowContext(ctx,
		`SELECT model, dimension, (SELECT COUNT(*) FROM entries WHERE collection = ?) FROM collections WHERE name = ?`,
		s.collection, s.collection,
	).Scan(&info.Model, &info.Dimension, &info.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CollectionInfo{}, domain.E(op, domain.ErrCollectionNotFound, nil)
	}
	if err != nil {
		return domain.CollectionInfo{}, fmt.Errorf("%s: %w", op, err)
	}
	return info, nil
}

func (s *Store) EnsureCollection(ctx context.Context, model string, dimension int) (domain.CollectionInfo, error) {
	if dimension <= 0 {
		return domain.CollectionInfo{}, domain.Invalid("ensure collection", "invalid dimension %d", dimension)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (name, model, dimension, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		s.collection, model, dimension, time.Now().UTC(),
	)
	if err != nil {
		return domain.CollectionInfo{}, fmt.Errorf("ensure collection: %w", err)
	}
	info, err := s.loadInfo(ctx, "ensure collection")
	if err != nil {
		return domain.CollectionInfo{}, err
	}
	if err := vecmath.CheckReuse(info, model, dimension); err != nil {
		return domain.CollectionInfo{}, err
	}
	return info, nil
}

func (s *Store) Insert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) ([]string, error) {
	info, err := s.loadInfo(ctx, "insert")
	if err != nil {
		return nil, err
	}
	if err := vecmath.CheckBatch(chunks, vectors, info.Dimension); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("insert: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (id, collection, document_id, chunk_id, chunk_index, source_ref, text, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("insert: prepare: %w", err)
	}
	defer stmt.Close()

	ids := make([]string, len(chunks))
	for i, ch := range chunks {
		ids[i] = uuid.NewString()
		if _, err := stmt.ExecContext(ctx, ids[i], s.collection, ch.DocumentID, ch.ChunkID, ch.Index, ch.SourceRef, ch.Text, vecmath.Encode(vectors[i])); err != nil {
			return nil, fmt.Errorf("insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("insert: commit: %w", err)
	}
	return ids, nil
}

func (s *Store) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	info, err := s.loadInfo(ctx, "search")
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		return []domain.SearchResult{}, nil
	}
	if err := vecmath.CheckQuery(vector, info.Dimension); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_id, chunk_index, source_ref, text, vector
		FROM entries WHERE collection = ? ORDER BY seq`, s.collection)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	var candidates []domain.SearchResult
	var scores []float64
	for rows.Next() {
		var r domain.SearchResult
		var blob []byte
		if err := rows.Scan(&r.ID, &r.Chunk.DocumentID, &r.Chunk.ChunkID, &r.Chunk.Index, &r.Chunk.SourceRef, &r.Chunk.Text, &blob); err != nil {
			return nil, fmt.Errorf("search: scan: %w", err)
		}
		vec, err := vecmath.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("search: entry %s: %w", r.ID, err)
		}
		r.Score = vecmath.Cosine(vec, vector)
		candidates = append(candidates, r)
		scores = append(scores, r.Score)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	idxs := vecmath.TopK(scores, topK)
	results := make([]domain.SearchResult, 0, len(idxs))
	for _, j := range idxs {
		results = append(results, candidates[j])
	}
	return results, nil
}

func (s *Store) Info(ctx context.Context) (domain.CollectionInfo, error) {
	return s.loadInfo(ctx, "info")
}

// Drop deletes the collection and its entries.
func (s *Store) Drop(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("drop: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE collection = ?`, s.collection); err != nil {
		return fmt.Errorf("drop: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection)
	if err != nil {
		return fmt.Errorf("drop: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.E("drop", domain.ErrCollectionNotFound, nil)
	}
	return tx.Commit()
}
