// Package sqlite implements the document store on a sqlite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/internalerr"
)

// FileName is the database file inside the store directory.
const FileName = "docs.db"

const schema = `
CREATE TABLE IF NOT EXISTS docs (
	id   TEXT PRIMARY KEY,
	lang TEXT NOT NULL,
	text TEXT NOT NULL,
	date TEXT NOT NULL
);`

// Store is a sqlite-backed document store. Read-only stores reject writes
// and keep an LRU cache of recently fetched documents.
type Store struct {
	db       *sql.DB
	readonly bool
	cache    *lru.Cache[string, clair.Doc]
}

// Open creates or opens a writable store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+filepath.Join(dir, FileName))
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing document store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenReadOnly opens an existing store for reading with an LRU cache of
// cacheSize documents.
func OpenReadOnly(dir string, cacheSize int) (*Store, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err != nil {
		return nil, internalerr.Config("document store not found at %s", dir)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening document store: %w", err)
	}
	cache, err := lru.New[string, clair.Doc](cacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, readonly: true, cache: cache}, nil
}

// Put stores a document under its id. The original text is stored when
// the document carries one.
func (s *Store) Put(ctx context.Context, doc clair.Doc) error {
	if s.readonly {
		return internalerr.Data("put on read-only document store")
	}
	text := doc.Text
	if doc.OriginalText != "" {
		text = doc.OriginalText
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO docs (id, lang, text, date) VALUES (?, ?, ?, ?)`,
		doc.ID, doc.Lang, text, doc.Date)
	if err != nil {
		return fmt.Errorf("storing document %s: %w", doc.ID, err)
	}
	return nil
}

// Get returns the document with the given id.
func (s *Store) Get(ctx context.Context, id string) (clair.Doc, error) {
	if s.cache != nil {
		if doc, ok := s.cache.Get(id); ok {
			return doc, nil
		}
	}
	var doc clair.Doc
	row := s.db.QueryRowContext(ctx, `SELECT id, lang, text, date FROM docs WHERE id = ?`, id)
	err := row.Scan(&doc.ID, &doc.Lang, &doc.Text, &doc.Date)
	if errors.Is(err, sql.ErrNoRows) {
		return clair.Doc{}, internalerr.Data("document %s is not in the store", id)
	}
	if err != nil {
		return clair.Doc{}, fmt.Errorf("fetching document %s: %w", id, err)
	}
	if s.cache != nil {
		s.cache.Add(id, doc)
	}
	return doc, nil
}

// Count returns the number of stored documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM docs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// Merge copies the documents of the part stores into this one.
func (s *Store) Merge(ctx context.Context, parts []string) error {
	if s.readonly {
		return internalerr.Data("merge on read-only document store")
	}
	for _, part := range parts {
		path := filepath.Join(part, FileName)
		if _, err := s.db.ExecContext(ctx, `ATTACH DATABASE ? AS part`, path); err != nil {
			return fmt.Errorf("attaching %s: %w", path, err)
		}
		_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO docs SELECT * FROM part.docs`)
		if err != nil {
			s.db.ExecContext(ctx, `DETACH DATABASE part`)
			return fmt.Errorf("merging %s: %w", path, err)
		}
		if _, err := s.db.ExecContext(ctx, `DETACH DATABASE part`); err != nil {
			return fmt.Errorf("detaching %s: %w", path, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
