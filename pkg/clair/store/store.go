// Package store defines the document store used between the stages. The
// ingest stage writes original documents keyed by id and the reranker
// reads them back.
package store

import (
	"context"

	"github.com/cognicore/clair/pkg/clair"
)

// Store is a key-value document store.
type Store interface {
	// Put stores a document under its id, replacing any previous version.
	Put(ctx context.Context, doc clair.Doc) error
	// Get returns the document with the given id. A missing id is a
	// data error.
	Get(ctx context.Context, id string) (clair.Doc, error)
	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
	// Merge copies the documents of the stores in the given directories
	// into this one.
	Merge(ctx context.Context, parts []string) error
	Close() error
}
