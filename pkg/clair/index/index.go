// Package index builds searchable indexes from processed documents. The
// inverted indexer produces the postings the bm25 retriever searches; the
// text indexer just records document ids and exists for fast smoke runs.
package index

import (
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/pipeline"
)

// Index artifact files.
const (
	PostingsFile = "postings.jsonl"
	DocLensFile  = "doclens.jsonl"
	MetaFile     = "meta.json"
	TextFile     = "index.txt"
)

// New creates the configured indexer writing into dir.
func New(section *config.IndexSection, dir, runPath string, conf *config.Config) (pipeline.Task, error) {
	switch section.Name {
	case "inverted":
		return newInvertedIndexer(dir, runPath, conf), nil
	case "text":
		return newTextIndexer(dir, runPath, conf), nil
	default:
		return nil, internalerr.Config("%s is not a valid indexer", section.Name)
	}
}
