// Package rerank re-scores retrieval results. The overlap reranker is a
// lexical baseline: it fetches each hit's original text from the document
// store and counts query-term overlap.
package rerank

import (
	"context"
	"sort"
	"strings"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/pipeline"
	"github.com/cognicore/clair/pkg/clair/store/sqlite"
)

// cacheSize bounds the read-only store cache. Hits repeat across queries
// so even a small cache saves most lookups.
const cacheSize = 4096

// New creates the configured reranker reading documents from dbDir.
func New(section *config.RerankSection, dbDir string) (pipeline.Task, error) {
	switch section.Name {
	case "overlap":
		return newOverlap(dbDir), nil
	default:
		return nil, internalerr.Config("%s is not a valid reranker", section.Name)
	}
}

type overlap struct {
	pipeline.TaskBase
	dbDir string
	store *sqlite.Store
}

func newOverlap(dbDir string) *overlap {
	return &overlap{dbDir: dbDir}
}

func (r *overlap) Name() string { return "rerank.overlap" }

func (r *overlap) Begin(context.Context) error {
	store, err := sqlite.OpenReadOnly(r.dbDir, cacheSize)
	if err != nil {
		return err
	}
	r.store = store
	return nil
}

func (r *overlap) Process(ctx context.Context, item pipeline.Item) (pipeline.Item, error) {
	results := item.(clair.Results)
	terms := map[string]struct{}{}
	for _, term := range strings.Fields(strings.ToLower(results.Query.Query)) {
		terms[term] = struct{}{}
	}
	hits := make([]clair.Hit, len(results.Hits))
	for i, hit := range results.Hits {
		doc, err := r.store.Get(ctx, hit.DocID)
		if err != nil {
			return nil, err
		}
		count := 0
		for _, word := range strings.Fields(strings.ToLower(doc.Text)) {
			if _, ok := terms[word]; ok {
				count++
			}
		}
		hits[i] = clair.Hit{DocID: hit.DocID, Score: float64(count)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return clair.Results{Query: results.Query, System: "overlap", Hits: hits}, nil
}

func (r *overlap) End(context.Context) error {
	if r.store == nil {
		return nil
	}
	return r.store.Close()
}
