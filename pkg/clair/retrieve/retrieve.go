// Package retrieve ranks documents against queries using an index built
// in stage 1.
package retrieve

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/index"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/pipeline"
)

// New creates the configured retriever.
func New(section *config.RetrieveSection) (pipeline.Task, error) {
	switch section.Name {
	case "bm25":
		return newBM25(section.Input.Index.Path, section.Number), nil
	default:
		return nil, internalerr.Config("%s is not a valid retriever", section.Name)
	}
}

// BM25 parameters, tuned for short queries.
const (
	k1 = 0.9
	b  = 0.4
)

// bm25 scores query terms against an inverted index.
type bm25 struct {
	pipeline.TaskBase
	indexDir string
	number   int
	idx      *index.Index
}

func newBM25(indexDir string, number int) *bm25 {
	return &bm25{indexDir: indexDir, number: number}
}

func (r *bm25) Name() string { return "retrieve.bm25" }

func (r *bm25) Begin(context.Context) error {
	idx, err := index.Load(r.indexDir)
	if err != nil {
		return err
	}
	r.idx = idx
	return nil
}

func (r *bm25) Process(_ context.Context, item pipeline.Item) (pipeline.Item, error) {
	query := item.(clair.Query)
	scores := map[string]float64{}
	for _, term := range strings.Fields(query.Query) {
		postings := r.idx.Postings[term]
		if len(postings) == 0 {
			continue
		}
		n := float64(r.idx.Docs)
		df := float64(len(postings))
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for _, p := range postings {
			tf := float64(p.TF)
			dl := float64(r.idx.DocLens[p.Doc])
			norm := tf + k1*(1-b+b*dl/r.idx.AvgLen)
			scores[p.Doc] += idf * tf * (k1 + 1) / norm
		}
	}

	hits := make([]clair.Hit, 0, len(scores))
	for doc, score := range scores {
		hits = append(hits, clair.Hit{DocID: doc, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if len(hits) > r.number {
		hits = hits[:r.number]
	}
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return clair.Results{Query: query, System: "bm25", Hits: hits}, nil
}
