package retrieve

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/index"
	"github.com/cognicore/clair/pkg/clair/internalerr"
)

func buildIndex(t *testing.T, docs []clair.Doc) string {
	t.Helper()
	ctx := context.Background()
	runPath := t.TempDir()
	dir := filepath.Join(runPath, "index")
	conf := &config.Config{Run: config.RunSection{Name: "test", Path: runPath}}
	task, err := index.New(&config.IndexSection{Name: "inverted"}, dir, runPath, conf)
	if err != nil {
		t.Fatalf("new indexer: %v", err)
	}
	if err := task.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, doc := range docs {
		if _, err := task.Process(ctx, doc); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := task.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	return dir
}

func TestUnknownRetriever(t *testing.T) {
	_, err := New(&config.RetrieveSection{Name: "neural"})
	if !internalerr.IsKind(err, internalerr.KindConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestBM25RanksRelevantFirst(t *testing.T) {
	ctx := context.Background()
	dir := buildIndex(t, []clair.Doc{
		{ID: "d1", Lang: "eng", Text: "cats and more cats all about cats"},
		{ID: "d2", Lang: "eng", Text: "dogs dogs dogs"},
		{ID: "d3", Lang: "eng", Text: "a single cats mention among many other words here"},
	})
	task, err := New(&config.RetrieveSection{
		Name:   "bm25",
		Number: 10,
		Input:  &config.RetrieveInputSection{Index: &config.PathSection{Path: dir}},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := task.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	item, err := task.Process(ctx, clair.Query{ID: "q1", Lang: "eng", Query: "cats"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	results := item.(clair.Results)
	if results.System != "bm25" || results.Query.ID != "q1" {
		t.Errorf("results = %+v", results)
	}
	if len(results.Hits) != 2 {
		t.Fatalf("hits = %+v", results.Hits)
	}
	if results.Hits[0].DocID != "d1" {
		t.Errorf("top hit = %+v", results.Hits[0])
	}
	if results.Hits[0].Rank != 1 || results.Hits[1].Rank != 2 {
		t.Errorf("ranks = %+v", results.Hits)
	}
	if results.Hits[0].Score <= results.Hits[1].Score {
		t.Errorf("scores not descending: %+v", results.Hits)
	}
}

func TestBM25NumberLimit(t *testing.T) {
	ctx := context.Background()
	docs := []clair.Doc{
		{ID: "d1", Lang: "eng", Text: "word"},
		{ID: "d2", Lang: "eng", Text: "word"},
		{ID: "d3", Lang: "eng", Text: "word"},
	}
	dir := buildIndex(t, docs)
	task, err := New(&config.RetrieveSection{
		Name:   "bm25",
		Number: 2,
		Input:  &config.RetrieveInputSection{Index: &config.PathSection{Path: dir}},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := task.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	item, err := task.Process(ctx, clair.Query{ID: "q1", Query: "word"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if hits := item.(clair.Results).Hits; len(hits) != 2 {
		t.Errorf("hits = %+v", hits)
	}
}

func TestBM25NoMatches(t *testing.T) {
	ctx := context.Background()
	dir := buildIndex(t, []clair.Doc{{ID: "d1", Lang: "eng", Text: "something"}})
	task, err := New(&config.RetrieveSection{
		Name:   "bm25",
		Number: 10,
		Input:  &config.RetrieveInputSection{Index: &config.PathSection{Path: dir}},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := task.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	item, err := task.Process(ctx, clair.Query{ID: "q1", Query: "absent"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if hits := item.(clair.Results).Hits; len(hits) != 0 {
		t.Errorf("hits = %+v", hits)
	}
}
