package score

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
)

func TestParseMetric(t *testing.T) {
	for _, name := range []string{"map", "p@10", "ndcg@20", "recall@100"} {
		if _, err := parseMetric(name); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
	for _, name := range []string{"bpref", "p@0", "ndcg@", "map@10"} {
		if _, err := parseMetric(name); !internalerr.IsKind(err, internalerr.KindConfig) {
			t.Errorf("%s: expected config error", name)
		}
	}
}

func TestAveragePrecision(t *testing.T) {
	rels := map[string]int{"d1": 1, "d3": 1}
	// Relevant docs at ranks 1 and 3: (1/1 + 2/3) / 2.
	got := averagePrecision([]string{"d1", "d2", "d3"}, rels)
	want := (1.0 + 2.0/3.0) / 2.0
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ap = %f, want %f", got, want)
	}
}

func TestPrecisionAndRecall(t *testing.T) {
	rels := map[string]int{"d1": 1, "d9": 1}
	ranked := []string{"d1", "d2", "d3", "d4"}
	if got := precisionAt(2, ranked, rels); got != 0.5 {
		t.Errorf("p@2 = %f", got)
	}
	if got := recallAt(2, ranked, rels); got != 0.5 {
		t.Errorf("recall@2 = %f", got)
	}
	if got := recallAt(10, ranked, rels); got != 0.5 {
		t.Errorf("recall@10 = %f", got)
	}
}

func TestNDCG(t *testing.T) {
	rels := map[string]int{"d1": 2, "d2": 1}
	// Perfect ordering scores 1.
	if got := ndcgAt(10, []string{"d1", "d2"}, rels); math.Abs(got-1) > 1e-9 {
		t.Errorf("ndcg = %f", got)
	}
	// Swapped ordering scores below 1.
	got := ndcgAt(10, []string{"d2", "d1"}, rels)
	if got >= 1 || got <= 0 {
		t.Errorf("ndcg = %f", got)
	}
}

func TestScorerEndToEnd(t *testing.T) {
	ctx := context.Background()
	runPath := t.TempDir()
	qrels := filepath.Join(runPath, "qrels.txt")
	content := "q1 0 d1 1\nq1 0 d2 0\nq1 0 d3 1\n"
	if err := os.WriteFile(qrels, []byte(content), 0o644); err != nil {
		t.Fatalf("writing qrels: %v", err)
	}

	scorer, err := NewScorer(&config.ScoreSection{
		Metrics: []string{"map", "p@2"},
		Input:   config.ScoreInputSection{Format: "trec", Path: qrels},
	}, runPath, "results.txt")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := scorer.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	results := clair.Results{
		Query:  clair.Query{ID: "q1"},
		System: "bm25",
		Hits: []clair.Hit{
			{DocID: "d1", Rank: 1, Score: 3},
			{DocID: "d2", Rank: 2, Score: 2},
			{DocID: "d3", Rank: 3, Score: 1},
		},
	}
	if _, err := scorer.Process(ctx, results); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := scorer.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(runPath, FileName))
	if err != nil {
		t.Fatalf("reading scores: %v", err)
	}
	text := string(data)
	// AP = (1/1 + 2/3) / 2 = 0.8333, P@2 = 0.5.
	if !strings.Contains(text, "map\tq1\t0.8333") {
		t.Errorf("scores = %q", text)
	}
	if !strings.Contains(text, "p@2\tall\t0.5000") {
		t.Errorf("scores = %q", text)
	}
}

func TestScorerReduceReadsPartitions(t *testing.T) {
	ctx := context.Background()
	runPath := t.TempDir()
	qrels := filepath.Join(runPath, "qrels.txt")
	if err := os.WriteFile(qrels, []byte("q1 0 d1 1\nq2 0 d2 1\n"), 0o644); err != nil {
		t.Fatalf("writing qrels: %v", err)
	}
	parts := []string{filepath.Join(runPath, "part_0"), filepath.Join(runPath, "part_1")}
	lines := []string{"q1 Q0 d1 1 1.000000 bm25\n", "q2 Q0 d9 1 1.000000 bm25\n"}
	for i, part := range parts {
		if err := os.MkdirAll(part, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(filepath.Join(part, "results.txt"), []byte(lines[i]), 0o644); err != nil {
			t.Fatalf("writing results: %v", err)
		}
	}

	scorer, err := NewScorer(&config.ScoreSection{
		Metrics: []string{"map"},
		Input:   config.ScoreInputSection{Path: qrels},
	}, runPath, "results.txt")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := scorer.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := scorer.Reduce(ctx, parts); err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if err := scorer.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(runPath, FileName))
	if err != nil {
		t.Fatalf("reading scores: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "map\tq1\t1.0000") {
		t.Errorf("scores = %q", text)
	}
	if !strings.Contains(text, "map\tq2\t0.0000") {
		t.Errorf("scores = %q", text)
	}
	if !strings.Contains(text, "map\tall\t0.5000") {
		t.Errorf("scores = %q", text)
	}
}
