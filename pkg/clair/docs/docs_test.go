package docs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/store/sqlite"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func drainDocs(t *testing.T, source interface{ Next() (any, error) }) []clair.Doc {
	t.Helper()
	var out []clair.Doc
	for {
		item, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		out = append(out, item.(clair.Doc))
	}
	return out
}

func TestJSONLReader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docs.jsonl", `
{"id": "d1", "title": "Cats", "text": "All about cats."}
{"id": "d2", "text": "All about dogs."}
`)
	source, err := NewSource(config.InputSection{
		Format: "jsonl", Lang: "en", Path: config.StringList{filepath.Join(dir, "*.jsonl")},
	})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	docs := drainDocs(t, source)
	if len(docs) != 2 {
		t.Fatalf("got %d docs", len(docs))
	}
	if docs[0].ID != "d1" || docs[0].Text != "Cats\nAll about cats." {
		t.Errorf("doc 1 = %+v", docs[0])
	}
	if docs[0].Lang != "eng" {
		t.Errorf("lang should be standardized, got %s", docs[0].Lang)
	}
	if docs[1].Text != "All about dogs." {
		t.Errorf("doc 2 = %+v", docs[1])
	}
}

func TestTSVReader(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "docs.tsv", "d1\tfirst doc\nd2\tsecond doc\n")
	source, err := NewSource(config.InputSection{
		Format: "tsv", Lang: "eng", Path: config.StringList{filepath.Join(dir, "docs.tsv")},
	})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	docs := drainDocs(t, source)
	if len(docs) != 2 || docs[1].ID != "d2" || docs[1].Text != "second doc" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestBadRecordsAreParseErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.jsonl", `{"text": "no id"}`+"\n")
	source, err := NewSource(config.InputSection{
		Format: "jsonl", Lang: "en", Path: config.StringList{filepath.Join(dir, "bad.jsonl")},
	})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	_, err = source.Next()
	if !internalerr.IsKind(err, internalerr.KindParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestGlobWithNoMatches(t *testing.T) {
	pattern := filepath.Join(t.TempDir(), "*.jsonl")
	_, err := NewSource(config.InputSection{Format: "jsonl", Lang: "en", Path: config.StringList{pattern}})
	if err == nil || !strings.Contains(err.Error(), "No files match pattern") {
		t.Fatalf("expected glob error, got %v", err)
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := NewSource(config.InputSection{Format: "xml", Lang: "en", Path: config.StringList{"x"}})
	if !internalerr.IsKind(err, internalerr.KindConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestEmptyFileIsParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.jsonl", "")
	source, err := NewSource(config.InputSection{
		Format: "jsonl", Lang: "en", Path: config.StringList{filepath.Join(dir, "empty.jsonl")},
	})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	_, err = source.Next()
	if !internalerr.IsKind(err, internalerr.KindParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestSourceCountAndPeek(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", `{"id": "d1", "text": "one"}`+"\n")
	writeFile(t, dir, "b.jsonl", `{"id": "d2", "text": "two"}`+"\n"+`{"id": "d3", "text": "three"}`+"\n")
	source, err := NewSource(config.InputSection{
		Format: "jsonl", Lang: "en", Path: config.StringList{filepath.Join(dir, "*.jsonl")},
	})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	count, err := source.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Errorf("count = %d", count)
	}
	peeked, err := source.Peek()
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	first, err := source.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if peeked.(clair.Doc).ID != first.(clair.Doc).ID {
		t.Error("peek should not consume the first item")
	}
	if first.(clair.Doc).ID != "d1" {
		t.Errorf("first = %+v", first)
	}
}

func TestProcessorKeepsOriginal(t *testing.T) {
	p, err := NewProcessor(config.ProcessSection{})
	if err != nil {
		t.Fatalf("processor: %v", err)
	}
	item, err := p.Process(context.Background(), clair.Doc{ID: "d1", Lang: "eng", Text: "The Cat"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	doc := item.(clair.Doc)
	if doc.Text != "the cat" {
		t.Errorf("text = %q", doc.Text)
	}
	if doc.OriginalText != "The Cat" {
		t.Errorf("original = %q", doc.OriginalText)
	}
}

func TestWriterArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	runPath := t.TempDir()
	dir := filepath.Join(runPath, "docs")
	conf := &config.Config{Run: config.RunSection{Name: "test", Path: runPath}}
	writer := NewWriter(dir, runPath, conf)
	if err := writer.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, doc := range []clair.Doc{
		{ID: "d1", Lang: "eng", Text: "one"},
		{ID: "d2", Lang: "eng", Text: "two"},
	} {
		if _, err := writer.Process(ctx, doc); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := writer.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}

	source, err := NewArtifactSource(dir)
	if err != nil {
		t.Fatalf("artifact source: %v", err)
	}
	docs := drainDocs(t, source)
	if len(docs) != 2 || docs[0].ID != "d1" || docs[1].Text != "two" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestDatabaseWriter(t *testing.T) {
	ctx := context.Background()
	runPath := t.TempDir()
	dir := filepath.Join(runPath, "database")
	conf := &config.Config{Run: config.RunSection{Name: "test", Path: runPath}}
	db := NewDatabaseWriter(dir, runPath, conf)
	if err := db.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	doc := clair.Doc{ID: "d1", Lang: "eng", Text: "the cat", OriginalText: "The Cat"}
	if _, err := db.Process(ctx, doc); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := db.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}

	store, err := sqlite.OpenReadOnly(dir, 4)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	got, err := store.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != "The Cat" {
		t.Errorf("stored text = %q, want the original", got.Text)
	}
}
