package topics

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

const trecTopics = `<top>
<num> Number: 301
<title> International Organized Crime
<desc> Description:
Identify organizations that participate in international criminal
activity.
<narr> Narrative:
A relevant document must identify the organization.
</top>
<top>
<num> Number: 302
<title> Poliomyelitis and Post-Polio
</top>
`

func TestTrecTopicReader(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "topics.txt", trecTopics)
	source, err := NewTopicSource(config.InputSection{
		Format: "trec", Lang: "en", Path: config.StringList{path},
	})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	var topics []clair.Topic
	for {
		item, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		topics = append(topics, item.(clair.Topic))
	}
	if len(topics) != 2 {
		t.Fatalf("got %d topics", len(topics))
	}
	if topics[0].ID != "301" {
		t.Errorf("id = %s", topics[0].ID)
	}
	if topics[0].Title != "International Organized Crime" {
		t.Errorf("title = %q", topics[0].Title)
	}
	if !strings.HasPrefix(topics[0].Desc, "Identify organizations") {
		t.Errorf("desc = %q", topics[0].Desc)
	}
	if strings.Contains(topics[0].Desc, "\n") {
		t.Error("desc should be collapsed onto one line")
	}
	if topics[0].Lang != "eng" {
		t.Errorf("lang = %s", topics[0].Lang)
	}
	if topics[1].ID != "302" || topics[1].Desc != "" {
		t.Errorf("topic 2 = %+v", topics[1])
	}
}

func TestJSONLTopicReader(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "topics.jsonl",
		`{"id": "t1", "title": "first", "desc": "about first things"}`+"\n")
	source, err := NewTopicSource(config.InputSection{
		Format: "jsonl", Lang: "ru", Path: config.StringList{path},
	})
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	item, err := source.Next()
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	topic := item.(clair.Topic)
	if topic.ID != "t1" || topic.Title != "first" || topic.Lang != "rus" {
		t.Errorf("topic = %+v", topic)
	}
}

func TestTopicProcessorFields(t *testing.T) {
	topic := clair.Topic{ID: "t1", Lang: "eng", Title: "the title", Desc: "the desc", Narrative: "the narr"}
	cases := map[string]string{
		"title":      "the title",
		"desc":       "the desc",
		"title+desc": "the title the desc",
	}
	for fields, want := range cases {
		p, err := NewTopicProcessor(fields)
		if err != nil {
			t.Fatalf("%s: %v", fields, err)
		}
		item, err := p.Process(context.Background(), topic)
		if err != nil {
			t.Fatalf("%s: %v", fields, err)
		}
		query := item.(clair.Query)
		if query.Text != want {
			t.Errorf("fields %s: text = %q, want %q", fields, query.Text, want)
		}
		if query.ID != "t1" || query.Lang != "eng" {
			t.Errorf("fields %s: query = %+v", fields, query)
		}
	}
	if _, err := NewTopicProcessor("title+body"); !internalerr.IsKind(err, internalerr.KindConfig) {
		t.Errorf("expected config error, got %v", err)
	}
}

func TestQueryProcessor(t *testing.T) {
	p, err := NewQueryProcessor(config.ProcessSection{})
	if err != nil {
		t.Fatalf("processor: %v", err)
	}
	item, err := p.Process(context.Background(), clair.Query{ID: "q1", Text: "The Query"})
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	query := item.(clair.Query)
	if query.Query != "the query" {
		t.Errorf("query = %q", query.Query)
	}
	if query.Text != "The Query" {
		t.Errorf("original text changed: %q", query.Text)
	}
}

func TestQueryWriterRoundTrip(t *testing.T) {
	ctx := context.Background()
	runPath := t.TempDir()
	dir := filepath.Join(runPath, "raw_queries")
	conf := &config.Config{Run: config.RunSection{Name: "test", Path: runPath}}
	writer := NewQueryWriter(dir, runPath, conf, artifact.Topics)
	if err := writer.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	queries := []clair.Query{
		{ID: "q1", Lang: "eng", Query: "one", Text: "One"},
		{ID: "q2", Lang: "eng", Query: "two", Text: "Two"},
	}
	for _, q := range queries {
		if _, err := writer.Process(ctx, q); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if err := writer.End(ctx); err != nil {
		t.Fatalf("end: %v", err)
	}
	if !artifact.IsComplete(dir) {
		t.Error("artifact should be complete")
	}

	source, err := NewQueryArtifactSource(dir)
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	peeked, err := source.Peek()
	if err != nil {
		t.Fatalf("peek: %v", err)
	}
	if peeked.(clair.Query).Lang != "eng" {
		t.Errorf("peeked = %+v", peeked)
	}
	var got []clair.Query
	for {
		item, err := source.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, item.(clair.Query))
	}
	if len(got) != 2 || got[0].ID != "q1" || got[1].Text != "Two" {
		t.Errorf("queries = %+v", got)
	}
}
