package docs

import (
	"context"
	"encoding/json"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/pipeline"
)

// Writer saves processed documents as a jsonl artifact. Indexing runs
// that resume later read the artifact instead of reprocessing the input.
type Writer struct {
	conf *config.Config
	file *artifact.FileWriter
	dir  string
}

// NewWriter creates the processed-document writer for dir.
func NewWriter(dir, runPath string, conf *config.Config) *Writer {
	return &Writer{conf: conf, dir: dir, file: artifact.NewFileWriter(dir, runPath, FileName)}
}

func (w *Writer) Name() string { return "documents.writer" }

func (w *Writer) Begin(context.Context) error {
	if err := artifact.Persist(w.dir, w.conf, artifact.Documents); err != nil {
		return err
	}
	return w.file.Open()
}

func (w *Writer) Process(_ context.Context, item pipeline.Item) (pipeline.Item, error) {
	doc := item.(clair.Doc)
	line, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	if err := w.file.WriteLine(line); err != nil {
		return nil, err
	}
	return doc, nil
}

func (w *Writer) Reduce(_ context.Context, parts []string) error {
	return w.file.Append(parts)
}

func (w *Writer) End(context.Context) error {
	if err := w.file.Close(); err != nil {
		return err
	}
	return artifact.MarkComplete(w.dir)
}
