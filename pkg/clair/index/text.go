package index

import (
	"context"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/pipeline"
)

// textIndexer writes one document id per line. It is not searchable; it
// exists so an ingest-only run has a cheap index to validate against.
type textIndexer struct {
	dir  string
	conf *config.Config
	file *artifact.FileWriter
}

func newTextIndexer(dir, runPath string, conf *config.Config) *textIndexer {
	return &textIndexer{dir: dir, conf: conf, file: artifact.NewFileWriter(dir, runPath, TextFile)}
}

func (x *textIndexer) Name() string { return "index.text" }

func (x *textIndexer) Begin(context.Context) error {
	if err := artifact.Persist(x.dir, x.conf, artifact.Index); err != nil {
		return err
	}
	return x.file.Open()
}

func (x *textIndexer) Process(_ context.Context, item pipeline.Item) (pipeline.Item, error) {
	doc := item.(clair.Doc)
	if err := x.file.WriteLine([]byte(doc.ID)); err != nil {
		return nil, err
	}
	return doc, nil
}

func (x *textIndexer) Reduce(_ context.Context, parts []string) error {
	return x.file.Append(parts)
}

func (x *textIndexer) End(context.Context) error {
	if err := x.file.Close(); err != nil {
		return err
	}
	return artifact.MarkComplete(x.dir)
}
