package docs

import (
	"context"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/pipeline"
	"github.com/cognicore/clair/pkg/clair/store/sqlite"
)

// DatabaseWriter stores original documents keyed by id. The database is
// its own artifact so a later rerank run can reuse it without the
// document input files.
type DatabaseWriter struct {
	dir     string
	runPath string
	conf    *config.Config
	store   *sqlite.Store
}

// NewDatabaseWriter creates the database task writing into dir.
func NewDatabaseWriter(dir, runPath string, conf *config.Config) *DatabaseWriter {
	return &DatabaseWriter{dir: dir, runPath: runPath, conf: conf}
}

func (w *DatabaseWriter) Name() string { return "documents.database" }

func (w *DatabaseWriter) Begin(context.Context) error {
	if err := artifact.Persist(w.dir, w.conf, artifact.Documents); err != nil {
		return err
	}
	store, err := sqlite.Open(w.dir)
	if err != nil {
		return err
	}
	w.store = store
	return nil
}

func (w *DatabaseWriter) Process(ctx context.Context, item pipeline.Item) (pipeline.Item, error) {
	doc := item.(clair.Doc)
	if err := w.store.Put(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (w *DatabaseWriter) Reduce(ctx context.Context, parts []string) error {
	dirs := make([]string, len(parts))
	for i, part := range parts {
		dirs[i] = artifact.PartPath(part, w.runPath, w.dir)
	}
	return w.store.Merge(ctx, dirs)
}

func (w *DatabaseWriter) End(context.Context) error {
	if err := w.store.Close(); err != nil {
		return err
	}
	return artifact.MarkComplete(w.dir)
}
