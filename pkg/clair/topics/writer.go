package topics

import (
	"context"
	"encoding/json"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/pipeline"
)

// QueryWriter saves queries as a jsonl artifact. It serves both the raw
// query artifact written by the topics task and the processed query
// artifact written by the queries task; the task parameter scopes the
// persisted config accordingly.
type QueryWriter struct {
	conf *config.Config
	task artifact.Task
	dir  string
	name string
	file *artifact.FileWriter
}

// NewQueryWriter creates a query writer for dir.
func NewQueryWriter(dir, runPath string, conf *config.Config, task artifact.Task) *QueryWriter {
	return &QueryWriter{
		conf: conf,
		task: task,
		dir:  dir,
		name: string(task) + ".writer",
		file: artifact.NewFileWriter(dir, runPath, QueryFileName),
	}
}

func (w *QueryWriter) Name() string { return w.name }

func (w *QueryWriter) Begin(context.Context) error {
	if err := artifact.Persist(w.dir, w.conf, w.task); err != nil {
		return err
	}
	return w.file.Open()
}

func (w *QueryWriter) Process(_ context.Context, item pipeline.Item) (pipeline.Item, error) {
	query := item.(clair.Query)
	line, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	if err := w.file.WriteLine(line); err != nil {
		return nil, err
	}
	return query, nil
}

func (w *QueryWriter) Reduce(_ context.Context, parts []string) error {
	return w.file.Append(parts)
}

func (w *QueryWriter) End(context.Context) error {
	if err := w.file.Close(); err != nil {
		return err
	}
	return artifact.MarkComplete(w.dir)
}
