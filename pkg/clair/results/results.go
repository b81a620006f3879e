// Package results persists ranked result lists. Each retrieval task
// writes a jsonl artifact of full result records; the run also gets one
// TREC-format results file for external tooling.
package results

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/pipeline"
)

// FileName is the result artifact file.
const FileName = "results.jsonl"

// Writer saves result records as a jsonl artifact. The task parameter is
// retrieve or rerank, whichever produced the results.
type Writer struct {
	conf *config.Config
	task artifact.Task
	dir  string
	file *artifact.FileWriter
}

// NewWriter creates a result writer for dir.
func NewWriter(dir, runPath string, conf *config.Config, task artifact.Task) *Writer {
	return &Writer{conf: conf, task: task, dir: dir, file: artifact.NewFileWriter(dir, runPath, FileName)}
}

func (w *Writer) Name() string { return string(w.task) + ".writer" }

func (w *Writer) Begin(context.Context) error {
	if err := artifact.Persist(w.dir, w.conf, w.task); err != nil {
		return err
	}
	return w.file.Open()
}

func (w *Writer) Process(_ context.Context, item pipeline.Item) (pipeline.Item, error) {
	results := item.(clair.Results)
	line, err := json.Marshal(results)
	if err != nil {
		return nil, err
	}
	if err := w.file.WriteLine(line); err != nil {
		return nil, err
	}
	return results, nil
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

// NewArtifactSource reads a result artifact directory back as a source,
// for reranking runs that reuse earlier retrieval output.
func NewArtifactSource(dir string) (*pipeline.GlobSource, error) {
	return pipeline.NewGlobSource("results", []string{filepath.Join(dir, FileName)},
		func(path string) (pipeline.ItemReader, error) {
			return newReader(path)
		})
}

type reader struct {
	file    *os.File
	scanner *bufio.Scanner
	path    string
	line    int
}

func newReader(path string) (*reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, internalerr.Wrap(internalerr.KindConfig, err, "opening results file")
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	return &reader{file: file, scanner: scanner, path: path}, nil
}

func (r *reader) Next() (pipeline.Item, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		var results clair.Results
		if err := json.Unmarshal([]byte(line), &results); err != nil {
			return nil, internalerr.Parse("bad results on line %d of %s: %v", r.line, r.path, err)
		}
		return results, nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}

func (r *reader) Close() error { return r.file.Close() }

// TrecWriter writes the run-level results file in the standard TREC
// format: qid Q0 docid rank score system.
type TrecWriter struct {
	pipeline.TaskBase
	file *artifact.FileWriter
}

// NewTrecWriter creates the TREC results writer. The file lands directly
// in the run directory under the configured name.
func NewTrecWriter(runPath, name string) *TrecWriter {
	return &TrecWriter{file: artifact.NewFileWriter(runPath, runPath, name)}
}

func (w *TrecWriter) Name() string { return "results.trec" }

func (w *TrecWriter) Begin(context.Context) error {
	return w.file.Open()
}

func (w *TrecWriter) Process(_ context.Context, item pipeline.Item) (pipeline.Item, error) {
	results := item.(clair.Results)
	for _, hit := range results.Hits {
		line := fmt.Sprintf("%s Q0 %s %d %.6f %s",
			results.Query.ID, hit.DocID, hit.Rank, hit.Score, results.System)
		if err := w.file.WriteLine([]byte(line)); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (w *TrecWriter) Reduce(_ context.Context, parts []string) error {
	return w.file.Append(parts)
}

func (w *TrecWriter) End(context.Context) error {
	return w.file.Close()
}
