// Package docs implements stage 1 document handling: input readers, the
// document processor, the database writer and the processed-document
// artifact.
package docs

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/pipeline"
	"github.com/cognicore/clair/pkg/clair/text"
)

// FileName is the processed-document artifact file.
const FileName = "documents.jsonl"

// maxLineSize bounds a single document record.
const maxLineSize = 16 * 1024 * 1024

// NewSource creates the document source for an input section. The
// language code is standardized once and stamped on every document.
func NewSource(input config.InputSection) (*pipeline.GlobSource, error) {
	lang, err := text.StandardizeLang(input.Lang)
	if err != nil {
		return nil, err
	}
	var open pipeline.OpenFunc
	switch input.Format {
	case "jsonl":
		open = func(path string) (pipeline.ItemReader, error) {
			return newJSONLReader(path, lang)
		}
	case "tsv":
		open = func(path string) (pipeline.ItemReader, error) {
			return newTSVReader(path, lang)
		}
	default:
		return nil, internalerr.Config("%s is not a valid documents input format", input.Format)
	}
	return pipeline.NewGlobSource("documents", input.Path, open)
}

// NewArtifactSource reads a processed-document artifact back as a source,
// for indexing runs that reuse an earlier ingest.
func NewArtifactSource(dir string) (*pipeline.GlobSource, error) {
	return pipeline.NewGlobSource("documents", []string{filepath.Join(dir, FileName)},
		func(path string) (pipeline.ItemReader, error) {
			return newArtifactReader(path)
		})
}

type lineReader struct {
	file    *os.File
	scanner *bufio.Scanner
	path    string
	line    int
}

func openLines(path string) (*lineReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, internalerr.Wrap(internalerr.KindConfig, err, "opening input file")
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &lineReader{file: file, scanner: scanner, path: path}, nil
}

// nextLine returns the next non-blank line or io.EOF.
func (r *lineReader) nextLine() (string, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line != "" {
			return line, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *lineReader) Close() error { return r.file.Close() }

type jsonlReader struct {
	*lineReader
	lang string
}

func newJSONLReader(path, lang string) (*jsonlReader, error) {
	lines, err := openLines(path)
	if err != nil {
		return nil, err
	}
	return &jsonlReader{lineReader: lines, lang: lang}, nil
}

func (r *jsonlReader) Next() (pipeline.Item, error) {
	line, err := r.nextLine()
	if err != nil {
		return nil, err
	}
	var record struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Text  string `json:"text"`
		Date  string `json:"date"`
	}
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return nil, internalerr.Parse("bad json on line %d of %s: %v", r.line, r.path, err)
	}
	if record.ID == "" {
		return nil, internalerr.Parse("missing id on line %d of %s", r.line, r.path)
	}
	body := record.Text
	if record.Title != "" {
		body = record.Title + "\n" + record.Text
	}
	if body == "" {
		return nil, internalerr.Parse("missing text on line %d of %s", r.line, r.path)
	}
	return clair.Doc{ID: record.ID, Lang: r.lang, Text: body, Date: record.Date}, nil
}

type tsvReader struct {
	*lineReader
	lang string
}

func newTSVReader(path, lang string) (*tsvReader, error) {
	lines, err := openLines(path)
	if err != nil {
		return nil, err
	}
	return &tsvReader{lineReader: lines, lang: lang}, nil
}

func (r *tsvReader) Next() (pipeline.Item, error) {
	line, err := r.nextLine()
	if err != nil {
		return nil, err
	}
	id, body, found := strings.Cut(line, "\t")
	if !found || id == "" || body == "" {
		return nil, internalerr.Parse("bad tsv record on line %d of %s", r.line, r.path)
	}
	return clair.Doc{ID: id, Lang: r.lang, Text: body}, nil
}

type artifactReader struct {
	*lineReader
}

func newArtifactReader(path string) (*artifactReader, error) {
	lines, err := openLines(path)
	if err != nil {
		return nil, err
	}
	return &artifactReader{lineReader: lines}, nil
}

func (r *artifactReader) Next() (pipeline.Item, error) {
	line, err := r.nextLine()
	if err != nil {
		return nil, err
	}
	var doc clair.Doc
	if err := json.Unmarshal([]byte(line), &doc); err != nil {
		return nil, internalerr.Parse("bad document on line %d of %s: %v", r.line, r.path, err)
	}
	return doc, nil
}
