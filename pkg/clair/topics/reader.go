// Package topics implements stage 2 input handling: topic readers, the
// topic-to-query extraction, query processing and the query artifacts.
package topics

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

// QueryFileName is the query artifact file used by both the raw and the
// processed query artifacts.
const QueryFileName = "queries.jsonl"

// NewTopicSource creates the topic source for an input section.
func NewTopicSource(input config.InputSection) (*pipeline.GlobSource, error) {
	lang, err := text.StandardizeLang(input.Lang)
	if err != nil {
		return nil, err
	}
	var open pipeline.OpenFunc
	switch input.Format {
	case "jsonl":
		open = func(path string) (pipeline.ItemReader, error) {
			return newJSONLTopicReader(path, lang)
		}
	case "trec":
		open = func(path string) (pipeline.ItemReader, error) {
			return newTrecTopicReader(path, lang)
		}
	default:
		return nil, internalerr.Config("%s is not a valid topics input format", input.Format)
	}
	return pipeline.NewGlobSource("topics", input.Path, open)
}

// NewQuerySource creates a query source from an explicit input section.
func NewQuerySource(input config.InputSection) (*pipeline.GlobSource, error) {
	if input.Format != "" && input.Format != "jsonl" {
		return nil, internalerr.Config("%s is not a valid queries input format", input.Format)
	}
	return newQueryGlob(input.Path)
}

// NewQueryArtifactSource reads a query artifact directory back as a source.
func NewQueryArtifactSource(dir string) (*pipeline.GlobSource, error) {
	return newQueryGlob([]string{filepath.Join(dir, QueryFileName)})
}

func newQueryGlob(patterns []string) (*pipeline.GlobSource, error) {
	return pipeline.NewGlobSource("queries", patterns,
		func(path string) (pipeline.ItemReader, error) {
			return newQueryReader(path)
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
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &lineReader{file: file, scanner: scanner, path: path}, nil
}

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

type jsonlTopicReader struct {
	*lineReader
	lang string
}

func newJSONLTopicReader(path, lang string) (*jsonlTopicReader, error) {
	lines, err := openLines(path)
	if err != nil {
		return nil, err
	}
	return &jsonlTopicReader{lineReader: lines, lang: lang}, nil
}

func (r *jsonlTopicReader) Next() (pipeline.Item, error) {
	line, err := r.nextLine()
	if err != nil {
		return nil, err
	}
	var record struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Desc      string `json:"desc"`
		Narrative string `json:"narrative"`
	}
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return nil, internalerr.Parse("bad json on line %d of %s: %v", r.line, r.path, err)
	}
	if record.ID == "" || record.Title == "" {
		return nil, internalerr.Parse("topic on line %d of %s needs id and title", r.line, r.path)
	}
	return clair.Topic{
		ID: record.ID, Lang: r.lang,
		Title: record.Title, Desc: record.Desc, Narrative: record.Narrative,
	}, nil
}

type queryReader struct {
	*lineReader
}

func newQueryReader(path string) (*queryReader, error) {
	lines, err := openLines(path)
	if err != nil {
		return nil, err
	}
	return &queryReader{lineReader: lines}, nil
}

func (r *queryReader) Next() (pipeline.Item, error) {
	line, err := r.nextLine()
	if err != nil {
		return nil, err
	}
	var query clair.Query
	if err := json.Unmarshal([]byte(line), &query); err != nil {
		return nil, internalerr.Parse("bad query on line %d of %s: %v", r.line, r.path, err)
	}
	return query, nil
}
