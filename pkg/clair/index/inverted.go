package index

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
)

// Posting is one document entry in a term's posting list.
type Posting struct {
	Doc string `json:"doc"`
	TF  int    `json:"tf"`
}

type postingsLine struct {
	Term     string    `json:"term"`
	Postings []Posting `json:"postings"`
}

type docLenLine struct {
	Doc string `json:"doc"`
	Len int    `json:"len"`
}

type meta struct {
	Docs     int     `json:"docs"`
	TotalLen int     `json:"total_len"`
	AvgLen   float64 `json:"avg_len"`
}

// invertedIndexer accumulates term postings in memory and writes the
// index at the end of the stage.
type invertedIndexer struct {
	dir      string
	runPath  string
	conf     *config.Config
	postings map[string]map[string]int
	docLens  map[string]int
}

func newInvertedIndexer(dir, runPath string, conf *config.Config) *invertedIndexer {
	return &invertedIndexer{
		dir:      dir,
		runPath:  runPath,
		conf:     conf,
		postings: map[string]map[string]int{},
		docLens:  map[string]int{},
	}
}

func (x *invertedIndexer) Name() string { return "index.inverted" }

func (x *invertedIndexer) Begin(context.Context) error {
	return artifact.Persist(x.dir, x.conf, artifact.Index)
}

func (x *invertedIndexer) Process(_ context.Context, item any) (any, error) {
	doc := item.(clair.Doc)
	terms := strings.Fields(doc.Text)
	x.docLens[doc.ID] = len(terms)
	for _, term := range terms {
		if x.postings[term] == nil {
			x.postings[term] = map[string]int{}
		}
		x.postings[term][doc.ID]++
	}
	return doc, nil
}

// Reduce loads the partition indexes into memory so End can write the
// combined index.
func (x *invertedIndexer) Reduce(_ context.Context, parts []string) error {
	for _, part := range parts {
		dir := artifact.PartPath(part, x.runPath, x.dir)
		idx, err := Load(dir)
		if err != nil {
			return fmt.Errorf("loading partition index %s: %w", dir, err)
		}
		for doc, length := range idx.DocLens {
			x.docLens[doc] = length
		}
		for term, postings := range idx.Postings {
			for _, p := range postings {
				if x.postings[term] == nil {
					x.postings[term] = map[string]int{}
				}
				x.postings[term][p.Doc] = p.TF
			}
		}
	}
	return nil
}

func (x *invertedIndexer) End(context.Context) error {
	if err := x.writePostings(); err != nil {
		return err
	}
	if err := x.writeDocLens(); err != nil {
		return err
	}
	if err := x.writeMeta(); err != nil {
		return err
	}
	return artifact.MarkComplete(x.dir)
}

func (x *invertedIndexer) writePostings() error {
	file, err := os.Create(filepath.Join(x.dir, PostingsFile))
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	terms := make([]string, 0, len(x.postings))
	for term := range x.postings {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	enc := json.NewEncoder(w)
	for _, term := range terms {
		byDoc := x.postings[term]
		line := postingsLine{Term: term, Postings: make([]Posting, 0, len(byDoc))}
		for doc, tf := range byDoc {
			line.Postings = append(line.Postings, Posting{Doc: doc, TF: tf})
		}
		sort.Slice(line.Postings, func(i, j int) bool { return line.Postings[i].Doc < line.Postings[j].Doc })
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (x *invertedIndexer) writeDocLens() error {
	file, err := os.Create(filepath.Join(x.dir, DocLensFile))
	if err != nil {
		return err
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	docs := make([]string, 0, len(x.docLens))
	for doc := range x.docLens {
		docs = append(docs, doc)
	}
	sort.Strings(docs)
	enc := json.NewEncoder(w)
	for _, doc := range docs {
		if err := enc.Encode(docLenLine{Doc: doc, Len: x.docLens[doc]}); err != nil {
			return err
		}
	}
	return w.Flush()
}

func (x *invertedIndexer) writeMeta() error {
	total := 0
	for _, length := range x.docLens {
		total += length
	}
	m := meta{Docs: len(x.docLens), TotalLen: total}
	if m.Docs > 0 {
		m.AvgLen = float64(total) / float64(m.Docs)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(x.dir, MetaFile), append(data, '\n'), 0o644)
}

// Index is a loaded inverted index.
type Index struct {
	Postings map[string][]Posting
	DocLens  map[string]int
	Docs     int
	AvgLen   float64
}

// Load reads an inverted index from dir.
func Load(dir string) (*Index, error) {
	idx := &Index{Postings: map[string][]Posting{}, DocLens: map[string]int{}}

	if err := readLines(filepath.Join(dir, PostingsFile), func(data []byte) error {
		var line postingsLine
		if err := json.Unmarshal(data, &line); err != nil {
			return err
		}
		idx.Postings[line.Term] = line.Postings
		return nil
	}); err != nil {
		return nil, err
	}

	if err := readLines(filepath.Join(dir, DocLensFile), func(data []byte) error {
		var line docLenLine
		if err := json.Unmarshal(data, &line); err != nil {
			return err
		}
		idx.DocLens[line.Doc] = line.Len
		return nil
	}); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, MetaFile))
	if err != nil {
		return nil, internalerr.Config("index at %s is missing its metadata: %v", dir, err)
	}
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, internalerr.Parse("bad index metadata in %s: %v", dir, err)
	}
	idx.Docs = m.Docs
	idx.AvgLen = m.AvgLen
	return idx, nil
}

func readLines(path string, handle func([]byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		return internalerr.Config("index file not found: %s", path)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := handle(line); err != nil {
			return internalerr.Parse("bad index record in %s: %v", path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
