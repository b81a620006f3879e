// Package score evaluates retrieval output against relevance judgments
// and writes the metric values for the run.
package score

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/pipeline"
)

// FileName is the metric output file in the run directory.
const FileName = "scores.txt"

// Scorer accumulates the final ranked lists of the run and writes one
// scores file at the end. It sits last in the stage 2 pipeline, behind
// the reranker when one is configured.
type Scorer struct {
	pipeline.TaskBase
	runPath     string
	resultsName string
	qrelsPath   string
	metrics     []metric

	qrels  map[string]map[string]int
	ranked map[string][]string
	order  []string
}

// NewScorer validates the metric names and creates the scorer.
func NewScorer(section *config.ScoreSection, runPath, resultsName string) (*Scorer, error) {
	if section.Input.Format != "" && section.Input.Format != "trec" {
		return nil, internalerr.Config("%s is not a valid judgments format", section.Input.Format)
	}
	scorer := &Scorer{
		runPath:     runPath,
		resultsName: resultsName,
		qrelsPath:   section.Input.Path,
		ranked:      map[string][]string{},
	}
	for _, name := range section.Metrics {
		m, err := parseMetric(name)
		if err != nil {
			return nil, err
		}
		scorer.metrics = append(scorer.metrics, m)
	}
	return scorer, nil
}

func (s *Scorer) Name() string { return "score" }

func (s *Scorer) Begin(context.Context) error {
	qrels, err := readQrels(s.qrelsPath)
	if err != nil {
		return err
	}
	s.qrels = qrels
	return nil
}

func (s *Scorer) Process(_ context.Context, item pipeline.Item) (pipeline.Item, error) {
	results := item.(clair.Results)
	s.record(results.Query.ID, hitIDs(results.Hits))
	return results, nil
}

// Reduce reads the partition results files so the parent scorer sees the
// full run.
func (s *Scorer) Reduce(_ context.Context, parts []string) error {
	for _, part := range parts {
		path := filepath.Join(artifact.PartPath(part, s.runPath, s.runPath), s.resultsName)
		if err := s.readResults(path); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scorer) End(context.Context) error {
	file, err := os.Create(filepath.Join(s.runPath, FileName))
	if err != nil {
		return fmt.Errorf("creating scores file: %w", err)
	}
	defer file.Close()
	w := bufio.NewWriter(file)
	for _, m := range s.metrics {
		sum := 0.0
		for _, qid := range s.order {
			value := m.compute(s.ranked[qid], s.qrels[qid])
			sum += value
			fmt.Fprintf(w, "%s\t%s\t%.4f\n", m.name, qid, value)
		}
		mean := 0.0
		if len(s.order) > 0 {
			mean = sum / float64(len(s.order))
		}
		fmt.Fprintf(w, "%s\tall\t%.4f\n", m.name, mean)
	}
	return w.Flush()
}

func (s *Scorer) record(qid string, docs []string) {
	if _, seen := s.ranked[qid]; !seen {
		s.order = append(s.order, qid)
	}
	s.ranked[qid] = docs
}

// readResults parses a TREC results file and records its ranked lists.
func (s *Scorer) readResults(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening results file: %w", err)
	}
	defer file.Close()

	type entry struct {
		doc  string
		rank int
	}
	byQuery := map[string][]entry{}
	var order []string
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 6 {
			return internalerr.Parse("bad results record on line %d of %s", line, path)
		}
		rank, err := strconv.Atoi(fields[3])
		if err != nil {
			return internalerr.Parse("bad rank on line %d of %s", line, path)
		}
		qid := fields[0]
		if _, seen := byQuery[qid]; !seen {
			order = append(order, qid)
		}
		byQuery[qid] = append(byQuery[qid], entry{doc: fields[2], rank: rank})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	for _, qid := range order {
		entries := byQuery[qid]
		sort.Slice(entries, func(i, j int) bool { return entries[i].rank < entries[j].rank })
		docs := make([]string, len(entries))
		for i, e := range entries {
			docs[i] = e.doc
		}
		s.record(qid, docs)
	}
	return nil
}

func hitIDs(hits []clair.Hit) []string {
	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.DocID
	}
	return ids
}

// readQrels parses TREC relevance judgments: qid, an ignored column, doc
// id and judgment.
func readQrels(path string) (map[string]map[string]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, internalerr.Config("judgments file not found: %s", path)
	}
	defer file.Close()

	qrels := map[string]map[string]int{}
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 4 {
			return nil, internalerr.Parse("bad judgment on line %d of %s", line, path)
		}
		rel, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, internalerr.Parse("bad judgment value on line %d of %s", line, path)
		}
		if qrels[fields[0]] == nil {
			qrels[fields[0]] = map[string]int{}
		}
		qrels[fields[0]][fields[2]] = rel
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return qrels, nil
}
