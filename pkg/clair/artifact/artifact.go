// Package artifact tracks task outputs on disk. A task output directory is
// an artifact once it holds a sentinel file and a copy of the config that
// produced it; complete artifacts are reused instead of recomputed.
package artifact

import (
	"os"
	"path/filepath"

	"github.com/dominikbraun/graph"

	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
)

// Task identifies a pipeline task and its config section.
type Task string

const (
	Documents Task = "documents"
	Index     Task = "index"
	Topics    Task = "topics"
	Queries   Task = "queries"
	Retrieve  Task = "retrieve"
	Rerank    Task = "rerank"
	Score     Task = "score"
)

const (
	// CompleteFile marks an output directory as a finished artifact.
	CompleteFile = ".complete"
	// ConfigFile holds the scoped config that produced an artifact.
	ConfigFile = "config.yml"
)

var order = mustOrder()

// mustOrder derives the canonical task order from the dependency chain
// between the tasks of the two stages.
func mustOrder() []Task {
	g := graph.New(func(t Task) Task { return t }, graph.Directed(), graph.Acyclic())
	chain := []Task{Documents, Index, Topics, Queries, Retrieve, Rerank, Score}
	for _, t := range chain {
		if err := g.AddVertex(t); err != nil {
			panic(err)
		}
	}
	for i := 1; i < len(chain); i++ {
		if err := g.AddEdge(chain[i-1], chain[i]); err != nil {
			panic(err)
		}
	}
	sorted, err := graph.StableTopologicalSort(g, func(a, b Task) bool { return a < b })
	if err != nil {
		panic(err)
	}
	return sorted
}

// Order returns the canonical task order.
func Order() []Task {
	out := make([]Task, len(order))
	copy(out, order)
	return out
}

// After returns the tasks strictly after task in canonical order.
func After(task Task) []Task {
	for i, t := range order {
		if t == task {
			return Order()[i+1:]
		}
	}
	return nil
}

// IsComplete reports whether dir is a finished artifact.
func IsComplete(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, CompleteFile))
	return err == nil
}

// MarkComplete creates the sentinel in dir.
func MarkComplete(dir string) error {
	f, err := os.Create(filepath.Join(dir, CompleteFile))
	if err != nil {
		return internalerr.Wrap(internalerr.KindData, err, "marking %s complete", dir)
	}
	return f.Close()
}

// Scoped returns a copy of conf reduced to what the given task could have
// depended on: sections after it in canonical order are dropped, and score
// never travels with an artifact.
func Scoped(conf *config.Config, task Task) (*config.Config, error) {
	scoped, err := conf.Clone()
	if err != nil {
		return nil, err
	}
	for _, t := range After(task) {
		clearSection(scoped, t)
	}
	clearSection(scoped, Score)
	return scoped, nil
}

// Persist writes the scoped config into an artifact directory, creating it
// if needed.
func Persist(dir string, conf *config.Config, task Task) error {
	scoped, err := Scoped(conf, task)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return internalerr.Wrap(internalerr.KindData, err, "creating artifact directory")
	}
	return config.WriteFile(filepath.Join(dir, ConfigFile), scoped)
}

// Load reads the config stored with an artifact. No preprocessing is
// applied; the stored config was preprocessed when it was written.
func Load(dir string) (*config.Config, error) {
	service := config.NewService(nil)
	root, err := service.ReadFile(filepath.Join(dir, ConfigFile))
	if err != nil {
		return nil, err
	}
	return service.Bind(root)
}

// Merge loads the config of the artifact in dir and splices its task
// sections into conf where conf has none. This recovers the settings of
// tasks that ran in an earlier invocation.
func Merge(conf *config.Config, dir string) error {
	stored, err := Load(dir)
	if err != nil {
		return internalerr.Wrap(internalerr.KindConfig, err, "reading artifact config in %s", dir)
	}
	if conf.Documents == nil {
		conf.Documents = stored.Documents
	}
	if conf.Index == nil {
		conf.Index = stored.Index
	}
	if conf.Topics == nil {
		conf.Topics = stored.Topics
	}
	if conf.Queries == nil {
		conf.Queries = stored.Queries
	}
	if conf.Retrieve == nil {
		conf.Retrieve = stored.Retrieve
	}
	if conf.Rerank == nil {
		conf.Rerank = stored.Rerank
	}
	return nil
}

// PartPath maps a task output path into a partition directory. The
// output's location relative to the run directory is preserved.
func PartPath(partRoot, runPath, outputPath string) string {
	rel, err := filepath.Rel(runPath, outputPath)
	if err != nil {
		return filepath.Join(partRoot, filepath.Base(outputPath))
	}
	if rel == "." {
		return partRoot
	}
	return filepath.Join(partRoot, rel)
}

func clearSection(conf *config.Config, task Task) {
	switch task {
	case Documents:
		conf.Documents = nil
	case Index:
		conf.Index = nil
	case Topics:
		conf.Topics = nil
	case Queries:
		conf.Queries = nil
	case Retrieve:
		conf.Retrieve = nil
	case Rerank:
		conf.Rerank = nil
	case Score:
		conf.Score = nil
	}
}
