package job

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/docs"
	"github.com/cognicore/clair/pkg/clair/index"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/pipeline"
	"github.com/cognicore/clair/pkg/clair/rerank"
	"github.com/cognicore/clair/pkg/clair/results"
	"github.com/cognicore/clair/pkg/clair/retrieve"
	"github.com/cognicore/clair/pkg/clair/score"
	"github.com/cognicore/clair/pkg/clair/text"
	"github.com/cognicore/clair/pkg/clair/topics"
)

// Builder assembles the pipelines for a plan. When a planned task's
// predecessor is not in the plan, the builder falls back to the
// predecessor's artifact and merges its stored config into the run
// config so downstream checks see the original settings.
type Builder struct {
	conf   *config.Config
	logger *slog.Logger
}

// NewBuilder creates a builder over a preprocessed config.
func NewBuilder(conf *config.Config, logger *slog.Logger) *Builder {
	return &Builder{conf: conf, logger: logger}
}

// Stage1 builds the stage 1 pipeline, or nil when nothing is planned.
func (b *Builder) Stage1(plan *Plan) (pipeline.Pipeline, error) {
	if len(plan.Stage1) == 0 {
		return nil, nil
	}
	conf := b.conf
	runPath := conf.Run.Path
	var source pipeline.Source
	var tasks []pipeline.Task

	if has(plan.Stage1, artifact.Documents) {
		section := conf.Documents
		if err := clearIncomplete(section.DB.Path); err != nil {
			return nil, err
		}
		if section.Output.Enabled {
			if err := clearIncomplete(section.Output.Path); err != nil {
				return nil, err
			}
		}
		src, err := docs.NewSource(section.Input)
		if err != nil {
			return nil, err
		}
		source = src
		processor, err := docs.NewProcessor(section.Process)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, processor, docs.NewDatabaseWriter(section.DB.Path, runPath, conf))
		if section.Output.Enabled {
			tasks = append(tasks, docs.NewWriter(section.Output.Path, runPath, conf))
		}
	}

	if has(plan.Stage1, artifact.Index) {
		if err := clearIncomplete(conf.Index.Output.Path); err != nil {
			return nil, err
		}
		if source == nil {
			dir, err := b.documentsArtifact()
			if err != nil {
				return nil, err
			}
			src, err := docs.NewArtifactSource(dir)
			if err != nil {
				return nil, err
			}
			source = src
		}
		indexer, err := index.New(conf.Index, conf.Index.Output.Path, runPath, conf)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, indexer)
	}

	return b.pipeline(source, tasks, conf.Run.Stage1, config.DefaultStage1Interval), nil
}

// Stage2 builds the stage 2 pipeline, or nil when nothing is planned.
func (b *Builder) Stage2(plan *Plan) (pipeline.Pipeline, error) {
	if len(plan.Stage2) == 0 {
		return nil, nil
	}
	conf := b.conf
	runPath := conf.Run.Path
	var source pipeline.Source
	var tasks []pipeline.Task

	if has(plan.Stage2, artifact.Topics) {
		section := conf.Topics
		if section.Output.Enabled {
			if err := clearIncomplete(section.Output.Path); err != nil {
				return nil, err
			}
		}
		src, err := topics.NewTopicSource(section.Input)
		if err != nil {
			return nil, err
		}
		source = src
		processor, err := topics.NewTopicProcessor(section.Fields)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, processor)
		if section.Output.Enabled {
			tasks = append(tasks, topics.NewQueryWriter(section.Output.Path, runPath, conf, artifact.Topics))
		}
	}

	if has(plan.Stage2, artifact.Queries) {
		section := conf.Queries
		if err := clearIncomplete(section.Output.Path); err != nil {
			return nil, err
		}
		if source == nil {
			src, err := b.querySource(section)
			if err != nil {
				return nil, err
			}
			source = src
		}
		processor, err := topics.NewQueryProcessor(section.Process)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, processor, topics.NewQueryWriter(section.Output.Path, runPath, conf, artifact.Queries))
	}

	if has(plan.Stage2, artifact.Retrieve) {
		section := conf.Retrieve
		if err := clearIncomplete(section.Output.Path); err != nil {
			return nil, err
		}
		if source == nil {
			dir, err := b.queriesArtifact()
			if err != nil {
				return nil, err
			}
			src, err := topics.NewQueryArtifactSource(dir)
			if err != nil {
				return nil, err
			}
			if err := b.checkQueryLang(src); err != nil {
				return nil, err
			}
			source = src
		}
		retriever, err := retrieve.New(section)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, retriever, results.NewWriter(section.Output.Path, runPath, conf, artifact.Retrieve))
	}

	if has(plan.Stage2, artifact.Rerank) {
		section := conf.Rerank
		if err := clearIncomplete(section.Output.Path); err != nil {
			return nil, err
		}
		if source == nil {
			dir, err := b.resultsArtifact()
			if err != nil {
				return nil, err
			}
			src, err := results.NewArtifactSource(dir)
			if err != nil {
				return nil, err
			}
			source = src
		}
		reranker, err := rerank.New(section, section.Input.DB.Path)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, reranker, results.NewWriter(section.Output.Path, runPath, conf, artifact.Rerank))
	}

	if has(plan.Stage2, artifact.Retrieve) || has(plan.Stage2, artifact.Rerank) {
		tasks = append(tasks, results.NewTrecWriter(runPath, conf.Run.Results))
	}

	if has(plan.Stage2, artifact.Score) {
		scorer, err := score.NewScorer(conf.Score, runPath, conf.Run.Results)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, scorer)
	}

	if err := b.crossChecks(plan); err != nil {
		return nil, err
	}
	return b.pipeline(source, tasks, conf.Run.Stage2, config.DefaultStage2Interval), nil
}

// documentsArtifact locates the processed-document artifact for an
// indexing run whose ingest already happened.
func (b *Builder) documentsArtifact() (string, error) {
	conf := b.conf
	var dir string
	switch {
	case conf.Index.Input != nil && conf.Index.Input.Documents.Path != "":
		dir = conf.Index.Input.Documents.Path
	case conf.Documents != nil && conf.Documents.Output.Enabled:
		dir = conf.Documents.Output.Path
	default:
		return "", internalerr.Config("index.input.documents.path needs to be set")
	}
	return dir, b.useArtifact(dir)
}

// querySource resolves the queries task input, falling back to the raw
// query artifact of an earlier topics run.
func (b *Builder) querySource(section *config.QueriesSection) (pipeline.Source, error) {
	if section.Input != nil {
		return topics.NewQuerySource(*section.Input)
	}
	if b.conf.Topics == nil || !b.conf.Topics.Output.Enabled {
		return nil, internalerr.Config("queries.input.path needs to be set")
	}
	dir := b.conf.Topics.Output.Path
	if err := b.useArtifact(dir); err != nil {
		return nil, err
	}
	src, err := topics.NewQueryArtifactSource(dir)
	if err != nil {
		return nil, err
	}
	if err := b.checkQueryLang(src); err != nil {
		return nil, err
	}
	return src, nil
}

// checkQueryLang peeks the first stored query and compares its language
// with the configured document language. Query artifacts written by an
// earlier invocation can disagree with the documents of this one.
func (b *Builder) checkQueryLang(src pipeline.Peeker) error {
	conf := b.conf
	if conf.Documents == nil || conf.Documents.Input.Lang == "" {
		return nil
	}
	docLang, err := text.StandardizeLang(conf.Documents.Input.Lang)
	if err != nil {
		return err
	}
	item, err := src.Peek()
	if err != nil {
		return nil
	}
	query, ok := item.(clair.Query)
	if !ok || query.Lang == "" {
		return nil
	}
	if query.Lang != docLang {
		return internalerr.Config("Query language %s does not match document language %s",
			query.Lang, docLang)
	}
	return nil
}

// queriesArtifact locates the processed-query artifact for a retrieval
// run whose query processing already happened.
func (b *Builder) queriesArtifact() (string, error) {
	conf := b.conf
	var dir string
	switch {
	case conf.Retrieve.Input != nil && conf.Retrieve.Input.Queries != nil && conf.Retrieve.Input.Queries.Path != "":
		dir = conf.Retrieve.Input.Queries.Path
	case conf.Queries != nil && conf.Queries.Output.Enabled:
		dir = conf.Queries.Output.Path
	default:
		return "", internalerr.Config("retrieve.input.queries.path needs to be set")
	}
	return dir, b.useArtifact(dir)
}

// resultsArtifact locates the retrieval results for a rerank-only run.
func (b *Builder) resultsArtifact() (string, error) {
	conf := b.conf
	var dir string
	switch {
	case conf.Rerank.Input != nil && conf.Rerank.Input.Results != nil && conf.Rerank.Input.Results.Path != "":
		dir = conf.Rerank.Input.Results.Path
	case conf.Retrieve != nil && conf.Retrieve.Output.Enabled:
		dir = conf.Retrieve.Output.Path
	default:
		return "", internalerr.Config("rerank.input.results.path needs to be set")
	}
	return dir, b.useArtifact(dir)
}

// useArtifact verifies an artifact is complete and merges its stored
// config into the run config. An artifact without a stored config is
// accepted with a warning so externally built outputs can be used.
func (b *Builder) useArtifact(dir string) error {
	if !artifact.IsComplete(dir) {
		return internalerr.Config("artifact at %s is not complete", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, artifact.ConfigFile)); err != nil {
		b.logger.Warn("artifact has no stored config", "dir", dir)
		return nil
	}
	return artifact.Merge(b.conf, dir)
}

// crossChecks validates settings that span tasks which may have run in
// different invocations.
func (b *Builder) crossChecks(plan *Plan) error {
	conf := b.conf
	if plan.Has(artifact.Retrieve) && conf.Documents != nil && conf.Queries != nil {
		if !conf.Documents.Process.Equal(conf.Queries.Process) {
			return internalerr.Config("Text processing for documents and queries does not match")
		}
	}
	if plan.Has(artifact.Rerank) && !plan.Has(artifact.Documents) && conf.Documents != nil {
		if err := b.checkDocumentSources(); err != nil {
			return err
		}
	}
	return nil
}

// checkDocumentSources compares the configured document input with the
// one recorded in the document store artifact. Only file basenames are
// compared; the same collection is often mounted at different paths.
func (b *Builder) checkDocumentSources() error {
	conf := b.conf
	dbDir := conf.Rerank.Input.DB.Path
	if _, err := os.Stat(filepath.Join(dbDir, artifact.ConfigFile)); err != nil {
		b.logger.Warn("document store has no stored config", "dir", dbDir)
		return nil
	}
	stored, err := artifact.Load(dbDir)
	if err != nil {
		return err
	}
	if stored.Documents == nil {
		return nil
	}
	current := basenames(conf.Documents.Input.Path)
	recorded := basenames(stored.Documents.Input.Path)
	if len(current) != len(recorded) {
		return internalerr.Config("Documents in config do not match documents used to build the database")
	}
	for i := range current {
		if current[i] != recorded[i] {
			return internalerr.Config("Documents in config do not match documents used to build the database")
		}
	}
	return nil
}

func basenames(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

// pipeline wraps source and tasks according to the stage settings.
func (b *Builder) pipeline(source pipeline.Source, tasks []pipeline.Task, stage *config.StageSection, interval int) pipeline.Pipeline {
	mode := config.ModeStreaming
	batchSize := 0
	start, stop := 0, 0
	if stage != nil {
		if stage.Mode != "" {
			mode = stage.Mode
		}
		batchSize = stage.BatchSize
		if stage.ProgressInterval > 0 {
			interval = stage.ProgressInterval
		}
		start, stop = stage.Start, stage.Stop
	}
	if start > 0 || stop > 0 {
		source = pipeline.NewSlicedSource(source, start, stop)
	}
	if mode == config.ModeBatch {
		return pipeline.NewBatchPipeline(source, tasks, b.logger, interval, batchSize)
	}
	return pipeline.NewStreamingPipeline(source, tasks, b.logger, interval)
}

func has(tasks []artifact.Task, task artifact.Task) bool {
	for _, t := range tasks {
		if t == task {
			return true
		}
	}
	return false
}

// clearIncomplete removes a stale output directory so the task starts
// from scratch. Complete artifacts are never removed here; the planner
// does not schedule tasks whose artifacts are complete.
func clearIncomplete(dir string) error {
	if dir == "" || artifact.IsComplete(dir) {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return internalerr.Wrap(internalerr.KindData, err, "clearing incomplete output %s", dir)
	}
	return nil
}
