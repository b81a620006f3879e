package config

import (
	"path/filepath"
	"strings"

	"github.com/cognicore/clair/pkg/clair/internalerr"
)

// Default output directory names, relative to run.path.
const (
	DefaultDBPath         = "database"
	DefaultDocsOutput     = "docs"
	DefaultIndexOutput    = "index"
	DefaultTopicsOutput   = "raw_queries"
	DefaultQueriesOutput  = "processed_queries"
	DefaultRetrieveOutput = "retrieve"
	DefaultRerankOutput   = "rerank"
	DefaultResultsFile    = "results.txt"
	DefaultRetrieveNumber = 1000
	DefaultStage1Interval = 10000
	DefaultStage2Interval = 10
	DefaultTokenize       = "whitespace"
	DefaultScoreFormat    = "trec"
)

// Load reads, transforms, binds and preprocesses a config file.
func Load(path string, overrides []string) (*Config, error) {
	service := NewService(overrides)
	root, err := service.ReadFile(path)
	if err != nil {
		return nil, err
	}
	conf, err := service.Bind(root)
	if err != nil {
		return nil, err
	}
	if err := Preprocess(conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// Preprocess validates required settings, fills defaults, roots artifact
// paths under run.path and copies paths between dependent sections.
func Preprocess(conf *Config) error {
	if err := preprocessRun(&conf.Run); err != nil {
		return err
	}
	if conf.Documents != nil {
		if err := preprocessInput(&conf.Documents.Input, "documents"); err != nil {
			return err
		}
		preprocessProcess(&conf.Documents.Process)
		if conf.Documents.DB == nil {
			conf.Documents.DB = &PathSection{Path: DefaultDBPath}
		}
		defaultOutput(&conf.Documents.Output, "", DefaultDocsOutput)
	}
	if conf.Index != nil {
		if conf.Index.Name == "" {
			return internalerr.Config("index.name is not set")
		}
		defaultOutput(&conf.Index.Output, DefaultIndexOutput, DefaultIndexOutput)
	}
	if conf.Topics != nil {
		if err := preprocessInput(&conf.Topics.Input, "topics"); err != nil {
			return err
		}
		if conf.Topics.Fields == "" {
			conf.Topics.Fields = "title"
		}
		defaultOutput(&conf.Topics.Output, DefaultTopicsOutput, DefaultTopicsOutput)
	}
	if conf.Queries != nil {
		if conf.Queries.Input != nil {
			if err := preprocessInput(conf.Queries.Input, "queries"); err != nil {
				return err
			}
		}
		preprocessProcess(&conf.Queries.Process)
		defaultOutput(&conf.Queries.Output, DefaultQueriesOutput, DefaultQueriesOutput)
	}
	if conf.Retrieve != nil {
		if conf.Retrieve.Name == "" {
			return internalerr.Config("retrieve.name is not set")
		}
		if conf.Retrieve.Number <= 0 {
			conf.Retrieve.Number = DefaultRetrieveNumber
		}
		defaultOutput(&conf.Retrieve.Output, DefaultRetrieveOutput, DefaultRetrieveOutput)
	}
	if conf.Rerank != nil {
		if conf.Rerank.Name == "" {
			return internalerr.Config("rerank.name is not set")
		}
		defaultOutput(&conf.Rerank.Output, DefaultRerankOutput, DefaultRerankOutput)
	}
	if conf.Score != nil {
		if conf.Score.Input.Path == "" {
			return internalerr.Config("score.input.path is not set")
		}
		if conf.Score.Input.Format == "" {
			conf.Score.Input.Format = DefaultScoreFormat
		}
		if len(conf.Score.Metrics) == 0 {
			conf.Score.Metrics = []string{"map", "ndcg@10", "recall@100"}
		}
	}

	rootPaths(conf)
	return fillDependentPaths(conf)
}

func preprocessRun(run *RunSection) error {
	if run.Name == "" {
		return internalerr.Config("run.name is not set")
	}
	if run.Path == "" {
		run.Path = filepath.Join("runs", pathFromName(run.Name))
	}
	if run.Results == "" {
		run.Results = DefaultResultsFile
	}
	if run.Parallel != nil && run.Parallel.Jobs < 1 {
		return internalerr.Config("run.parallel.jobs must be positive")
	}
	var err error
	if run.Stage1, err = preprocessStage(run.Stage1, "stage1", DefaultStage1Interval); err != nil {
		return err
	}
	run.Stage2, err = preprocessStage(run.Stage2, "stage2", DefaultStage2Interval)
	return err
}

func preprocessStage(stage *StageSection, name string, interval int) (*StageSection, error) {
	if stage == nil {
		stage = &StageSection{Enabled: true}
	}
	if !stage.Enabled {
		return stage, nil
	}
	if stage.Mode == "" {
		stage.Mode = ModeStreaming
	}
	if stage.Mode != ModeStreaming && stage.Mode != ModeBatch {
		return nil, internalerr.Config("run.%s.mode must be %s or %s", name, ModeStreaming, ModeBatch)
	}
	if stage.ProgressInterval <= 0 {
		stage.ProgressInterval = interval
	}
	return stage, nil
}

func preprocessInput(input *InputSection, section string) error {
	if input.Format == "" {
		return internalerr.Config("%s.input.format is not set", section)
	}
	if len(input.Path) == 0 {
		return internalerr.Config("%s.input.path is not set", section)
	}
	if input.Encoding == "" {
		input.Encoding = "utf-8"
	}
	switch strings.ToLower(input.Encoding) {
	case "utf-8", "utf8":
	default:
		return internalerr.Config("%s is not a supported file encoding", input.Encoding)
	}
	return nil
}

func preprocessProcess(p *ProcessSection) {
	if p.Lowercase == nil {
		enabled := true
		p.Lowercase = &enabled
	}
	if p.Tokenize == "" {
		p.Tokenize = DefaultTokenize
	}
}

// defaultOutput fills a missing or pathless output. An empty nilPath
// leaves a nil output disabled.
func defaultOutput(out **Output, nilPath, enabledPath string) {
	if *out == nil {
		if nilPath == "" {
			*out = &Output{}
			return
		}
		*out = &Output{Enabled: true, Path: nilPath}
		return
	}
	if (*out).Enabled && (*out).Path == "" {
		(*out).Path = enabledPath
	}
}

// pathFromName turns a run name into a directory name. Spaces become
// dashes and quotes and commas are dropped.
func pathFromName(name string) string {
	name = strings.ReplaceAll(name, " ", "-")
	return strings.Map(func(r rune) rune {
		switch r {
		case '\'', '"', ',':
			return -1
		}
		return r
	}, name)
}

// rootPaths prefixes relative artifact paths with run.path.
func rootPaths(conf *Config) {
	base := conf.Run.Path
	rootOutput := func(out *Output) {
		if out != nil && out.Enabled && !filepath.IsAbs(out.Path) {
			out.Path = filepath.Join(base, out.Path)
		}
	}
	if conf.Documents != nil {
		rootOutput(conf.Documents.Output)
		if !filepath.IsAbs(conf.Documents.DB.Path) {
			conf.Documents.DB.Path = filepath.Join(base, conf.Documents.DB.Path)
		}
	}
	if conf.Index != nil {
		rootOutput(conf.Index.Output)
	}
	if conf.Topics != nil {
		rootOutput(conf.Topics.Output)
	}
	if conf.Queries != nil {
		rootOutput(conf.Queries.Output)
	}
	if conf.Retrieve != nil {
		rootOutput(conf.Retrieve.Output)
	}
	if conf.Rerank != nil {
		rootOutput(conf.Rerank.Output)
	}
}

// fillDependentPaths copies paths between sections that feed each other.
func fillDependentPaths(conf *Config) error {
	if conf.Retrieve != nil {
		if conf.Retrieve.Input == nil {
			conf.Retrieve.Input = &RetrieveInputSection{}
		}
		if conf.Retrieve.Input.Index == nil || conf.Retrieve.Input.Index.Path == "" {
			if conf.Index == nil || conf.Index.Output == nil || !conf.Index.Output.Enabled {
				return internalerr.Config("retrieve.input.index.path needs to be set")
			}
			conf.Retrieve.Input.Index = &PathSection{Path: conf.Index.Output.Path}
		}
	}
	if conf.Rerank != nil {
		if conf.Rerank.Input == nil {
			conf.Rerank.Input = &RerankInputSection{}
		}
		if conf.Rerank.Input.DB == nil || conf.Rerank.Input.DB.Path == "" {
			if conf.Documents == nil || conf.Documents.DB == nil {
				return internalerr.Config("rerank.input.db.path needs to be set")
			}
			conf.Rerank.Input.DB = &PathSection{Path: conf.Documents.DB.Path}
		}
	}
	return nil
}
