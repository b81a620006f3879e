package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the typed form of a run configuration. Task sections are
// pointers; nil means the task is not configured.
type Config struct {
	Run       RunSection        `yaml:"run"`
	Documents *DocumentsSection `yaml:"documents,omitempty"`
	Index     *IndexSection     `yaml:"index,omitempty"`
	Topics    *TopicsSection    `yaml:"topics,omitempty"`
	Queries   *QueriesSection   `yaml:"queries,omitempty"`
	Retrieve  *RetrieveSection  `yaml:"retrieve,omitempty"`
	Rerank    *RerankSection    `yaml:"rerank,omitempty"`
	Score     *ScoreSection     `yaml:"score,omitempty"`
}

// Clone returns a deep copy via a yaml round trip.
func (c *Config) Clone() (*Config, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("cloning config: %w", err)
	}
	out := &Config{}
	if err := yaml.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("cloning config: %w", err)
	}
	return out, nil
}

// RunSection controls the run as a whole.
type RunSection struct {
	Name     string           `yaml:"name"`
	Path     string           `yaml:"path,omitempty"`
	Results  string           `yaml:"results,omitempty"`
	Parallel *ParallelSection `yaml:"parallel,omitempty"`
	Stage1   *StageSection    `yaml:"stage1,omitempty"`
	Stage2   *StageSection    `yaml:"stage2,omitempty"`
}

// ParallelSection enables partitioned execution.
type ParallelSection struct {
	Jobs int `yaml:"jobs"`
	// AllowPartial reduces the surviving partitions when some fail
	// instead of failing the whole job.
	AllowPartial bool `yaml:"allow_partial,omitempty"`
}

// Stage execution modes.
const (
	ModeStreaming = "streaming"
	ModeBatch     = "batch"
)

// StageSection configures one stage. In yaml it is either the boolean
// false (stage disabled) or a mapping.
type StageSection struct {
	Enabled          bool   `yaml:"-"`
	Mode             string `yaml:"mode,omitempty"`
	BatchSize        int    `yaml:"batch_size,omitempty"`
	ProgressInterval int    `yaml:"progress_interval,omitempty"`
	// Start and Stop bound the stage input. Stop of 0 means the end.
	// The parallel job sets these when slicing partitions.
	Start int `yaml:"start,omitempty"`
	Stop  int `yaml:"stop,omitempty"`
}

var stageKeys = map[string]bool{
	"mode": true, "batch_size": true, "progress_interval": true,
	"start": true, "stop": true,
}

func (s *StageSection) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!bool" {
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return err
		}
		*s = StageSection{Enabled: enabled}
		return nil
	}
	type plain struct {
		Mode             string `yaml:"mode"`
		BatchSize        int    `yaml:"batch_size"`
		ProgressInterval int    `yaml:"progress_interval"`
		Start            int    `yaml:"start"`
		Stop             int    `yaml:"stop"`
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if !stageKeys[node.Content[i].Value] {
			return fmt.Errorf("line %d: field %s not found in stage section",
				node.Content[i].Line, node.Content[i].Value)
		}
	}
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = StageSection{
		Enabled:          true,
		Mode:             p.Mode,
		BatchSize:        p.BatchSize,
		ProgressInterval: p.ProgressInterval,
		Start:            p.Start,
		Stop:             p.Stop,
	}
	return nil
}

func (s StageSection) MarshalYAML() (any, error) {
	if !s.Enabled {
		return false, nil
	}
	type plain struct {
		Mode             string `yaml:"mode,omitempty"`
		BatchSize        int    `yaml:"batch_size,omitempty"`
		ProgressInterval int    `yaml:"progress_interval,omitempty"`
		Start            int    `yaml:"start,omitempty"`
		Stop             int    `yaml:"stop,omitempty"`
	}
	return plain{s.Mode, s.BatchSize, s.ProgressInterval, s.Start, s.Stop}, nil
}

// DocumentsSection configures document ingestion.
type DocumentsSection struct {
	Input   InputSection   `yaml:"input"`
	Process ProcessSection `yaml:"process"`
	DB      *PathSection   `yaml:"db,omitempty"`
	Output  *Output        `yaml:"output,omitempty"`
}

// InputSection describes a file input shared by documents and topics.
type InputSection struct {
	Format   string     `yaml:"format"`
	Lang     string     `yaml:"lang,omitempty"`
	Encoding string     `yaml:"encoding,omitempty"`
	Path     StringList `yaml:"path"`
}

// ProcessSection configures text processing.
type ProcessSection struct {
	Lowercase *bool  `yaml:"lowercase,omitempty"`
	Tokenize  string `yaml:"tokenize,omitempty"`
	Stopwords Toggle `yaml:"stopwords,omitempty"`
	Stem      Toggle `yaml:"stem,omitempty"`
}

// Equal compares two process sections after default resolution. The
// planner uses it to check that documents and queries were processed
// the same way before retrieval.
func (p ProcessSection) Equal(other ProcessSection) bool {
	lower := func(b *bool) bool { return b == nil || *b }
	tok := func(s string) string {
		if s == "" {
			return "whitespace"
		}
		return s
	}
	return lower(p.Lowercase) == lower(other.Lowercase) &&
		tok(p.Tokenize) == tok(other.Tokenize) &&
		p.Stopwords == other.Stopwords &&
		p.Stem == other.Stem
}

// IndexSection configures the indexing task.
type IndexSection struct {
	Name   string             `yaml:"name"`
	Input  *IndexInputSection `yaml:"input,omitempty"`
	Output *Output            `yaml:"output,omitempty"`
}

// IndexInputSection points at a processed-documents artifact.
type IndexInputSection struct {
	Documents PathSection `yaml:"documents"`
}

// TopicsSection configures topic ingestion.
type TopicsSection struct {
	Input  InputSection `yaml:"input"`
	Fields string       `yaml:"fields,omitempty"`
	Output *Output      `yaml:"output,omitempty"`
}

// QueriesSection configures query processing.
type QueriesSection struct {
	Input   *InputSection  `yaml:"input,omitempty"`
	Process ProcessSection `yaml:"process"`
	Output  *Output        `yaml:"output,omitempty"`
}

// RetrieveSection configures retrieval.
type RetrieveSection struct {
	Name   string                `yaml:"name"`
	Number int                   `yaml:"number,omitempty"`
	Input  *RetrieveInputSection `yaml:"input,omitempty"`
	Output *Output               `yaml:"output,omitempty"`
}

// RetrieveInputSection points retrieval at an index and a queries artifact.
type RetrieveInputSection struct {
	Index   *PathSection `yaml:"index,omitempty"`
	Queries *PathSection `yaml:"queries,omitempty"`
}

// RerankSection configures reranking.
type RerankSection struct {
	Name   string              `yaml:"name"`
	Input  *RerankInputSection `yaml:"input,omitempty"`
	Output *Output             `yaml:"output,omitempty"`
}

// RerankInputSection points reranking at the doc store and a results artifact.
type RerankInputSection struct {
	DB      *PathSection `yaml:"db,omitempty"`
	Results *PathSection `yaml:"results,omitempty"`
}

// ScoreSection configures evaluation.
type ScoreSection struct {
	Metrics []string          `yaml:"metrics,omitempty"`
	Input   ScoreInputSection `yaml:"input"`
}

// ScoreInputSection points scoring at a relevance-judgments file.
type ScoreInputSection struct {
	Format string `yaml:"format,omitempty"`
	Path   string `yaml:"path"`
}

// PathSection is a mapping holding a single path.
type PathSection struct {
	Path string `yaml:"path"`
}

// Output is a task output setting. In yaml it may be a boolean (false
// disables the output, true requests the default path), a bare path
// string, or a mapping with a path key.
type Output struct {
	Enabled bool
	Path    string
}

func (o *Output) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		switch node.Tag {
		case "!!bool":
			var enabled bool
			if err := node.Decode(&enabled); err != nil {
				return err
			}
			*o = Output{Enabled: enabled}
			return nil
		case "!!str":
			*o = Output{Enabled: true, Path: node.Value}
			return nil
		}
		return fmt.Errorf("line %d: output must be a boolean, path or mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != "path" {
			return fmt.Errorf("line %d: field %s not found in output section",
				node.Content[i].Line, node.Content[i].Value)
		}
	}
	var p PathSection
	if err := node.Decode(&p); err != nil {
		return err
	}
	*o = Output{Enabled: true, Path: p.Path}
	return nil
}

func (o Output) MarshalYAML() (any, error) {
	if !o.Enabled {
		return false, nil
	}
	return PathSection{Path: o.Path}, nil
}

// StringList accepts a single string or a sequence of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = StringList{node.Value}
		return nil
	}
	var items []string
	if err := node.Decode(&items); err != nil {
		return err
	}
	*l = items
	return nil
}

func (l StringList) MarshalYAML() (any, error) {
	if len(l) == 1 {
		return l[0], nil
	}
	return []string(l), nil
}

// Toggle is a named feature switch. In yaml it is either the boolean
// false (off, empty string) or the name of the implementation.
type Toggle string

func (t *Toggle) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!bool" {
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return err
		}
		if enabled {
			return fmt.Errorf("line %d: use a name instead of true", node.Line)
		}
		*t = ""
		return nil
	}
	*t = Toggle(node.Value)
	return nil
}

func (t Toggle) MarshalYAML() (any, error) {
	if t == "" {
		return false, nil
	}
	return string(t), nil
}
