package topics

import (
	"context"
	"strings"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/pipeline"
	"github.com/cognicore/clair/pkg/clair/text"
)

// TopicProcessor extracts the configured topic fields into a query. The
// fields setting is one or more of title, desc and narrative joined
// with +, as in title+desc.
type TopicProcessor struct {
	pipeline.TaskBase
	fields []string
}

// NewTopicProcessor parses and validates the fields setting.
func NewTopicProcessor(fields string) (*TopicProcessor, error) {
	if fields == "" {
		fields = "title"
	}
	parts := strings.Split(fields, "+")
	for _, f := range parts {
		switch f {
		case "title", "desc", "narrative":
		default:
			return nil, internalerr.Config("%s is not a valid topic field", f)
		}
	}
	return &TopicProcessor{fields: parts}, nil
}

func (p *TopicProcessor) Name() string { return "topics.processor" }

func (p *TopicProcessor) Process(_ context.Context, item pipeline.Item) (pipeline.Item, error) {
	topic := item.(clair.Topic)
	var parts []string
	for _, f := range p.fields {
		switch f {
		case "title":
			parts = append(parts, topic.Title)
		case "desc":
			parts = append(parts, topic.Desc)
		case "narrative":
			parts = append(parts, topic.Narrative)
		}
	}
	extracted := strings.TrimSpace(strings.Join(parts, " "))
	return clair.Query{ID: topic.ID, Lang: topic.Lang, Query: extracted, Text: extracted}, nil
}

// QueryProcessor normalizes query text the same way documents are
// normalized. The original text stays on the query.
type QueryProcessor struct {
	pipeline.TaskBase
	processor *text.Processor
}

// NewQueryProcessor builds the query processor from a process section.
func NewQueryProcessor(conf config.ProcessSection) (*QueryProcessor, error) {
	p, err := text.NewProcessor(conf)
	if err != nil {
		return nil, err
	}
	return &QueryProcessor{processor: p}, nil
}

func (p *QueryProcessor) Name() string { return "queries.processor" }

func (p *QueryProcessor) Process(_ context.Context, item pipeline.Item) (pipeline.Item, error) {
	query := item.(clair.Query)
	query.Query = p.processor.Process(query.Text)
	return query, nil
}
