package docs

import (
	"context"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/pipeline"
	"github.com/cognicore/clair/pkg/clair/text"
)

// Processor normalizes document text. The unmodified text is kept on the
// item so the database task can store the original form.
type Processor struct {
	pipeline.TaskBase
	processor *text.Processor
}

// NewProcessor builds the document processor from a process section.
func NewProcessor(conf config.ProcessSection) (*Processor, error) {
	p, err := text.NewProcessor(conf)
	if err != nil {
		return nil, err
	}
	return &Processor{processor: p}, nil
}

func (p *Processor) Name() string { return "documents.processor" }

func (p *Processor) Process(_ context.Context, item pipeline.Item) (pipeline.Item, error) {
	doc := item.(clair.Doc)
	doc.OriginalText = doc.Text
	doc.Text = p.processor.Process(doc.Text)
	return doc, nil
}
