// Package pipeline runs a sequence of tasks over a stream of items. A
// pipeline owns one source and an ordered list of tasks; items flow from
// the source through every task, in order, one at a time or in batches.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Item is whatever flows between tasks. Tasks may change the item type,
// a retriever turns queries into results.
type Item = any

// Task processes items as part of a pipeline. Begin runs before the first
// item and End after the last. Process returns the item to hand to the
// next task; returning a nil item with a nil error drops the item. Reduce
// combines partition outputs after a parallel run and is called between
// Begin and End on the parent's tasks only.
type Task interface {
	Name() string
	Begin(ctx context.Context) error
	Process(ctx context.Context, item Item) (Item, error)
	End(ctx context.Context) error
	Reduce(ctx context.Context, parts []string) error
}

// BatchTask is implemented by tasks that prefer whole batches. The batch
// pipeline calls ProcessBatch instead of Process for these.
type BatchTask interface {
	Task
	ProcessBatch(ctx context.Context, items []Item) ([]Item, error)
}

// TaskBase provides no-op lifecycle methods for tasks that only process.
type TaskBase struct{}

func (TaskBase) Begin(context.Context) error            { return nil }
func (TaskBase) End(context.Context) error              { return nil }
func (TaskBase) Reduce(context.Context, []string) error { return nil }

// Timing is the time one component spent processing.
type Timing struct {
	Name    string  `json:"name"`
	Seconds float64 `json:"seconds"`
}

// Pipeline is a source plus tasks with lifecycle control. Run drains the
// source through the tasks; Begin, End and Reduce are exposed separately
// so a parallel job can bracket its partitions.
type Pipeline interface {
	Begin(ctx context.Context) error
	Run(ctx context.Context) error
	End(ctx context.Context) error
	Reduce(ctx context.Context, parts []string) error
	Count() int
	SourceCount() (int, error)
	Report() []Timing
}

type base struct {
	source           Source
	tasks            []Task
	logger           *slog.Logger
	progressInterval int

	count      int
	sourceTime time.Duration
	taskTimes  []time.Duration
}

func newBase(source Source, tasks []Task, logger *slog.Logger, progressInterval int) base {
	if progressInterval <= 0 {
		progressInterval = 1 << 62
	}
	return base{
		source:           source,
		tasks:            tasks,
		logger:           logger,
		progressInterval: progressInterval,
		taskTimes:        make([]time.Duration, len(tasks)),
	}
}

func (p *base) Begin(ctx context.Context) error {
	for _, task := range p.tasks {
		if err := task.Begin(ctx); err != nil {
			return fmt.Errorf("starting task %s: %w", task.Name(), err)
		}
	}
	return nil
}

func (p *base) End(ctx context.Context) error {
	for _, task := range p.tasks {
		if err := task.End(ctx); err != nil {
			return fmt.Errorf("finishing task %s: %w", task.Name(), err)
		}
	}
	return nil
}

func (p *base) Reduce(ctx context.Context, parts []string) error {
	for _, task := range p.tasks {
		if err := task.Reduce(ctx, parts); err != nil {
			return fmt.Errorf("reducing task %s: %w", task.Name(), err)
		}
	}
	return nil
}

// Count returns the number of items that completed the pipeline.
func (p *base) Count() int { return p.count }

// SourceCount returns the total number of items the source offers.
func (p *base) SourceCount() (int, error) { return p.source.Count() }

// Report returns per-component processing times, the source first.
func (p *base) Report() []Timing {
	report := []Timing{{Name: p.source.Name(), Seconds: p.sourceTime.Seconds()}}
	for i, task := range p.tasks {
		report = append(report, Timing{Name: task.Name(), Seconds: p.taskTimes[i].Seconds()})
	}
	return report
}

func (p *base) next() (Item, error) {
	start := time.Now()
	item, err := p.source.Next()
	p.sourceTime += time.Since(start)
	return item, err
}

func (p *base) progress() {
	p.count++
	if p.count%p.progressInterval == 0 {
		p.logger.Info("pipeline progress", "count", p.count)
	}
}

// StreamingPipeline pushes each item through every task before reading
// the next one.
type StreamingPipeline struct {
	base
}

// NewStreamingPipeline creates a streaming pipeline. Progress is logged
// every progressInterval completed items.
func NewStreamingPipeline(source Source, tasks []Task, logger *slog.Logger, progressInterval int) *StreamingPipeline {
	return &StreamingPipeline{base: newBase(source, tasks, logger, progressInterval)}
}

// Run drains the source through the tasks, bracketed by Begin and End.
func (p *StreamingPipeline) Run(ctx context.Context) error {
	if err := p.Begin(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		item, err := p.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading from %s: %w", p.source.Name(), err)
		}
		for i, task := range p.tasks {
			start := time.Now()
			item, err = task.Process(ctx, item)
			p.taskTimes[i] += time.Since(start)
			if err != nil {
				return fmt.Errorf("task %s: %w", task.Name(), err)
			}
			if item == nil {
				break
			}
		}
		if item != nil {
			p.progress()
		}
	}
	return p.End(ctx)
}

// BatchPipeline reads a batch of items and pushes the whole batch through
// each task in turn. A batch size of zero means the entire input is one
// batch.
type BatchPipeline struct {
	base
	batchSize int
}

// NewBatchPipeline creates a batch pipeline.
func NewBatchPipeline(source Source, tasks []Task, logger *slog.Logger, progressInterval, batchSize int) *BatchPipeline {
	return &BatchPipeline{base: newBase(source, tasks, logger, progressInterval), batchSize: batchSize}
}

// Run drains the source through the tasks batch by batch.
func (p *BatchPipeline) Run(ctx context.Context) error {
	if err := p.Begin(ctx); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch, err := p.readBatch()
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}
		for i, task := range p.tasks {
			start := time.Now()
			batch, err = processBatch(ctx, task, batch)
			p.taskTimes[i] += time.Since(start)
			if err != nil {
				return fmt.Errorf("task %s: %w", task.Name(), err)
			}
			if len(batch) == 0 {
				break
			}
		}
		for range batch {
			p.progress()
		}
	}
	return p.End(ctx)
}

func (p *BatchPipeline) readBatch() ([]Item, error) {
	var batch []Item
	for p.batchSize <= 0 || len(batch) < p.batchSize {
		item, err := p.next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading from %s: %w", p.source.Name(), err)
		}
		batch = append(batch, item)
	}
	return batch, nil
}

// processBatch applies one task to a batch, item by item unless the task
// handles batches itself. Dropped items leave the batch.
func processBatch(ctx context.Context, task Task, batch []Item) ([]Item, error) {
	if bt, ok := task.(BatchTask); ok {
		return bt.ProcessBatch(ctx, batch)
	}
	out := batch[:0]
	for _, item := range batch {
		result, err := task.Process(ctx, item)
		if err != nil {
			return nil, err
		}
		if result != nil {
			out = append(out, result)
		}
	}
	return out, nil
}
