package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
)

type listSource struct {
	name  string
	items []string
	pos   int
}

func (s *listSource) Name() string { return s.name }

func (s *listSource) Next() (Item, error) {
	if s.pos >= len(s.items) {
		return nil, io.EOF
	}
	item := s.items[s.pos]
	s.pos++
	return item, nil
}

func (s *listSource) Count() (int, error) { return len(s.items), nil }

// recordTask appends a suffix to every item and records lifecycle calls.
type recordTask struct {
	TaskBase
	name   string
	suffix string
	calls  []string
	seen   []string
}

func (t *recordTask) Name() string { return t.name }

func (t *recordTask) Begin(context.Context) error {
	t.calls = append(t.calls, "begin")
	return nil
}

func (t *recordTask) End(context.Context) error {
	t.calls = append(t.calls, "end")
	return nil
}

func (t *recordTask) Process(_ context.Context, item Item) (Item, error) {
	s := item.(string)
	t.seen = append(t.seen, s)
	return s + t.suffix, nil
}

type dropTask struct {
	TaskBase
	drop string
}

func (t *dropTask) Name() string { return "drop" }

func (t *dropTask) Process(_ context.Context, item Item) (Item, error) {
	if item.(string) == t.drop {
		return nil, nil
	}
	return item, nil
}

type failTask struct {
	TaskBase
	on string
}

func (t *failTask) Name() string { return "fail" }

func (t *failTask) Process(_ context.Context, item Item) (Item, error) {
	if item.(string) == t.on {
		return nil, errors.New("boom")
	}
	return item, nil
}

// doublingBatchTask duplicates every item when given a whole batch.
type doublingBatchTask struct {
	TaskBase
	batches int
}

func (t *doublingBatchTask) Name() string { return "doubler" }

func (t *doublingBatchTask) Process(_ context.Context, item Item) (Item, error) {
	return item, nil
}

func (t *doublingBatchTask) ProcessBatch(_ context.Context, items []Item) ([]Item, error) {
	t.batches++
	out := make([]Item, 0, 2*len(items))
	for _, item := range items {
		out = append(out, item, item)
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStreamingOrderAndLifecycle(t *testing.T) {
	source := &listSource{name: "src", items: []string{"a", "b", "c"}}
	first := &recordTask{name: "first", suffix: "1"}
	second := &recordTask{name: "second", suffix: "2"}
	p := NewStreamingPipeline(source, []Task{first, second}, testLogger(), 0)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.Count() != 3 {
		t.Errorf("count = %d", p.Count())
	}
	want := []string{"a1", "b1", "c1"}
	if len(second.seen) != len(want) {
		t.Fatalf("second saw %v", second.seen)
	}
	for i := range want {
		if second.seen[i] != want[i] {
			t.Errorf("second.seen[%d] = %s, want %s", i, second.seen[i], want[i])
		}
	}
	for _, task := range []*recordTask{first, second} {
		if strings.Join(task.calls, ",") != "begin,end" {
			t.Errorf("task %s lifecycle = %v", task.name, task.calls)
		}
	}
}

func TestStreamingDrop(t *testing.T) {
	source := &listSource{name: "src", items: []string{"a", "b", "c"}}
	after := &recordTask{name: "after", suffix: ""}
	p := NewStreamingPipeline(source, []Task{&dropTask{drop: "b"}, after}, testLogger(), 0)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.Count() != 2 {
		t.Errorf("count = %d", p.Count())
	}
	if len(after.seen) != 2 || after.seen[0] != "a" || after.seen[1] != "c" {
		t.Errorf("after saw %v", after.seen)
	}
}

func TestStreamingTaskErrorAborts(t *testing.T) {
	source := &listSource{name: "src", items: []string{"a", "b", "c"}}
	after := &recordTask{name: "after", suffix: ""}
	p := NewStreamingPipeline(source, []Task{&failTask{on: "b"}, after}, testLogger(), 0)
	err := p.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "task fail") {
		t.Fatalf("expected task error, got %v", err)
	}
	if len(after.seen) != 1 {
		t.Errorf("after should only have seen the first item: %v", after.seen)
	}
}

func TestBatchMatchesStreaming(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	for _, batchSize := range []int{0, 2, 5, 10} {
		source := &listSource{name: "src", items: items}
		task := &recordTask{name: "task", suffix: "!"}
		p := NewBatchPipeline(source, []Task{&dropTask{drop: "c"}, task}, testLogger(), 0, batchSize)
		if err := p.Run(context.Background()); err != nil {
			t.Fatalf("batch size %d: %v", batchSize, err)
		}
		if p.Count() != 4 {
			t.Errorf("batch size %d: count = %d", batchSize, p.Count())
		}
		want := []string{"a", "b", "d", "e"}
		if fmt.Sprint(task.seen) != fmt.Sprint(want) {
			t.Errorf("batch size %d: saw %v", batchSize, task.seen)
		}
	}
}

func TestBatchTaskGetsWholeBatch(t *testing.T) {
	source := &listSource{name: "src", items: []string{"a", "b", "c", "d"}}
	doubler := &doublingBatchTask{}
	p := NewBatchPipeline(source, []Task{doubler}, testLogger(), 0, 0)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if doubler.batches != 1 {
		t.Errorf("batch size 0 should mean one batch, got %d", doubler.batches)
	}
	if p.Count() != 8 {
		t.Errorf("count = %d", p.Count())
	}
}

func TestReport(t *testing.T) {
	source := &listSource{name: "src", items: []string{"a"}}
	p := NewStreamingPipeline(source, []Task{&recordTask{name: "one"}, &recordTask{name: "two"}}, testLogger(), 0)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	report := p.Report()
	if len(report) != 3 {
		t.Fatalf("report = %v", report)
	}
	names := []string{"src", "one", "two"}
	for i, timing := range report {
		if timing.Name != names[i] {
			t.Errorf("report[%d] = %s, want %s", i, timing.Name, names[i])
		}
		if timing.Seconds < 0 {
			t.Errorf("negative timing for %s", timing.Name)
		}
	}
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := &listSource{name: "src", items: []string{"a", "b"}}
	p := NewStreamingPipeline(source, []Task{&recordTask{name: "task"}}, testLogger(), 0)
	if err := p.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestSlicedSource(t *testing.T) {
	cases := []struct {
		start, stop int
		want        []string
	}{
		{0, 0, []string{"a", "b", "c", "d", "e"}},
		{0, 2, []string{"a", "b"}},
		{2, 4, []string{"c", "d"}},
		{4, 0, []string{"e"}},
		{3, 10, []string{"d", "e"}},
	}
	for _, tc := range cases {
		source := NewSlicedSource(&listSource{name: "src", items: []string{"a", "b", "c", "d", "e"}}, tc.start, tc.stop)
		count, err := source.Count()
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count != len(tc.want) {
			t.Errorf("slice [%d,%d): count = %d, want %d", tc.start, tc.stop, count, len(tc.want))
		}
		var got []string
		for {
			item, err := source.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("next: %v", err)
			}
			got = append(got, item.(string))
		}
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Errorf("slice [%d,%d): got %v, want %v", tc.start, tc.stop, got, tc.want)
		}
	}
}
