package job

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/pipeline"
	"github.com/oklog/ulid/v2"
)

// ParallelJob slices each stage's input into contiguous partitions and
// runs one sub-pipeline per partition, share-nothing. The parent
// pipeline brackets the partitions: Begin, then the partition runs, then
// Reduce over the partition directories, then End.
type ParallelJob struct {
	conf   *config.Config
	plan   *Plan
	logger *slog.Logger
	id     string
}

// NewParallelJob creates a parallel job for a plan.
func NewParallelJob(conf *config.Config, plan *Plan, logger *slog.Logger) *ParallelJob {
	return &ParallelJob{conf: conf, plan: plan, logger: logger, id: ulid.Make().String()}
}

// Run executes both stages and finalizes the run directory.
func (j *ParallelJob) Run(ctx context.Context) error {
	j.logger.Info("starting parallel job",
		"id", j.id, "run", j.conf.Run.Name, "jobs", j.conf.Run.Parallel.Jobs)
	report := timingReport{RunID: j.id, Name: j.conf.Run.Name}

	if len(j.plan.Stage1) > 0 {
		rep, err := j.runStage(ctx, 1, &Plan{Stage1: j.plan.Stage1})
		if err != nil {
			return fmt.Errorf("stage 1: %w", err)
		}
		report.Stage1 = rep
	}
	if len(j.plan.Stage2) > 0 {
		rep, err := j.runStage(ctx, 2, &Plan{Stage2: j.plan.Stage2})
		if err != nil {
			return fmt.Errorf("stage 2: %w", err)
		}
		report.Stage2 = rep
	}
	return finalize(j.conf, j.logger, report)
}

func (j *ParallelJob) runStage(ctx context.Context, stageNum int, stagePlan *Plan) (*stageReport, error) {
	parent, err := j.buildStage(NewBuilder(j.conf, j.logger), stageNum, stagePlan)
	if err != nil {
		return nil, err
	}
	count, err := parent.SourceCount()
	if err != nil {
		return nil, err
	}
	jobs := j.conf.Run.Parallel.Jobs
	if jobs > count {
		jobs = count
	}
	if jobs < 1 {
		jobs = 1
	}
	j.logger.Info("partitioning stage", "stage", stageNum, "items", count, "partitions", jobs)

	if err := os.MkdirAll(filepath.Join(j.conf.Run.Path, "logs"), 0o755); err != nil {
		return nil, err
	}
	if err := parent.Begin(ctx); err != nil {
		return nil, err
	}

	// Partitions do not score; the parent scorer reads their results
	// files during reduce.
	partPlan := &Plan{Stage1: stagePlan.Stage1}
	for _, t := range stagePlan.Stage2 {
		if t != artifact.Score {
			partPlan.Stage2 = append(partPlan.Stage2, t)
		}
	}

	allowPartial := j.conf.Run.Parallel.AllowPartial
	errs := make([]error, jobs)
	roots := make([]string, jobs)
	g, gctx := errgroup.WithContext(ctx)
	chunk, rem := count/jobs, count%jobs
	start := 0
	for i := 0; i < jobs; i++ {
		size := chunk
		if i < rem {
			size++
		}
		i := i
		pstart, pstop := start, start+size
		start = pstop
		roots[i] = filepath.Join(j.conf.Run.Path, fmt.Sprintf("part_%d", i))
		g.Go(func() error {
			err := j.runPartition(gctx, stageNum, partPlan, i, pstart, pstop)
			errs[i] = err
			if err != nil && !allowPartial {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var survivors []string
	for i, err := range errs {
		if err != nil {
			j.logger.Error("partition failed", "stage", stageNum, "partition", i, "error", err)
			continue
		}
		survivors = append(survivors, roots[i])
	}
	if len(survivors) == 0 {
		return nil, internalerr.Data("all partitions of stage %d failed", stageNum)
	}
	if err := parent.Reduce(ctx, survivors); err != nil {
		return nil, err
	}
	if err := parent.End(ctx); err != nil {
		return nil, err
	}
	for _, root := range survivors {
		if err := os.RemoveAll(root); err != nil {
			j.logger.Warn("could not remove partition directory", "dir", root, "error", err)
		}
	}
	return &stageReport{Count: count, Components: parent.Report()}, nil
}

func (j *ParallelJob) runPartition(ctx context.Context, stageNum int, plan *Plan, i, start, stop int) error {
	runPath := j.conf.Run.Path
	partRoot := filepath.Join(runPath, fmt.Sprintf("part_%d", i))
	logPath := filepath.Join(runPath, "logs", fmt.Sprintf("stage%d.part_%d.log", stageNum, i))
	logFile, err := os.Create(logPath)
	if err != nil {
		return err
	}
	defer logFile.Close()
	logger := slog.New(slog.NewTextHandler(logFile, nil))
	logger.Info("starting partition", "partition", i, "start", start, "stop", stop)

	conf, err := j.conf.Clone()
	if err != nil {
		return err
	}
	conf.Run.Parallel = nil
	stage := conf.Run.Stage1
	if stageNum == 2 {
		stage = conf.Run.Stage2
	}
	if stage == nil {
		stage = &config.StageSection{Enabled: true, Mode: config.ModeStreaming}
		if stageNum == 2 {
			conf.Run.Stage2 = stage
		} else {
			conf.Run.Stage1 = stage
		}
	}
	stage.Start, stage.Stop = start, stop
	rewriteForPartition(conf, plan, partRoot, runPath)
	conf.Run.Path = partRoot

	p, err := j.buildStage(NewBuilder(conf, logger), stageNum, plan)
	if err != nil {
		return err
	}
	if err := p.Run(ctx); err != nil {
		logger.Error("partition failed", "error", err)
		return err
	}
	logger.Info("partition complete", "items", p.Count())
	return nil
}

func (j *ParallelJob) buildStage(builder *Builder, stageNum int, plan *Plan) (pipeline.Pipeline, error) {
	if stageNum == 1 {
		return builder.Stage1(plan)
	}
	return builder.Stage2(plan)
}

// rewriteForPartition points the outputs of the planned tasks into the
// partition directory. Inputs and the outputs of tasks outside the plan
// keep their parent paths.
func rewriteForPartition(conf *config.Config, plan *Plan, partRoot, runPath string) {
	part := func(path string) string {
		return artifact.PartPath(partRoot, runPath, path)
	}
	for _, task := range append(append([]artifact.Task{}, plan.Stage1...), plan.Stage2...) {
		switch task {
		case artifact.Documents:
			conf.Documents.DB.Path = part(conf.Documents.DB.Path)
			if conf.Documents.Output.Enabled {
				conf.Documents.Output.Path = part(conf.Documents.Output.Path)
			}
		case artifact.Index:
			conf.Index.Output.Path = part(conf.Index.Output.Path)
		case artifact.Topics:
			if conf.Topics.Output.Enabled {
				conf.Topics.Output.Path = part(conf.Topics.Output.Path)
			}
		case artifact.Queries:
			conf.Queries.Output.Path = part(conf.Queries.Output.Path)
		case artifact.Retrieve:
			conf.Retrieve.Output.Path = part(conf.Retrieve.Output.Path)
		case artifact.Rerank:
			conf.Rerank.Output.Path = part(conf.Rerank.Output.Path)
		}
	}
}
