package job

import (
	"context"
	"log/slog"

	"github.com/cognicore/clair/pkg/clair/config"
)

// Job executes a planned run.
type Job interface {
	Run(ctx context.Context) error
}

// Runner plans a run from its config and executes it, serially or in
// parallel depending on run.parallel.jobs.
type Runner struct {
	conf   *config.Config
	logger *slog.Logger
}

// NewRunner creates a runner over a preprocessed config.
func NewRunner(conf *config.Config, logger *slog.Logger) *Runner {
	return &Runner{conf: conf, logger: logger}
}

// Run plans and executes the run.
func (r *Runner) Run(ctx context.Context) error {
	plan, err := BuildPlan(r.conf)
	if err != nil {
		return err
	}
	r.logger.Info("planned tasks", "stage1", plan.Stage1, "stage2", plan.Stage2)
	var job Job = NewSerialJob(r.conf, plan, r.logger)
	if r.conf.Run.Parallel != nil && r.conf.Run.Parallel.Jobs > 1 {
		job = NewParallelJob(r.conf, plan, r.logger)
	}
	return job.Run(ctx)
}
