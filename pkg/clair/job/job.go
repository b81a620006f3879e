package job

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"

	"github.com/cognicore/clair/pkg/clair/artifact"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/pipeline"
)

// TimingFile is the per-run timing report.
const TimingFile = "timing.txt"

type stageReport struct {
	Count      int               `json:"count"`
	Components []pipeline.Timing `json:"components"`
}

type timingReport struct {
	RunID  string       `json:"run_id"`
	Name   string       `json:"name"`
	Stage1 *stageReport `json:"stage1,omitempty"`
	Stage2 *stageReport `json:"stage2,omitempty"`
}

// SerialJob runs the planned stages one item stream at a time.
type SerialJob struct {
	conf   *config.Config
	plan   *Plan
	logger *slog.Logger
	id     string
}

// NewSerialJob creates a serial job for a plan.
func NewSerialJob(conf *config.Config, plan *Plan, logger *slog.Logger) *SerialJob {
	return &SerialJob{conf: conf, plan: plan, logger: logger, id: ulid.Make().String()}
}

// Run executes stage 1 then stage 2 and finalizes the run directory.
func (j *SerialJob) Run(ctx context.Context) error {
	j.logger.Info("starting job", "id", j.id, "run", j.conf.Run.Name)
	builder := NewBuilder(j.conf, j.logger)
	report := timingReport{RunID: j.id, Name: j.conf.Run.Name}

	stage1, err := builder.Stage1(j.plan)
	if err != nil {
		return err
	}
	if stage1 != nil {
		j.logger.Info("running stage 1", "tasks", j.plan.Stage1)
		if err := stage1.Run(ctx); err != nil {
			return fmt.Errorf("stage 1: %w", err)
		}
		j.logger.Info("stage 1 complete", "items", stage1.Count())
		report.Stage1 = &stageReport{Count: stage1.Count(), Components: stage1.Report()}
	}

	stage2, err := builder.Stage2(j.plan)
	if err != nil {
		return err
	}
	if stage2 != nil {
		j.logger.Info("running stage 2", "tasks", j.plan.Stage2)
		if err := stage2.Run(ctx); err != nil {
			return fmt.Errorf("stage 2: %w", err)
		}
		j.logger.Info("stage 2 complete", "items", stage2.Count())
		report.Stage2 = &stageReport{Count: stage2.Count(), Components: stage2.Report()}
	}

	return finalize(j.conf, j.logger, report)
}

// finalize writes the merged config and the timing report, and logs the
// size of the run directory.
func finalize(conf *config.Config, logger *slog.Logger, report timingReport) error {
	runPath := conf.Run.Path
	if err := config.WriteFile(filepath.Join(runPath, artifact.ConfigFile), conf); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(runPath, TimingFile), append(data, '\n'), 0o644); err != nil {
		return err
	}
	logger.Info("run complete", "path", runPath, "size", humanize.Bytes(dirSize(runPath)))
	return nil
}

func dirSize(dir string) uint64 {
	var total uint64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}
