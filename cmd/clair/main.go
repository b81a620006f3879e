package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cognicore/clair/pkg/clair"
	"github.com/cognicore/clair/pkg/clair/config"
	"github.com/cognicore/clair/pkg/clair/internalerr"
	"github.com/cognicore/clair/pkg/clair/job"
)

// LogFile is the run log inside the run directory.
const LogFile = "clair.log"

func main() {
	debug := flag.Bool("d", false, "Log debug messages")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: %s [-d] config.yml [key=value ...]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	configPath := flag.Arg(0)
	overrides := flag.Args()[1:]

	if err := run(configPath, overrides, *debug); err != nil {
		var appErr *internalerr.Error
		if errors.As(err, &appErr) && !*debug {
			fmt.Fprintf(os.Stderr, "Error: %s\n", appErr.Message())
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(configPath string, overrides []string, debug bool) error {
	conf, err := config.Load(configPath, overrides)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(conf.Run.Path, 0o755); err != nil {
		return fmt.Errorf("creating run directory: %w", err)
	}

	logFile, err := os.Create(filepath.Join(conf.Run.Path, LogFile))
	if err != nil {
		return fmt.Errorf("creating log file: %w", err)
	}
	defer logFile.Close()
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(
		io.MultiWriter(os.Stderr, logFile), &slog.HandlerOptions{Level: level}))

	logger.Info("starting run",
		"version", clair.Version, "config", configPath, "output", conf.Run.Path)
	runner := job.NewRunner(conf, logger)
	if err := runner.Run(context.Background()); err != nil {
		logger.Error("run failed", "error", err)
		return err
	}
	return nil
}
