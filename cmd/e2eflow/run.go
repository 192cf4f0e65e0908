package main

import (
	"fmt"
	"io"
	"time"

	"github.com/nomis52/e2eflow/browser"
	"github.com/nomis52/e2eflow/runner"
	"github.com/nomis52/e2eflow/snapshot"
	"github.com/nomis52/e2eflow/workflows"
	"github.com/spf13/cobra"
)

func (c *cli) runCmd() *cobra.Command {
	var (
		format          string
		parallel        bool
		maxParallel     int
		continueOnError bool
	)

	cmd := &cobra.Command{
		Use:   "run [suite...]",
		Short: "Run suites, all configured suites when none are named",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			manager, err := newManager(cfg, logger)
			if err != nil {
				return err
			}
			recorder, err := pushRecorder(cfg, logger)
			if err != nil {
				return err
			}

			r := runner.New(
				runner.WithLogger(logger),
				runner.WithManager(manager),
				runner.WithRecorder(recorder),
			)

			op := c.newOpener(cfg.Browser, logger)
			defer func() {
				if err := op.Close(); err != nil {
					logger.Warn("failed to close opener", "error", err)
				}
			}()

			wfs, err := workflows.NewSuites(workflows.Params{
				Config:        cfg,
				Logger:        logger,
				Opener:        op,
				Capturer:      browser.NewCapturer(cfg.Artifacts.Dir, logger),
				StatusHandler: r.StatusHandler(),
				LogCollector:  r.LogCollector(),
			}, args)
			if err != nil {
				return err
			}

			opts := runner.Options{
				Report:          format != "",
				ContinueOnError: cfg.Engine.ContinueSequence || continueOnError,
				Parallel:        cfg.Engine.Parallel || parallel,
				MaxParallel:     cfg.Engine.MaxParallel,
			}
			if cmd.Flags().Changed("max-parallel") {
				opts.MaxParallel = maxParallel
			}

			results := r.RunSequence(cmd.Context(), toRunnable(wfs), opts)
			return printResults(c.out, results, format)
		},
	}

	cmd.Flags().StringVar(&format, "report", "", "print a report of every run (json, yaml)")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "run the suites concurrently")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "limit concurrent suites, 0 means unlimited")
	cmd.Flags().BoolVar(&continueOnError, "continue", false, "keep running later suites after one fails")
	return cmd
}

// printResults writes one line per result, or one report per result when a format is
// given, and returns an error if any suite did not succeed.
func printResults(w io.Writer, results []runner.Result, format string) error {
	failed := 0
	for _, res := range results {
		if !res.Success {
			failed++
		}

		if format != "" {
			report := res.Report
			if report == nil {
				r := snapshot.GenerateReport(res.State)
				r.RunID, r.Workflow = res.RunID, res.Workflow
				report = &r
			}
			if err := report.Encode(w, format); err != nil {
				return err
			}
			continue
		}

		switch {
		case res.Skipped:
			fmt.Fprintf(w, "SKIP %s: %s\n", res.Workflow, res.Error)
		case res.Success:
			fmt.Fprintf(w, "PASS %s (%s) %s\n", res.Workflow, res.RunID, res.State.Duration().Round(time.Millisecond))
		default:
			fmt.Fprintf(w, "FAIL %s (%s): %s\n", res.Workflow, res.RunID, res.Error)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d suites failed", failed, len(results))
	}
	return nil
}
