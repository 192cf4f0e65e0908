package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/nomis52/e2eflow/snapshot"
	"github.com/spf13/cobra"
)

func (c *cli) reportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "List saved runs, or print the report of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.State.Dir == "" {
				return errors.New("state.dir must be set to read saved runs")
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			manager, err := newManager(cfg, logger)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				return c.listRuns(manager.Summaries())
			}

			m, err := manager.Metrics(args[0])
			if err != nil {
				return err
			}
			report := snapshot.GenerateReport(m.Latest.State)
			report.RunID = m.WorkflowID
			report.Workflow = m.Name
			return report.Encode(c.out, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "report format (json, yaml)")
	return cmd
}

func (c *cli) listRuns(summaries []snapshot.Summary) error {
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tWORKFLOW\tSTATUS\tCOMPLETED\tFAILED\tSTARTED")
	for _, s := range summaries {
		started := "-"
		if s.StartedAt != nil {
			started = s.StartedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			s.WorkflowID, s.Name, s.Status, s.Steps.Completed, s.Steps.Failed, started)
	}
	return tw.Flush()
}
