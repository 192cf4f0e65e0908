package main

import (
	"fmt"
	"strings"

	"github.com/nomis52/e2eflow/workflows"
	"github.com/spf13/cobra"
)

func (c *cli) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [suite...]",
		Short: "Check the config and suites without running anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			// Nothing is opened during validation
			op := c.newOpener(cfg.Browser, logger)
			defer op.Close()

			wfs, err := workflows.NewSuites(workflows.Params{
				Config: cfg,
				Logger: logger,
				Opener: op,
			}, args)
			if err != nil {
				return err
			}

			invalid := 0
			for _, wf := range wfs {
				res := wf.Validate()
				if res.Valid {
					fmt.Fprintf(c.out, "ok   %s\n", wf.Name())
					continue
				}
				invalid++
				fmt.Fprintf(c.out, "FAIL %s: %s\n", wf.Name(), strings.Join(res.Errors, "; "))
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d suites are invalid", invalid, len(wfs))
			}
			return nil
		},
	}
}
