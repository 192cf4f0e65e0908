package main

import (
	"github.com/nomis52/e2eflow/browser"
	"github.com/nomis52/e2eflow/metrics"
	"github.com/nomis52/e2eflow/runner"
	"github.com/nomis52/e2eflow/server"
	"github.com/spf13/cobra"
)

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run configured schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := c.configPath()
			if err != nil {
				return err
			}
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

			reg, err := metrics.NewScrapeRegistry(cfg.Monitoring.MetricsPrefix)
			if err != nil {
				return err
			}
			recorder, err := metrics.NewRecorder(reg)
			if err != nil {
				return err
			}

			op := c.newOpener(cfg.Browser, logger)
			defer func() {
				if err := op.Close(); err != nil {
					logger.Warn("failed to close opener", "error", err)
				}
			}()

			opts := []server.Option{
				server.WithLogger(logger),
				server.WithOpener(op),
				server.WithCapturer(browser.NewCapturer(cfg.Artifacts.Dir, logger)),
				server.WithScrapeRegistry(reg),
				server.WithRunner(runner.New(
					runner.WithLogger(logger),
					runner.WithManager(manager),
					runner.WithRecorder(recorder),
				)),
			}
			if addr := c.v.GetString("addr"); addr != "" {
				opts = append(opts, server.WithListenAddr(addr))
			}
			if spec := c.v.GetString("schedule"); spec != "" {
				opts = append(opts, server.WithSchedule(spec))
			}

			srv, err := server.New(path, opts...)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().String("addr", "", "listen address, overrides server.addr")
	cmd.Flags().String("schedule", "", `run suites on a schedule, e.g. "smoke,signup:*/15 * * * *;nightly:0 2 * * *"`)
	c.bind(cmd.Flags().Lookup("addr"), cmd.Flags().Lookup("schedule"))
	return cmd
}
