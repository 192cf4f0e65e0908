package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nomis52/e2eflow/apps"
	"github.com/nomis52/e2eflow/browser"
	"github.com/nomis52/e2eflow/config"
	"github.com/nomis52/e2eflow/logging"
	"github.com/nomis52/e2eflow/metrics"
	"github.com/nomis52/e2eflow/runner"
	"github.com/nomis52/e2eflow/snapshot"
	"github.com/nomis52/e2eflow/workflow"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "E2EFLOW"

// opener is an apps.Opener that holds resources until closed.
type opener interface {
	apps.Opener
	Close() error
}

type cli struct {
	v   *viper.Viper
	out io.Writer

	// newOpener creates the opener for application surfaces.
	newOpener func(cfg config.BrowserConfig, logger *slog.Logger) opener
}

func newCLI(out io.Writer) *cli {
	return &cli{
		v:   viper.New(),
		out: out,
		newOpener: func(cfg config.BrowserConfig, logger *slog.Logger) opener {
			return browser.NewOpener(cfg, browser.WithLogger(logger))
		},
	}
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "e2eflow",
		Short: "Run end-to-end workflows across several applications",
		Long: `e2eflow runs configured suites of steps against several independently running
applications, switching between them within one scenario and passing data from
one step to the next.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)

	root.PersistentFlags().StringP("config", "c", "", "path to the config file")
	root.PersistentFlags().String("log-level", "", "override the configured log level (debug, info, warn, error)")
	c.bind(root.PersistentFlags().Lookup("config"), root.PersistentFlags().Lookup("log-level"))

	c.v.SetEnvPrefix(envPrefix)
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()

	root.AddCommand(
		c.runCmd(),
		c.validateCmd(),
		c.reportCmd(),
		c.serveCmd(),
		c.versionCmd(),
	)
	return root
}

func (c *cli) configPath() (string, error) {
	path := c.v.GetString("config")
	if path == "" {
		return "", errors.New("config flag (-c or --config) or " + envPrefix + "_CONFIG is required")
	}
	return path, nil
}

// loadConfig loads the config file and applies flag overrides.
func (c *cli) loadConfig() (*config.Config, error) {
	path, err := c.configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level := c.v.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return &cfg, nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Output:    cfg.Logging.Output,
		AddSource: cfg.Logging.AddSource,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// newManager keeps snapshots on disk when a state directory is configured and in
// memory otherwise.
func newManager(cfg *config.Config, logger *slog.Logger) (*snapshot.Manager, error) {
	var store snapshot.Store = snapshot.NewMemoryStore(cfg.State.MaxSnapshots)
	if cfg.State.Dir != "" {
		ds, err := snapshot.NewDiskStore(cfg.State.Dir, cfg.State.MaxSnapshots, logger)
		if err != nil {
			return nil, err
		}
		store = ds
	}
	return snapshot.NewManager(store, snapshot.WithLogger(logger)), nil
}

// pushRecorder pushes run metrics to VictoriaMetrics when it is configured.
func pushRecorder(cfg *config.Config, logger *slog.Logger) (*metrics.Recorder, error) {
	var reg metrics.Registry = metrics.NopRegistry{}
	if cfg.Monitoring.VictoriaMetricsURL != "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("failed to get hostname: %w", err)
		}
		reg = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: hostname,
			Logger:   logger,
		})
	}
	return metrics.NewRecorder(reg)
}

func toRunnable(wfs []*workflow.Workflow) []runner.Workflow {
	list := make([]runner.Workflow, len(wfs))
	for i, wf := range wfs {
		list[i] = wf
	}
	return list
}

func (c *cli) bind(flags ...*pflag.Flag) {
	for _, f := range flags {
		_ = c.v.BindPFlag(f.Name, f)
	}
}
