// Package workflows turns configured suites into runnable workflows.
// Unlike the generic workflow package (which drives execution),
// this package knows about the configuration file and the step actions it declares.
package workflows

import (
	"log/slog"
	"net/http"

	"github.com/nomis52/e2eflow/apps"
	"github.com/nomis52/e2eflow/config"
	"github.com/nomis52/e2eflow/logging"
	"github.com/nomis52/e2eflow/progress"
	"github.com/nomis52/e2eflow/workflow"
)

// Params contains common parameters for workflow construction.
type Params struct {
	// Config is the application configuration. It also resolves application addresses.
	Config *config.Config

	// Logger is the base logger for the workflow.
	Logger *slog.Logger

	// Opener opens the surface of each application.
	Opener apps.Opener

	// Capturer takes diagnostic captures. May be nil if captures are not needed.
	Capturer workflow.Capturer

	// StatusHandler tracks live status lines. May be nil if status tracking is not needed.
	StatusHandler *progress.StatusHandler

	// LogCollector captures step logs for reports. If nil, Logger is used for all steps.
	LogCollector *logging.LogCollector

	// HTTPClient is used by API steps. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// options returns the workflow options shared by every suite, followed by the suite's
// own overrides of the engine settings.
func (p Params) options(suite config.SuiteConfig) []workflow.Option {
	engine := p.Config.Engine

	retries := engine.RetryFailedSteps
	if suite.RetryFailedSteps != nil {
		retries = *suite.RetryFailedSteps
	}
	continueOnError := engine.ContinueOnError
	if suite.ContinueOnError != nil {
		continueOnError = *suite.ContinueOnError
	}
	timeout := engine.Timeout
	if suite.Timeout > 0 {
		timeout = suite.Timeout
	}

	opts := []workflow.Option{
		workflow.WithRetryFailedSteps(retries),
		workflow.WithRetryDelay(engine.RetryDelay),
		workflow.WithContinueOnError(continueOnError),
		workflow.WithTimeout(timeout),
		workflow.WithScreenshotOnSuccess(engine.ScreenshotOnSuccess),
	}
	if p.Logger != nil {
		opts = append(opts, workflow.WithLogger(p.Logger))
	}
	// Status handler (optional - status lines are logged either way)
	if p.StatusHandler != nil {
		opts = append(opts, workflow.WithStatusHandler(p.StatusHandler))
	}
	// Per-step loggers that capture into the collector
	if p.LogCollector != nil {
		opts = append(opts, workflow.WithLoggerFactory(logging.StepLoggers(p.LogCollector)))
	}
	if p.Capturer != nil {
		opts = append(opts, workflow.WithCapturer(p.Capturer))
	}
	if p.HTTPClient != nil {
		opts = append(opts, workflow.WithAppOptions(apps.WithHTTPClient(p.HTTPClient)))
	}
	if suite.Description != "" {
		opts = append(opts, workflow.WithMetadata("description", suite.Description))
	}
	return opts
}
