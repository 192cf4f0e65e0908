// Package progress provides live status reporting for running workflows.
//
// The package follows the handler/writer pattern of log/slog:
//
//   - StatusLine: writes status messages for one workflow run (analogous to slog.Logger)
//   - StatusHandler: receives and stores the latest message per run (analogous to slog.Handler)
//
// The workflow engine sets a status line as it moves through steps, and step bodies may
// add their own detail:
//
//	func login(ctx context.Context, wc *workflow.Context) (any, error) {
//	    wc.SetStatus("submitting credentials")
//	    // ...
//	}
//
// The handler can be queried for the status of every run in flight:
//
//	statuses := handler.All() // map of run ID to latest status
//
// # Error Capturing
//
// CaptureError updates the status line when a function fails:
//
//	return progress.CaptureError(line, func() error {
//	    return someOperation()
//	})
package progress
