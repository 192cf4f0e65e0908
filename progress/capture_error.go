package progress

// CaptureError runs f and mirrors its failure on the run's status line, so the status
// endpoint shows why a run stopped before the state is sealed. The error is returned
// unchanged. A nil line only runs f.
//
//	err := progress.CaptureError(line, func() error {
//	    line.Set("initializing web")
//	    return set.Initialize(ctx, "web")
//	})
func CaptureError(line *StatusLine, f func() error) error {
	err := f()
	if err != nil {
		line.Set("❌ " + err.Error())
	}
	return err
}
