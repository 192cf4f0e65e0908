package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/nomis52/e2eflow/apps"
)

// Screenshotter is a surface that can capture its page.
type Screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Capturer writes PNG screenshots of surfaces to a directory. It implements
// workflow.Capturer.
type Capturer struct {
	dir    string
	logger *slog.Logger
}

// NewCapturer creates a capturer writing to dir.
func NewCapturer(dir string, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{
		dir:    dir,
		logger: logger.With("component", "capturer"),
	}
}

// Capture screenshots the surface and returns the path of the written file.
func (c *Capturer) Capture(ctx context.Context, app string, surface apps.Surface, label string) (string, error) {
	shooter, ok := surface.(Screenshotter)
	if !ok {
		return "", fmt.Errorf("surface for %s cannot take screenshots", app)
	}

	data, err := shooter.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("capturing %s: %w", app, err)
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	path := filepath.Join(c.dir, unsafeLabel.ReplaceAllString(label, "_")+".png")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}

	c.logger.Info("captured screenshot", "application", app, "path", path, "bytes", len(data))
	return path, nil
}
