package browser

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/chromedp/chromedp"
	"github.com/nomis52/e2eflow/apps/appstest"
	"github.com/nomis52/e2eflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		ref     string
		want    string
		wantErr bool
	}{
		{name: "root", base: "http://web.test", ref: "/", want: "http://web.test/"},
		{name: "path", base: "http://web.test", ref: "/login", want: "http://web.test/login"},
		{name: "query", base: "http://web.test", ref: "/search?q=shoes", want: "http://web.test/search?q=shoes"},
		{name: "base path kept", base: "http://web.test/app/", ref: "/login", want: "http://web.test/app/login"},
		{name: "base path without slash", base: "http://web.test/app", ref: "/login", want: "http://web.test/app/login"},
		{name: "relative", base: "http://web.test/app/", ref: "orders", want: "http://web.test/app/orders"},
		{name: "absolute", base: "http://web.test", ref: "https://other.test/x", want: "https://other.test/x"},
		{name: "bad base", base: "http://[::1", ref: "/", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveURL(tt.base, tt.ref)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAllocatorOptions(t *testing.T) {
	defaults := len(chromedp.DefaultExecAllocatorOptions)

	assert.Len(t, allocatorOptions(config.BrowserConfig{}), defaults)
	assert.Len(t, allocatorOptions(config.BrowserConfig{
		ExecPath:     "/usr/bin/chromium",
		ShowWindow:   true,
		WindowWidth:  1280,
		WindowHeight: 800,
	}), defaults+3)
}

func TestOpener_CloseBeforeOpen(t *testing.T) {
	o := NewOpener(config.BrowserConfig{})
	assert.NoError(t, o.Close())
}

// shotSurface is a surface that returns a fixed screenshot.
type shotSurface struct {
	*appstest.Surface
	data []byte
	err  error
}

func (s shotSurface) Screenshot(ctx context.Context) ([]byte, error) {
	return s.data, s.err
}

func TestCapturer(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "artifacts")
	c := NewCapturer(dir, nil)
	ctx := context.Background()

	t.Run("WritesPNG", func(t *testing.T) {
		surface := shotSurface{Surface: appstest.NewSurface("web", "http://web.test"), data: []byte("png-bytes")}
		path, err := c.Capture(ctx, "web", surface, "20261019T090000.000Z-3f2a9c1e-02-log in-failed")
		require.NoError(t, err)

		assert.Equal(t, filepath.Join(dir, "20261019T090000.000Z-3f2a9c1e-02-log_in-failed.png"), path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, []byte("png-bytes"), data)
	})

	t.Run("ScreenshotError", func(t *testing.T) {
		surface := shotSurface{Surface: appstest.NewSurface("web", "http://web.test"), err: errors.New("tab crashed")}
		_, err := c.Capture(ctx, "web", surface, "label")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "tab crashed")
	})

	t.Run("UnsupportedSurface", func(t *testing.T) {
		_, err := c.Capture(ctx, "web", appstest.NewSurface("web", "http://web.test"), "label")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot take screenshots")
	})
}
