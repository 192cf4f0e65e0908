// Package browser drives application surfaces through Chrome DevTools with chromedp.
//
// An Opener owns one browser, local and headless by default or an already running one
// reached through its remote debugging URL. Every application gets its own tab.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/nomis52/e2eflow/apps"
	"github.com/nomis52/e2eflow/config"
)

// Opener opens one browser tab per application. It implements apps.Opener.
type Opener struct {
	cfg    config.BrowserConfig
	logger *slog.Logger

	mu          sync.Mutex
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelRoot  context.CancelFunc
}

// Option configures an Opener.
type Option func(*Opener)

// WithLogger sets a custom logger for the opener.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Opener) {
		o.logger = logger
	}
}

// NewOpener creates an opener. The browser is started on the first Open.
func NewOpener(cfg config.BrowserConfig, opts ...Option) *Opener {
	o := &Opener{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "browser")
	return o
}

// Open creates a tab for the application and navigates it to the base URL.
func (o *Opener) Open(ctx context.Context, name, baseURL string) (apps.Surface, error) {
	browserCtx, err := o.browser()
	if err != nil {
		return nil, err
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx)
	s := &Surface{
		name:       name,
		baseURL:    baseURL,
		ctx:        tabCtx,
		cancel:     cancel,
		navTimeout: o.cfg.NavigationTimeout,
		logger:     o.logger.With("application", name),
	}
	if err := s.Navigate(ctx, "/"); err != nil {
		cancel()
		return nil, fmt.Errorf("opening %s at %s: %w", name, baseURL, err)
	}
	o.logger.Info("opened application", "application", name, "url", baseURL)
	return s, nil
}

// browser returns the browser context, starting the browser on first use.
func (o *Opener) browser() (context.Context, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.browserCtx != nil {
		return o.browserCtx, nil
	}

	// Tabs outlive the call that opened them, so the browser is not bound to a request
	var allocCtx context.Context
	var cancelAlloc context.CancelFunc
	if o.cfg.RemoteURL != "" {
		allocCtx, cancelAlloc = chromedp.NewRemoteAllocator(context.Background(), o.cfg.RemoteURL)
	} else {
		allocCtx, cancelAlloc = chromedp.NewExecAllocator(context.Background(), allocatorOptions(o.cfg)...)
	}

	logf := func(format string, args ...any) {
		o.logger.Debug(fmt.Sprintf(format, args...))
	}
	errorf := func(format string, args ...any) {
		o.logger.Warn(fmt.Sprintf(format, args...))
	}
	browserCtx, cancelRoot := chromedp.NewContext(allocCtx, chromedp.WithLogf(logf), chromedp.WithErrorf(errorf))

	// Start the browser now so failures surface here rather than on the first step
	if err := chromedp.Run(browserCtx); err != nil {
		cancelRoot()
		cancelAlloc()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	o.browserCtx = browserCtx
	o.cancelAlloc = cancelAlloc
	o.cancelRoot = cancelRoot
	o.logger.Info("browser started", "remote", o.cfg.RemoteURL != "")
	return browserCtx, nil
}

// Close shuts the browser down, or disconnects from a remote one.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.browserCtx == nil {
		return nil
	}
	err := chromedp.Cancel(o.browserCtx)
	o.cancelRoot()
	o.cancelAlloc()
	o.browserCtx = nil
	return err
}

func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.ShowWindow {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	return opts
}

// withDeadline bounds ctx by d when d is positive.
func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
