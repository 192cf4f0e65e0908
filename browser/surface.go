package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// Surface is one browser tab bound to an application. It implements apps.Surface.
type Surface struct {
	name       string
	baseURL    string
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
	logger     *slog.Logger
}

func (s *Surface) Name() string    { return s.name }
func (s *Surface) BaseURL() string { return s.baseURL }

// Run runs chromedp actions in the tab. They are stopped when ctx is done.
func (s *Surface) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		// Report the caller's reason rather than the internal cancellation
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", s.name, ctx.Err())
		}
		return err
	}
	return nil
}

// Navigate loads a path, or an absolute URL, relative to the base URL.
func (s *Surface) Navigate(ctx context.Context, path string) error {
	u, err := ResolveURL(s.baseURL, path)
	if err != nil {
		return err
	}
	navCtx, cancel := withDeadline(ctx, s.navTimeout)
	defer cancel()
	s.logger.Debug("navigating", "url", u)
	return s.Run(navCtx, chromedp.Navigate(u))
}

// Activate brings the tab to the foreground.
func (s *Surface) Activate(ctx context.Context) error {
	return s.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		c := chromedp.FromContext(ctx)
		if c == nil || c.Target == nil {
			return fmt.Errorf("%s: tab has no target", s.name)
		}
		return target.ActivateTarget(c.Target.TargetID).Do(ctx)
	}))
}

// Screenshot captures the whole page as a PNG.
func (s *Surface) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.Run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Text returns the visible text of the first element matching the selector.
func (s *Surface) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := s.Run(ctx, chromedp.WaitVisible(selector), chromedp.Text(selector, &text)); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// Location returns the URL the tab is showing.
func (s *Surface) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.Run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Close closes the tab.
func (s *Surface) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if err != nil {
		return fmt.Errorf("closing %s: %w", s.name, err)
	}
	return nil
}

// ResolveURL resolves ref against base. Absolute references are returned unchanged.
func ResolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", base, err)
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", ref, err)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	// Keep the base path so "/login" on http://host/app resolves to http://host/app/login
	if strings.HasPrefix(ref, "/") && b.Path != "" && b.Path != "/" {
		r.Path = strings.TrimSuffix(b.Path, "/") + r.Path
	}
	return b.ResolveReference(r).String(), nil
}
