package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"mime"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/nomis52/e2eflow/config"
	"github.com/nomis52/e2eflow/workflow"
)

// maxBodySize bounds how much of an API response is read.
const maxBodySize = 1 << 20

// Navigator is a surface that can load pages.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

// ActionRunner is a surface that runs browser actions.
type ActionRunner interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
}

// TextReader is a surface that reads element text.
type TextReader interface {
	Text(ctx context.Context, selector string) (string, error)
}

// newStep builds the workflow step for a configured step. stored holds the data keys
// written by the steps before it.
func (p Params) newStep(sc config.StepConfig, stored map[string]bool) (workflow.Step, error) {
	run, err := p.action(sc)
	if err != nil {
		return workflow.Step{}, err
	}

	timeout := p.Config.Engine.StepTimeout
	if sc.Timeout > 0 {
		timeout = sc.Timeout
	}

	available := maps.Clone(stored)
	return workflow.Step{
		Name:        sc.Name,
		Application: sc.Application,
		Run:         run,
		Validate: func(wc *workflow.Context) workflow.ValidationResult {
			return validateStep(sc, available)
		},
		StoreAs:     sc.StoreAs,
		Recoverable: sc.Recoverable,
		Timeout:     timeout,
	}, nil
}

func (p Params) action(sc config.StepConfig) (workflow.StepFunc, error) {
	switch sc.Action {
	case config.ActionNavigate:
		return navigate(sc), nil
	case config.ActionWaitVisible:
		return browserActions(sc, func(sel, _ string) []chromedp.Action {
			return []chromedp.Action{chromedp.WaitVisible(sel)}
		}), nil
	case config.ActionClick:
		return browserActions(sc, func(sel, _ string) []chromedp.Action {
			return []chromedp.Action{chromedp.WaitVisible(sel), chromedp.Click(sel)}
		}), nil
	case config.ActionType:
		return browserActions(sc, func(sel, value string) []chromedp.Action {
			return []chromedp.Action{chromedp.WaitVisible(sel), chromedp.SendKeys(sel, value)}
		}), nil
	case config.ActionExpectText:
		return readText(sc, true), nil
	case config.ActionStoreText:
		return readText(sc, false), nil
	case config.ActionAPIGet:
		return p.apiCall(sc, false), nil
	case config.ActionAPIStatus:
		return p.apiCall(sc, true), nil
	default:
		return nil, fmt.Errorf("unknown action %q", sc.Action)
	}
}

// validateStep checks a step's arguments before anything is opened. Data references
// must name keys stored by an earlier step.
func validateStep(sc config.StepConfig, stored map[string]bool) workflow.ValidationResult {
	var errs []string
	switch sc.Action {
	case config.ActionWaitVisible, config.ActionClick:
		if sc.Selector == "" {
			errs = append(errs, "selector is required")
		}
	case config.ActionType:
		if sc.Selector == "" {
			errs = append(errs, "selector is required")
		}
		if sc.Value == "" {
			errs = append(errs, "value is required")
		}
	case config.ActionExpectText:
		if sc.Selector == "" {
			errs = append(errs, "selector is required")
		}
		if sc.Text == "" {
			errs = append(errs, "text is required")
		}
	case config.ActionStoreText:
		if sc.Selector == "" {
			errs = append(errs, "selector is required")
		}
		if sc.StoreAs == "" {
			errs = append(errs, "store_as is required")
		}
	case config.ActionAPIStatus:
		if sc.Status != 0 && (sc.Status < 100 || sc.Status > 599) {
			errs = append(errs, fmt.Sprintf("status %d is not an HTTP status", sc.Status))
		}
	}

	for _, field := range []string{sc.Path, sc.Value, sc.Text} {
		for _, key := range references(field) {
			if !stored[key] {
				errs = append(errs, fmt.Sprintf("${%s} is not stored by an earlier step", key))
			}
		}
	}

	if len(errs) > 0 {
		return workflow.Invalid(errs...)
	}
	return workflow.Valid()
}

func navigate(sc config.StepConfig) workflow.StepFunc {
	return func(ctx context.Context, wc *workflow.Context) (any, error) {
		surface, err := wc.Active()
		if err != nil {
			return nil, err
		}
		nav, ok := surface.(Navigator)
		if !ok {
			return nil, fmt.Errorf("surface for %s cannot navigate", sc.Application)
		}
		path, err := expand(sc.Path, wc)
		if err != nil {
			return nil, err
		}
		wc.Logger().Debug("navigating", "path", path)
		if err := nav.Navigate(ctx, path); err != nil {
			return nil, err
		}
		return path, nil
	}
}

func browserActions(sc config.StepConfig, build func(selector, value string) []chromedp.Action) workflow.StepFunc {
	return func(ctx context.Context, wc *workflow.Context) (any, error) {
		surface, err := wc.Active()
		if err != nil {
			return nil, err
		}
		runner, ok := surface.(ActionRunner)
		if !ok {
			return nil, fmt.Errorf("surface for %s cannot run browser actions", sc.Application)
		}
		value, err := expand(sc.Value, wc)
		if err != nil {
			return nil, err
		}
		if err := runner.Run(ctx, build(sc.Selector, value)...); err != nil {
			return nil, fmt.Errorf("%s %s: %w", sc.Action, sc.Selector, err)
		}
		return nil, nil
	}
}

func readText(sc config.StepConfig, expect bool) workflow.StepFunc {
	return func(ctx context.Context, wc *workflow.Context) (any, error) {
		surface, err := wc.Active()
		if err != nil {
			return nil, err
		}
		reader, ok := surface.(TextReader)
		if !ok {
			return nil, fmt.Errorf("surface for %s cannot read text", sc.Application)
		}
		text, err := reader.Text(ctx, sc.Selector)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", sc.Selector, err)
		}
		if expect {
			want, err := expand(sc.Text, wc)
			if err != nil {
				return nil, err
			}
			if !strings.Contains(text, want) {
				return nil, fmt.Errorf("%s: expected text %q, got %q", sc.Selector, want, text)
			}
		}
		return text, nil
	}
}

// apiCall issues a GET against the application's API. With checkOnly the step
// succeeds when the response status matches (200 unless configured) and returns the
// status code; otherwise it returns the decoded body.
func (p Params) apiCall(sc config.StepConfig, checkOnly bool) workflow.StepFunc {
	headers := p.Config.Applications[sc.Application].Headers
	return func(ctx context.Context, wc *workflow.Context) (any, error) {
		api, err := wc.API(sc.Application)
		if err != nil {
			return nil, err
		}
		path, err := expand(sc.Path, wc)
		if err != nil {
			return nil, err
		}

		req, err := api.NewRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		for _, k := range slices.Sorted(maps.Keys(headers)) {
			req.Header.Set(k, headers[k])
		}

		wc.Logger().Debug("calling api", "url", req.URL.String())
		resp, err := api.Do(req)
		if err != nil {
			return nil, fmt.Errorf("GET %s: %w", req.URL, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("reading response from %s: %w", req.URL, err)
		}

		want := sc.Status
		if checkOnly && want == 0 {
			want = http.StatusOK
		}
		switch {
		case want != 0 && resp.StatusCode != want:
			return nil, fmt.Errorf("GET %s: expected status %d, got %d: %s", req.URL, want, resp.StatusCode, snippet(body))
		case want == 0 && resp.StatusCode >= 400:
			return nil, fmt.Errorf("GET %s: status %d: %s", req.URL, resp.StatusCode, snippet(body))
		}

		if checkOnly {
			return resp.StatusCode, nil
		}
		return decodeBody(resp.Header.Get("Content-Type"), body)
	}
}

func decodeBody(contentType string, body []byte) (any, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType != "application/json" && !strings.HasSuffix(mediaType, "+json") {
		return string(body), nil
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("decoding json response: %w", err)
	}
	return v, nil
}

func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// references returns the ${key} data references in s.
func references(s string) []string {
	var keys []string
	os.Expand(s, func(key string) string {
		keys = append(keys, key)
		return ""
	})
	return keys
}

// expand replaces ${key} references in s with values stored by earlier steps.
func expand(s string, wc *workflow.Context) (string, error) {
	var missing []string
	out := os.Expand(s, func(key string) string {
		v, ok := wc.Data(key)
		if !ok {
			missing = append(missing, key)
			return ""
		}
		return fmt.Sprint(v)
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("no stored data for %s", strings.Join(missing, ", "))
	}
	return out, nil
}
