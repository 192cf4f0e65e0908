package apps

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// API is the HTTP handle for one application's API. Steps use it for setup and
// verification calls that do not go through the browser.
type API struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewAPI creates an API handle rooted at baseURL.
func NewAPI(name, baseURL string, client *http.Client) *API {
	if client == nil {
		client = http.DefaultClient
	}
	return &API{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Name returns the application name.
func (a *API) Name() string {
	return a.name
}

// BaseURL returns the API base URL.
func (a *API) BaseURL() string {
	return a.baseURL
}

// URL resolves a path against the base URL.
func (a *API) URL(path string) string {
	if path == "" {
		return a.baseURL
	}
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return a.baseURL + "/" + strings.TrimLeft(path, "/")
}

// NewRequest creates a request for a path relative to the base URL.
func (a *API) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("creating %s request for %s: %w", method, a.name, err)
	}
	return req, nil
}

// Do sends a request with the handle's client.
func (a *API) Do(req *http.Request) (*http.Response, error) {
	return a.client.Do(req)
}

// Get issues a GET for a path relative to the base URL.
func (a *API) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := a.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return a.Do(req)
}
