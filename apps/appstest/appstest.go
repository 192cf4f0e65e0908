// Package appstest provides in-memory surfaces, openers and configuration for testing
// code built on the apps package without a browser.
package appstest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nomis52/e2eflow/apps"
)

// Surface is an in-memory apps.Surface that records activations and closes.
type Surface struct {
	name    string
	baseURL string

	// CloseErr is returned from Close when set.
	CloseErr error
	// ActivateErr is returned from Activate when set.
	ActivateErr error

	mu          sync.Mutex
	activations int
	closed      bool
}

// NewSurface creates a surface for an application.
func NewSurface(name, baseURL string) *Surface {
	return &Surface{name: name, baseURL: baseURL}
}

func (s *Surface) Name() string    { return s.name }
func (s *Surface) BaseURL() string { return s.baseURL }

func (s *Surface) Activate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ActivateErr != nil {
		return s.ActivateErr
	}
	s.activations++
	return nil
}

func (s *Surface) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.CloseErr
}

// Closed reports whether Close has been called.
func (s *Surface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Activations returns how many times the surface was activated.
func (s *Surface) Activations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activations
}

// Opener is an apps.Opener that hands out Surfaces and remembers them.
type Opener struct {
	// Errs maps application names to errors returned from Open.
	Errs map[string]error

	mu       sync.Mutex
	surfaces map[string][]*Surface
}

// NewOpener creates an Opener.
func NewOpener() *Opener {
	return &Opener{
		Errs:     make(map[string]error),
		surfaces: make(map[string][]*Surface),
	}
}

func (o *Opener) Open(ctx context.Context, name, baseURL string) (apps.Surface, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.Errs[name]; err != nil {
		return nil, err
	}
	s := NewSurface(name, baseURL)
	o.surfaces[name] = append(o.surfaces[name], s)
	return s, nil
}

// Opened returns every surface opened for an application, oldest first.
func (o *Opener) Opened(name string) []*Surface {
	o.mu.Lock()
	defer o.mu.Unlock()
	result := make([]*Surface, len(o.surfaces[name]))
	copy(result, o.surfaces[name])
	return result
}

// All returns every surface opened so far.
func (o *Opener) All() []*Surface {
	o.mu.Lock()
	defer o.mu.Unlock()
	var result []*Surface
	for _, list := range o.surfaces {
		result = append(result, list...)
	}
	return result
}

// Config is a static apps.AppConfig.
type Config struct {
	URL    string
	API    string
	Broken error
}

func (c Config) Validate() error {
	if c.Broken != nil {
		return c.Broken
	}
	if c.URL == "" {
		return errors.New("base_url is required")
	}
	return nil
}

func (c Config) BaseURL() string { return c.URL }
func (c Config) APIURL() string  { return c.API }

// Resolver is a map-backed apps.ConfigResolver.
type Resolver map[string]Config

// NewResolver creates a resolver with a valid configuration for each name.
func NewResolver(names ...string) Resolver {
	r := make(Resolver, len(names))
	for _, name := range names {
		r[name] = Config{URL: fmt.Sprintf("http://%s.test", name)}
	}
	return r
}

func (r Resolver) Application(name string) (apps.AppConfig, error) {
	cfg, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apps.ErrUnknownApplication, name)
	}
	return cfg, nil
}
