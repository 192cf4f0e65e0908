// Package apps manages the execution surfaces opened for the target applications of a
// workflow run.
//
// A Set is built from the fixed list of application names a workflow declares. Each
// application is initialized at most once per run: its configuration is resolved and
// validated, a surface is opened at its base URL and an API handle is created for it.
// Exactly one application is current at a time, although every initialized surface
// stays open until ReleaseAll.
//
// # Example
//
//	set, err := apps.NewSet([]string{"web", "admin"}, cfg, opener)
//	if err != nil {
//	    return err
//	}
//	defer set.ReleaseAll()
//
//	if err := set.Initialize(ctx, "web"); err != nil {
//	    return err
//	}
//	if err := set.SwitchTo(ctx, "web"); err != nil {
//	    return err
//	}
package apps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const defaultAPITimeout = 30 * time.Second

// Surface is the execution handle opened for one application within a workflow run.
type Surface interface {
	// Name returns the application name the surface was opened for.
	Name() string
	// BaseURL returns the address the surface is scoped to.
	BaseURL() string
	// Activate brings the surface to the foreground.
	Activate(ctx context.Context) error
	// Close releases the surface. It must be safe to call more than once.
	Close() error
}

// Opener opens surfaces for applications.
type Opener interface {
	Open(ctx context.Context, name, baseURL string) (Surface, error)
}

// AppConfig is the configuration of a single application.
type AppConfig interface {
	Validate() error
	BaseURL() string
}

// APIAddresser is implemented by application configs with a dedicated API address.
// Applications without one use their base URL for API calls.
type APIAddresser interface {
	APIURL() string
}

// ConfigResolver resolves application configuration by name.
type ConfigResolver interface {
	Application(name string) (AppConfig, error)
}

// Set owns the surfaces and API handles of one workflow run.
type Set struct {
	names    []string
	known    map[string]bool
	resolver ConfigResolver
	opener   Opener
	client   *http.Client
	logger   *slog.Logger

	mu          sync.RWMutex
	surfaces    map[string]Surface
	apis        map[string]*API
	initialized map[string]bool
	current     string
	primary     string
}

// Option configures a Set.
type Option func(*Set)

// WithLogger sets the logger used by the set.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Set) {
		s.logger = logger.With("component", "apps")
	}
}

// WithHTTPClient sets the HTTP client shared by the API handles.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Set) {
		s.client = client
	}
}

// WithPrimary registers a surface owned by the caller. The set uses it for the named
// application instead of opening a new one and never closes it.
func WithPrimary(name string, surface Surface) Option {
	return func(s *Set) {
		s.primary = name
		s.surfaces[name] = surface
	}
}

// NewSet creates a set for the given application names. Duplicate names are collapsed,
// keeping the order of first appearance.
func NewSet(names []string, resolver ConfigResolver, opener Opener, opts ...Option) (*Set, error) {
	if resolver == nil {
		return nil, errors.New("config resolver is required")
	}
	if opener == nil {
		return nil, errors.New("surface opener is required")
	}

	s := &Set{
		known:       make(map[string]bool),
		resolver:    resolver,
		opener:      opener,
		client:      &http.Client{Timeout: defaultAPITimeout},
		logger:      slog.Default().With("component", "apps"),
		surfaces:    make(map[string]Surface),
		apis:        make(map[string]*API),
		initialized: make(map[string]bool),
	}

	for _, name := range names {
		if name == "" {
			return nil, errors.New("application name cannot be empty")
		}
		if s.known[name] {
			continue
		}
		s.known[name] = true
		s.names = append(s.names, name)
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.primary != "" && !s.known[s.primary] {
		return nil, fmt.Errorf("%w: primary %q", ErrUnknownApplication, s.primary)
	}

	return s, nil
}

// Names returns the declared application names in declaration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Has reports whether name is one of the declared applications.
func (s *Set) Has(name string) bool {
	return s.known[name]
}

// ValidateConfig resolves and validates the configuration of an application without
// opening anything.
func (s *Set) ValidateConfig(name string) error {
	_, err := s.resolve(name)
	return err
}

// Initialize opens the surface and API handle for an application. Calling it again for
// an initialized application is a no-op.
func (s *Set) Initialize(ctx context.Context, name string) error {
	if !s.known[name] {
		return fmt.Errorf("%w: %q", ErrUnknownApplication, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized[name] {
		return nil
	}

	cfg, err := s.resolve(name)
	if err != nil {
		return err
	}

	if _, ok := s.surfaces[name]; !ok {
		s.logger.Debug("opening surface", "application", name, "base_url", cfg.BaseURL())
		surface, err := s.opener.Open(ctx, name, cfg.BaseURL())
		if err != nil {
			return fmt.Errorf("opening surface for %s: %w", name, err)
		}
		s.surfaces[name] = surface
	}

	apiURL := cfg.BaseURL()
	if addr, ok := cfg.(APIAddresser); ok && addr.APIURL() != "" {
		apiURL = addr.APIURL()
	}
	s.apis[name] = NewAPI(name, apiURL, s.client)
	s.initialized[name] = true

	s.logger.Info("application initialized", "application", name)
	return nil
}

// Get returns the surface of an initialized application.
func (s *Set) Get(name string) (Surface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized[name] {
		return nil, &NotInitializedError{Application: name}
	}
	return s.surfaces[name], nil
}

// API returns the API handle of an initialized application.
func (s *Set) API(name string) (*API, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized[name] {
		return nil, &NotInitializedError{Application: name}
	}
	return s.apis[name], nil
}

// SwitchTo makes an initialized application current.
func (s *Set) SwitchTo(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized[name] {
		return &NotInitializedError{Application: name}
	}
	if s.current == name {
		return nil
	}

	if err := s.surfaces[name].Activate(ctx); err != nil {
		return fmt.Errorf("activating %s: %w", name, err)
	}
	s.logger.Debug("switched application", "from", s.current, "to", name)
	s.current = name
	return nil
}

// Current returns the name of the current application, or "" before the first switch.
func (s *Set) Current() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// ReleaseAll closes every surface except the primary one. All surfaces are attempted
// even if some fail to close; the failures are joined in the returned error.
func (s *Set) ReleaseAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, name := range s.names {
		surface, ok := s.surfaces[name]
		if !ok || name == s.primary {
			continue
		}
		if err := surface.Close(); err != nil {
			s.logger.Warn("failed to close surface", "application", name, "error", err)
			errs = append(errs, fmt.Errorf("closing %s: %w", name, err))
		}
		delete(s.surfaces, name)
		delete(s.apis, name)
		delete(s.initialized, name)
	}

	if s.current != s.primary {
		s.current = ""
	}
	return errors.Join(errs...)
}

func (s *Set) resolve(name string) (AppConfig, error) {
	cfg, err := s.resolver.Application(name)
	if err != nil {
		return nil, &ConfigurationError{Application: name, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Application: name, Err: err}
	}
	return cfg, nil
}
