package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"sort"
	"time"

	"github.com/nomis52/e2eflow/apps"
	"gopkg.in/yaml.v3"
)

const (
	// Default engine settings
	defaultRetryDelay  = 2 * time.Second
	defaultRunTimeout  = 5 * time.Minute
	defaultStepTimeout = 30 * time.Second

	// Default browser settings
	defaultWindowWidth       = 1280
	defaultWindowHeight      = 800
	defaultNavigationTimeout = 30 * time.Second

	// Default storage settings
	defaultMaxSnapshots = 100
	defaultArtifactsDir = "artifacts"

	// Default monitoring settings
	defaultMetricsPrefix = "e2eflow"
	defaultJobName       = "e2eflow"

	// Default logging settings
	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stdout"

	// Default server settings
	defaultListenAddr = ":8080"

	redactedValue = "REDACTED"
)

// Step actions understood by the suite factory.
const (
	ActionNavigate    = "navigate"
	ActionWaitVisible = "wait_visible"
	ActionClick       = "click"
	ActionType        = "type"
	ActionExpectText  = "expect_text"
	ActionAPIGet      = "api_get"
	ActionAPIStatus   = "api_status"
	ActionStoreText   = "store_text"
)

var actions = []string{
	ActionNavigate,
	ActionWaitVisible,
	ActionClick,
	ActionType,
	ActionExpectText,
	ActionAPIGet,
	ActionAPIStatus,
	ActionStoreText,
}

// Config represents the complete application configuration
type Config struct {
	Applications map[string]ApplicationConfig `yaml:"applications"`
	Browser      BrowserConfig                `yaml:"browser"`
	Engine       EngineConfig                 `yaml:"engine"`
	State        StateConfig                  `yaml:"state"`
	Artifacts    ArtifactsConfig              `yaml:"artifacts"`
	Monitoring   MonitoringConfig             `yaml:"monitoring"`
	Logging      LoggingConfig                `yaml:"logging"`
	Server       ServerConfig                 `yaml:"server"`
	Suites       []SuiteConfig                `yaml:"suites"`
	Schedules    []ScheduleConfig             `yaml:"schedules"`
}

// ApplicationConfig holds the addresses of one target application
type ApplicationConfig struct {
	// URL is the base address the application's browser surface is opened at
	URL string `yaml:"url"`

	// API is the base address for API calls, defaults to URL
	API string `yaml:"api_url"`

	// Headers are added to every API request made against the application
	Headers map[string]string `yaml:"headers"`
}

// BaseURL implements apps.AppConfig.
func (a ApplicationConfig) BaseURL() string {
	return a.URL
}

// APIURL implements apps.APIAddresser.
func (a ApplicationConfig) APIURL() string {
	return a.API
}

// Validate implements apps.AppConfig.
func (a ApplicationConfig) Validate() error {
	if a.URL == "" {
		return errors.New("url is required")
	}
	if err := validateURL(a.URL); err != nil {
		return fmt.Errorf("url: %w", err)
	}
	if a.API != "" {
		if err := validateURL(a.API); err != nil {
			return fmt.Errorf("api_url: %w", err)
		}
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q in %s", u.Scheme, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in %s", raw)
	}
	return nil
}

// BrowserConfig holds the settings of the browser surfaces
type BrowserConfig struct {
	// RemoteURL is the DevTools websocket URL of an already running browser.
	// When empty a local headless browser is started.
	RemoteURL string `yaml:"remote_url"`

	// ExecPath overrides the browser binary
	ExecPath string `yaml:"exec_path"`

	// ShowWindow disables headless mode for local debugging
	ShowWindow bool `yaml:"show_window"`

	WindowWidth       int           `yaml:"window_width"`
	WindowHeight      int           `yaml:"window_height"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
}

// EngineConfig holds the workflow execution policy
type EngineConfig struct {
	RetryFailedSteps    int           `yaml:"retry_failed_steps"`
	RetryDelay          time.Duration `yaml:"retry_delay"`
	ContinueOnError     bool          `yaml:"continue_on_error"`
	Timeout             time.Duration `yaml:"timeout"`
	StepTimeout         time.Duration `yaml:"step_timeout"`
	ScreenshotOnSuccess bool          `yaml:"screenshot_on_success"`

	// Parallel runs several suites concurrently instead of one after another
	Parallel bool `yaml:"parallel"`
	// MaxParallel limits concurrent suites, 0 means unlimited
	MaxParallel int `yaml:"max_parallel"`
	// ContinueSequence keeps running later suites after one fails
	ContinueSequence bool `yaml:"continue_sequence"`
}

// StateConfig controls where state snapshots are kept
type StateConfig struct {
	// Dir stores snapshots on disk. When empty snapshots are only kept in memory.
	Dir string `yaml:"dir"`

	// MaxSnapshots is the number of snapshots kept per workflow run
	MaxSnapshots int `yaml:"max_snapshots"`
}

// ArtifactsConfig controls where diagnostic captures are written
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

// MonitoringConfig holds metrics and monitoring settings
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// LoggingConfig defines logging behavior settings
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	// The listen address, defaults to :8080
	Addr string `yaml:"addr"`

	// TLSCert and TLSKey enable HTTPS. Both must be set or neither.
	TLSCert string `yaml:"tls_cert"`
	TLSKey  string `yaml:"tls_key"`
}

// TLSEnabled returns true if a certificate and key are configured.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCert != "" && s.TLSKey != ""
}

// SuiteConfig declares a workflow as a list of steps
type SuiteConfig struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Steps       []StepConfig `yaml:"steps"`

	// Optional overrides of the engine settings
	RetryFailedSteps *int          `yaml:"retry_failed_steps"`
	ContinueOnError  *bool         `yaml:"continue_on_error"`
	Timeout          time.Duration `yaml:"timeout"`
}

// Applications returns the distinct applications used by the suite in the order they
// first appear.
func (s SuiteConfig) Applications() []string {
	var names []string
	for _, step := range s.Steps {
		if !slices.Contains(names, step.Application) {
			names = append(names, step.Application)
		}
	}
	return names
}

// StepConfig declares a single step of a suite
type StepConfig struct {
	Name        string `yaml:"name"`
	Application string `yaml:"app"`
	Action      string `yaml:"action"`

	// Path is resolved against the application's base or API URL
	Path     string `yaml:"path"`
	Selector string `yaml:"selector"`
	Value    string `yaml:"value"`
	Text     string `yaml:"text"`

	// Status is the HTTP status expected by api_status
	Status int `yaml:"status"`

	StoreAs     string        `yaml:"store_as"`
	Recoverable bool          `yaml:"recoverable"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ScheduleConfig runs a set of suites on a cron schedule
type ScheduleConfig struct {
	Suites   []string `yaml:"suites"`
	Schedule string   `yaml:"schedule"`
}

// Application implements apps.ConfigResolver.
func (c *Config) Application(name string) (apps.AppConfig, error) {
	app, ok := c.Applications[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not configured", apps.ErrUnknownApplication, name)
	}
	return app, nil
}

// Suite returns the suite with the given name.
func (c *Config) Suite(name string) (SuiteConfig, bool) {
	for _, s := range c.Suites {
		if s.Name == name {
			return s, true
		}
	}
	return SuiteConfig{}, false
}

// SuiteNames returns the configured suite names in declaration order.
func (c *Config) SuiteNames() []string {
	names := make([]string, len(c.Suites))
	for i, s := range c.Suites {
		names[i] = s.Name
	}
	return names
}

// ApplicationNames returns the configured application names, sorted.
func (c *Config) ApplicationNames() []string {
	names := make([]string, 0, len(c.Applications))
	for name := range c.Applications {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	if len(c.Applications) == 0 {
		return fmt.Errorf("at least one application is required")
	}
	for _, name := range c.ApplicationNames() {
		if err := c.Applications[name].Validate(); err != nil {
			return fmt.Errorf("application %s: %w", name, err)
		}
	}
	if c.Engine.RetryFailedSteps < 0 {
		return fmt.Errorf("retry_failed_steps must not be negative")
	}
	if c.Engine.RetryDelay < 0 {
		return fmt.Errorf("retry delay must not be negative")
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("workflow timeout must be positive")
	}
	if c.Engine.MaxParallel < 0 {
		return fmt.Errorf("max_parallel must not be negative")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("server: tls_cert and tls_key must be set together")
	}

	seen := make(map[string]bool)
	for i, suite := range c.Suites {
		if suite.Name == "" {
			return fmt.Errorf("suite %d: name is required", i+1)
		}
		if seen[suite.Name] {
			return fmt.Errorf("suite %s: duplicate name", suite.Name)
		}
		seen[suite.Name] = true
		if err := c.validateSuite(suite); err != nil {
			return fmt.Errorf("suite %s: %w", suite.Name, err)
		}
	}

	for i, sched := range c.Schedules {
		if sched.Schedule == "" {
			return fmt.Errorf("schedule %d: schedule is required", i+1)
		}
		if len(sched.Suites) == 0 {
			return fmt.Errorf("schedule %d: at least one suite is required", i+1)
		}
		for _, name := range sched.Suites {
			if !seen[name] {
				return fmt.Errorf("schedule %d: unknown suite %q", i+1, name)
			}
		}
	}
	return nil
}

func (c *Config) validateSuite(suite SuiteConfig) error {
	if len(suite.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	if suite.RetryFailedSteps != nil && *suite.RetryFailedSteps < 0 {
		return fmt.Errorf("retry_failed_steps must not be negative")
	}
	for i, step := range suite.Steps {
		if step.Name == "" {
			return fmt.Errorf("step %d: name is required", i+1)
		}
		if _, ok := c.Applications[step.Application]; !ok {
			return fmt.Errorf("step %d (%s): unknown application %q", i+1, step.Name, step.Application)
		}
		if !slices.Contains(actions, step.Action) {
			return fmt.Errorf("step %d (%s): unknown action %q", i+1, step.Name, step.Action)
		}
	}
	return nil
}

// Redacted returns a copy of the config with API header values masked, since they
// usually carry credentials.
func (c *Config) Redacted() *Config {
	out := *c
	out.Applications = make(map[string]ApplicationConfig, len(c.Applications))
	for name, app := range c.Applications {
		if len(app.Headers) > 0 {
			headers := make(map[string]string, len(app.Headers))
			for k := range app.Headers {
				headers[k] = redactedValue
			}
			app.Headers = headers
		}
		out.Applications[name] = app
	}
	return &out
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Engine.RetryDelay == 0 {
		c.Engine.RetryDelay = defaultRetryDelay
	}
	if c.Engine.Timeout == 0 {
		c.Engine.Timeout = defaultRunTimeout
	}
	if c.Engine.StepTimeout == 0 {
		c.Engine.StepTimeout = defaultStepTimeout
	}
	if c.Browser.WindowWidth == 0 {
		c.Browser.WindowWidth = defaultWindowWidth
	}
	if c.Browser.WindowHeight == 0 {
		c.Browser.WindowHeight = defaultWindowHeight
	}
	if c.Browser.NavigationTimeout == 0 {
		c.Browser.NavigationTimeout = defaultNavigationTimeout
	}
	if c.State.MaxSnapshots == 0 {
		c.State.MaxSnapshots = defaultMaxSnapshots
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = defaultArtifactsDir
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	// Set logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaultListenAddr
	}
	// Defaults for boolean fields are already false, which is appropriate
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode YAML config: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
