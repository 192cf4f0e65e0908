// Package handlers provides HTTP handlers for the e2eflow server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"time"

	"github.com/nomis52/e2eflow/config"
	"github.com/nomis52/e2eflow/runner"
	"github.com/nomis52/e2eflow/schedule"
	"github.com/nomis52/e2eflow/server/types"
	"github.com/nomis52/e2eflow/snapshot"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// Reloader can reload its configuration.
type Reloader interface {
	Reload() error
}

// ConfigReloader reloads its configuration and exposes the result.
type ConfigReloader interface {
	ConfigProvider
	Reloader
}

// SuiteRunner can start suite runs in the background.
type SuiteRunner interface {
	StartSuites(names []string) error
}

// StatusProvider provides the live state of the server.
type StatusProvider interface {
	Properties() types.ServerProperties
	Active() []runner.ActiveRun
	Running() []string
	Schedules() []schedule.Entry
	NextRun() *time.Time
}

// HistoryProvider provides access to saved run snapshots.
type HistoryProvider interface {
	Summaries() []snapshot.Summary
	History(id string) []snapshot.Snapshot
	Metrics(id string) (snapshot.Metrics, error)
}
