// Package constants provides shared constants for the wip-report application.
package constants

// ReportDateLayout is the format expected for report dates in API requests
// and is also the stored date format.
const ReportDateLayout = "2006-01-02"

// Comparison constants
const (
	// DefaultThresholdPercent is the month-over-month change threshold above
	// which a tracked field counts as a significant change.
	DefaultThresholdPercent = 5.0
)

// Server constants
const (
	// DefaultServerAddress is the listen address used when none is configured.
	DefaultServerAddress = ":8080"

	// DefaultListLimit caps listings when the request does not page.
	DefaultListLimit = 100

	// MaxListLimit is the largest page size a request may ask for.
	MaxListLimit = 1000
)

// Database constants
const (
	// DefaultDatabasePath is the SQLite file used when none is configured.
	DefaultDatabasePath = "wip-report.db"
)

// Auth constants
const (
	// DefaultTokenExpiryMinutes is the access token lifetime.
	DefaultTokenExpiryMinutes = 30
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name.
	DefaultConfigFile = "config.yaml"
)
