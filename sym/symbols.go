// Package sym defines canonical symbols for pursuit subsystem markers.
// These symbols are stable across CLI output, logs, and documentation.
package sym

// Primary operators. Each has a CLI command.
const (
	AM = "≡" // am: configuration and system settings
	IX = "⨳" // ix: ingest postings from configured sources
	AT = "✦" // at: temporal, calendar slots and interview booking
)

// System infrastructure symbols.
const (
	Pulse      = "꩜" // pipeline daemon, stage dispatch and rate gates
	PulseOpen  = "✿" // graceful startup with lease recovery
	PulseClose = "❀" // graceful shutdown
	DB         = "⊔" // database/storage layer
)

// CommandToSymbol maps CLI command names to their canonical glyphs.
var CommandToSymbol = map[string]string{
	"am":     AM,
	"ingest": IX,
	"slots":  AT,
	"run":    Pulse,
	"db":     DB,
}

// CommandDescriptions provides human-readable explanations for help output.
var CommandDescriptions = map[string]string{
	"am":     "Configuration — System settings and state",
	"ingest": "Ingest — Pull postings from configured sources",
	"slots":  "Temporal — Calendar availability and booking",
	"run":    "Pipeline — Stage dispatch under rate gates",
	"db":     "Database — Storage management",
}
