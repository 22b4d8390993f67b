package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.
//
// Verbosity Levels:
//
//	0 (default) - User-facing output only: results, errors with hints, final status
//	1 (-v)      - + Progress, startup info, tick summaries
//	2 (-vv)     - + Gate decisions, timing, config loaded, collaborator calls
//	3 (-vvv)    - + SQL queries, lease activity, internal flow
//	4 (-vvvv)   - + Full payloads and data structure dumps

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults    OutputCategory = iota // Command output
	OutputErrors                           // Errors with hints and resolution steps
	OutputUserStatus                       // Final success/failure status

	// Level 1 (-v) - Informational
	OutputProgress      // Progress indicators (e.g., "Processing 50/100 postings")
	OutputStartup       // Startup banners, config summary
	OutputTickSummary   // Per-tick dispatch counts
	OutputOperationInfo // High-level operation summaries

	// Level 2 (-vv) - Detailed
	OutputGateDecisions // Rate gate grants and denials per destination
	OutputTiming        // Operation timing (e.g., "stage took 42ms")
	OutputConfig        // Config values loaded/applied
	OutputCollabCalls   // External collaborator requests made
	OutputDBStats       // Database statistics and connection info

	// Level 3 (-vvv) - Debug
	OutputLeases     // Lease acquisition, release, reaping
	OutputSQLQueries // Individual SQL queries executed
	OutputInternalOp // Internal operation flow (function entry/exit)

	// Level 4 (-vvvv) - Full dump
	OutputPayloads // Full collaborator request/response payloads
	OutputDataDump // Full data structure contents
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	// Level 0 - Always shown
	OutputResults:    VerbosityUser,
	OutputErrors:     VerbosityUser,
	OutputUserStatus: VerbosityUser,

	// Level 1 - Informational
	OutputProgress:      VerbosityInfo,
	OutputStartup:       VerbosityInfo,
	OutputTickSummary:   VerbosityInfo,
	OutputOperationInfo: VerbosityInfo,

	// Level 2 - Detailed
	OutputGateDecisions: VerbosityDebug,
	OutputTiming:        VerbosityDebug,
	OutputConfig:        VerbosityDebug,
	OutputCollabCalls:   VerbosityDebug,
	OutputDBStats:       VerbosityDebug,

	// Level 3 - Debug
	OutputLeases:     VerbosityTrace,
	OutputSQLQueries: VerbosityTrace,
	OutputInternalOp: VerbosityTrace,

	// Level 4 - Full dump
	OutputPayloads: VerbosityAll,
	OutputDataDump: VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		// Unknown category, default to highest verbosity required
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}

// categoryNames provides human-readable names for output categories
var categoryNames = map[OutputCategory]string{
	OutputResults:       "results",
	OutputErrors:        "errors",
	OutputUserStatus:    "status",
	OutputProgress:      "progress",
	OutputStartup:       "startup",
	OutputTickSummary:   "tick-summary",
	OutputOperationInfo: "operation-info",
	OutputGateDecisions: "gate-decisions",
	OutputTiming:        "timing",
	OutputConfig:        "config",
	OutputCollabCalls:   "collab",
	OutputDBStats:       "db-stats",
	OutputLeases:        "leases",
	OutputSQLQueries:    "sql",
	OutputInternalOp:    "internal",
	OutputPayloads:      "payloads",
	OutputDataDump:      "data-dump",
}

// CategoryName returns the human-readable name for an output category
func CategoryName(category OutputCategory) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return "unknown"
}

// EnabledCategories returns all output categories enabled at the given verbosity
func EnabledCategories(verbosity int) []OutputCategory {
	var enabled []OutputCategory
	for cat, minLevel := range categoryLevels {
		if verbosity >= minLevel {
			enabled = append(enabled, cat)
		}
	}
	return enabled
}

// VerbosityDescription returns a description of what's shown at each level
func VerbosityDescription(verbosity int) string {
	switch verbosity {
	case VerbosityUser:
		return "results and errors only"
	case VerbosityInfo:
		return "results, errors, progress, and status"
	case VerbosityDebug:
		return "above + gate decisions, timing, config details"
	case VerbosityTrace:
		return "above + leases, SQL, internal flow"
	case VerbosityAll:
		return "full output including collaborator payloads"
	default:
		if verbosity > VerbosityAll {
			return "maximum verbosity"
		}
		return "unknown verbosity level"
	}
}
