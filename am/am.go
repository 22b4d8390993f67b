package am

// Config represents the core pursuit configuration
type Config struct {
	Database   DatabaseConfig         `mapstructure:"database"`
	Pipeline   PipelineConfig         `mapstructure:"pipeline"`
	Stages     map[string]StageConfig `mapstructure:"stages"`
	Gate       map[string]GateConfig  `mapstructure:"gate"`
	Scheduling SchedulingConfig       `mapstructure:"scheduling"`
	FollowUp   FollowUpConfig         `mapstructure:"followup"`
	Responses  ResponsesConfig        `mapstructure:"responses"`
	Search     SearchConfig           `mapstructure:"search"`
	Sources    SourcesConfig          `mapstructure:"sources"`
	Log        LogConfig              `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig configures the orchestrator daemon
type PipelineConfig struct {
	// Worker concurrency configuration
	Workers int `mapstructure:"workers"` // Number of concurrent stage workers (default: 4)

	// Ticker configuration for poll-and-dispatch
	TickIntervalSeconds int `mapstructure:"tick_interval_seconds"` // How often to poll for due records (default: 60)

	// Leases older than this are treated as abandoned by a crashed process
	LeaseGraceSeconds int `mapstructure:"lease_grace_seconds"` // Orphan lease grace period (default: 900)

	// Records with no activity for this long are flagged stale
	StaleAfterDays int `mapstructure:"stale_after_days"` // 0 = never mark stale (default: 30)
}

// StageConfig configures retry and timeout behavior for one pipeline stage.
// Zero values fall back to the defaults in StageOrDefault.
type StageConfig struct {
	MaxAttempts        int     `mapstructure:"max_attempts"`         // Attempts before a record is marked failed (default: 3)
	BaseBackoffSeconds int     `mapstructure:"base_backoff_seconds"` // First retry delay (default: 60)
	BackoffMultiplier  float64 `mapstructure:"backoff_multiplier"`   // Exponential growth factor (default: 2.0)
	MaxBackoffSeconds  int     `mapstructure:"max_backoff_seconds"`  // Backoff cap (default: 3600)
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`      // Per-attempt deadline (default: 120)
}

// GateConfig configures the rate gate for one destination.
// Zero values fall back to the defaults in GateOrDefault.
type GateConfig struct {
	Ceiling       int `mapstructure:"ceiling"`        // Max grants per window (default: 10)
	WindowSeconds int `mapstructure:"window_seconds"` // Sliding window length (default: 86400)
}

// SchedulingConfig configures interview slot search
type SchedulingConfig struct {
	WorkdayStart     string   `mapstructure:"workday_start"`     // "HH:MM" (default: "09:00")
	WorkdayEnd       string   `mapstructure:"workday_end"`       // "HH:MM" (default: "17:00")
	BufferMinutes    int      `mapstructure:"buffer_minutes"`    // Gap required around commitments (default: 30)
	DurationMinutes  int      `mapstructure:"duration_minutes"`  // Default interview length (default: 60)
	IncrementMinutes int      `mapstructure:"increment_minutes"` // Candidate slot step (default: 30)
	HorizonDays      int      `mapstructure:"horizon_days"`      // How far ahead to search (default: 14)
	Timezone         string   `mapstructure:"timezone"`          // IANA name; empty = detect local
	Account          string   `mapstructure:"account"`           // Calendar account identity
	Participants     []string `mapstructure:"participants"`      // Extra attendees on bookings
}

// FollowUpConfig configures follow-up nudges on unanswered applications
type FollowUpConfig struct {
	Days int `mapstructure:"days"` // Days of silence before a follow-up (default: 5)
	Max  int `mapstructure:"max"`  // Follow-ups before giving up (default: 2)
}

// ResponsesConfig configures inbox polling for employer replies
type ResponsesConfig struct {
	Enabled             bool `mapstructure:"enabled"`               // Poll for responses (default: true)
	PollIntervalMinutes int  `mapstructure:"poll_interval_minutes"` // Minutes between polls (default: 60)
}

// SearchConfig configures which postings ingest keeps
type SearchConfig struct {
	Keywords         []string `mapstructure:"keywords"`           // Title/description terms; empty = keep all
	Locations        []string `mapstructure:"locations"`          // Acceptable locations; empty = keep all
	ExcludeCompanies []string `mapstructure:"exclude_companies"`  // Companies to drop outright
	PostedWithinDays int      `mapstructure:"posted_within_days"` // Drop postings older than this (default: 7)
}

// SourcesConfig configures the ingest runner
type SourcesConfig struct {
	Manifest               string `mapstructure:"manifest"`                  // Path to sources.toml (default: "sources.toml")
	RequestsPerMinute      int    `mapstructure:"requests_per_minute"`       // Politeness ceiling per source (default: 10)
	DelayBetweenRequestsMS int    `mapstructure:"delay_between_requests_ms"` // Minimum gap between fetches (default: 2000)
	MaxPostingsPerCycle    int    `mapstructure:"max_postings_per_cycle"`    // 0 = unlimited
}

// LogConfig configures console output
type LogConfig struct {
	Theme string `mapstructure:"theme"` // Color theme: gruvbox, everforest
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
