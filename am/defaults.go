package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "pursuit.db")

	// Pipeline (orchestrator daemon) defaults
	v.SetDefault("pipeline.workers", 4)
	v.SetDefault("pipeline.tick_interval_seconds", 60)
	v.SetDefault("pipeline.lease_grace_seconds", 900)
	v.SetDefault("pipeline.stale_after_days", 30)

	// Stage retry defaults; [stages.<name>] sections override per stage
	v.SetDefault("stages.default.max_attempts", 3)
	v.SetDefault("stages.default.base_backoff_seconds", 60)
	v.SetDefault("stages.default.backoff_multiplier", 2.0)
	v.SetDefault("stages.default.max_backoff_seconds", 3600)
	v.SetDefault("stages.default.timeout_seconds", 120)

	// Rate gate defaults; [gate.<destination>] sections override per destination
	v.SetDefault("gate.default.ceiling", 10)
	v.SetDefault("gate.default.window_seconds", 86400)

	// Scheduling defaults
	v.SetDefault("scheduling.workday_start", "09:00")
	v.SetDefault("scheduling.workday_end", "17:00")
	v.SetDefault("scheduling.buffer_minutes", 30)
	v.SetDefault("scheduling.duration_minutes", 60)
	v.SetDefault("scheduling.increment_minutes", 30)
	v.SetDefault("scheduling.horizon_days", 14)

	// Follow-up defaults
	v.SetDefault("followup.days", 5)
	v.SetDefault("followup.max", 2)

	// Response polling defaults
	v.SetDefault("responses.enabled", true)
	v.SetDefault("responses.poll_interval_minutes", 60)

	// Search filter defaults
	v.SetDefault("search.posted_within_days", 7)

	// Ingest source defaults
	v.SetDefault("sources.manifest", "sources.toml")
	v.SetDefault("sources.requests_per_minute", 10)          // Prevents bot detection on job boards
	v.SetDefault("sources.delay_between_requests_ms", 2000)  // 2 second polite delay

	// Console output defaults
	v.SetDefault("log.theme", "everforest")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Database path
	v.BindEnv("database.path", "PURSUIT_DATABASE_PATH")

	// Calendar account identity
	v.BindEnv("scheduling.account", "PURSUIT_SCHEDULING_ACCOUNT")

	// Ingest manifest location
	v.BindEnv("sources.manifest", "PURSUIT_SOURCES_MANIFEST")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "pursuit.db" // Fallback default
	}
	return c.Database.Path
}

// GetLogTheme returns the log theme (default: everforest)
func (c *Config) GetLogTheme() string {
	if c.Log.Theme == "" {
		return "everforest"
	}
	return c.Log.Theme
}

// StageOrDefault returns the stage configuration for name with defaults
// applied. Lookup order: [stages.<name>], then [stages.default], then
// built-in fallbacks for any field still zero.
func (c *Config) StageOrDefault(name string) StageConfig {
	cfg := c.Stages[name]
	base := c.Stages["default"]

	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = base.MaxAttempts
	}
	if cfg.BaseBackoffSeconds == 0 {
		cfg.BaseBackoffSeconds = base.BaseBackoffSeconds
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = base.BackoffMultiplier
	}
	if cfg.MaxBackoffSeconds == 0 {
		cfg.MaxBackoffSeconds = base.MaxBackoffSeconds
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = base.TimeoutSeconds
	}

	// Apply built-in fallbacks for any field still zero
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseBackoffSeconds == 0 {
		cfg.BaseBackoffSeconds = 60
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.MaxBackoffSeconds == 0 {
		cfg.MaxBackoffSeconds = 3600
	}
	if cfg.TimeoutSeconds == 0 {
		cfg.TimeoutSeconds = 120
	}

	return cfg
}

// GateOrDefault returns the gate configuration for destination with defaults
// applied. Lookup order: [gate.<destination>], then [gate.default], then
// built-in fallbacks.
func (c *Config) GateOrDefault(destination string) GateConfig {
	cfg := c.Gate[destination]
	base := c.Gate["default"]

	if cfg.Ceiling == 0 {
		cfg.Ceiling = base.Ceiling
	}
	if cfg.WindowSeconds == 0 {
		cfg.WindowSeconds = base.WindowSeconds
	}

	if cfg.Ceiling == 0 {
		cfg.Ceiling = 10
	}
	if cfg.WindowSeconds == 0 {
		cfg.WindowSeconds = 86400
	}

	return cfg
}

// GetSchedulingConfig returns the scheduling configuration with defaults applied
func (c *Config) GetSchedulingConfig() SchedulingConfig {
	cfg := c.Scheduling

	// Apply defaults for zero values
	if cfg.WorkdayStart == "" {
		cfg.WorkdayStart = "09:00"
	}
	if cfg.WorkdayEnd == "" {
		cfg.WorkdayEnd = "17:00"
	}
	if cfg.BufferMinutes == 0 {
		cfg.BufferMinutes = 30
	}
	if cfg.DurationMinutes == 0 {
		cfg.DurationMinutes = 60
	}
	if cfg.IncrementMinutes == 0 {
		cfg.IncrementMinutes = 30
	}
	if cfg.HorizonDays == 0 {
		cfg.HorizonDays = 14
	}

	return cfg
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Log: {Theme: %s}, Pipeline: {Workers: %d}}",
		c.Database.Path, c.Log.Theme, c.Pipeline.Workers)
}
