package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	// Load config from isolated viper
	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	// Check default values are applied
	if cfg.Database.Path != "pursuit.db" {
		t.Errorf("expected default database path 'pursuit.db', got %q", cfg.Database.Path)
	}

	if cfg.Pipeline.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Pipeline.Workers)
	}

	if cfg.Pipeline.TickIntervalSeconds != 60 {
		t.Errorf("expected default tick interval 60, got %d", cfg.Pipeline.TickIntervalSeconds)
	}

	if cfg.FollowUp.Days != 5 {
		t.Errorf("expected default followup days 5, got %d", cfg.FollowUp.Days)
	}

	if !cfg.Responses.Enabled {
		t.Error("expected response polling enabled by default")
	}
}

func TestValidate_ZeroValues(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "zero workers is valid (disabled)",
			config: Config{
				Pipeline: PipelineConfig{Workers: 0},
			},
			wantErr: false,
		},
		{
			name: "negative workers is invalid",
			config: Config{
				Pipeline: PipelineConfig{Workers: -1},
			},
			wantErr: true,
		},
		{
			name: "zero tick interval is valid (disabled)",
			config: Config{
				Pipeline: PipelineConfig{TickIntervalSeconds: 0},
			},
			wantErr: false,
		},
		{
			name: "negative tick interval is invalid",
			config: Config{
				Pipeline: PipelineConfig{TickIntervalSeconds: -1},
			},
			wantErr: true,
		},
		{
			name: "zero gate ceiling is valid (falls back to default)",
			config: Config{
				Gate: map[string]GateConfig{"email": {Ceiling: 0}},
			},
			wantErr: false,
		},
		{
			name: "negative gate ceiling is invalid",
			config: Config{
				Gate: map[string]GateConfig{"email": {Ceiling: -1}},
			},
			wantErr: true,
		},
		{
			name: "negative stage attempts is invalid",
			config: Config{
				Stages: map[string]StageConfig{"extract": {MaxAttempts: -1}},
			},
			wantErr: true,
		},
		{
			name: "empty database path is valid",
			config: Config{
				Database: DatabaseConfig{Path: ""},
			},
			wantErr: false,
		},
		{
			name: "malformed workday start is invalid",
			config: Config{
				Scheduling: SchedulingConfig{WorkdayStart: "9am"},
			},
			wantErr: true,
		},
		{
			name: "workday start after end is invalid",
			config: Config{
				Scheduling: SchedulingConfig{WorkdayStart: "17:00", WorkdayEnd: "09:00"},
			},
			wantErr: true,
		},
		{
			name: "unknown timezone is invalid",
			config: Config{
				Scheduling: SchedulingConfig{Timezone: "Mars/Olympus_Mons"},
			},
			wantErr: true,
		},
		{
			name: "valid timezone passes",
			config: Config{
				Scheduling: SchedulingConfig{Timezone: "Europe/Berlin"},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	// Verify critical defaults are set
	tests := []struct {
		key      string
		expected interface{}
	}{
		{"database.path", "pursuit.db"},
		{"log.theme", "everforest"},
		{"pipeline.workers", 4},
		{"pipeline.tick_interval_seconds", 60},
		{"pipeline.lease_grace_seconds", 900},
		{"stages.default.max_attempts", 3},
		{"gate.default.ceiling", 10},
		{"gate.default.window_seconds", 86400},
		{"scheduling.workday_start", "09:00"},
		{"followup.days", 5},
		{"followup.max", 2},
		{"responses.enabled", true},
		{"sources.requests_per_minute", 10},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := v.Get(tt.key)
			if got != tt.expected {
				t.Errorf("default %s = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestFindProjectConfig(t *testing.T) {
	// Create temporary directory structure
	tmpDir := t.TempDir()

	// Test 1: pursuit.toml preferred over .pursuit.toml
	t.Run("prefers pursuit.toml", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test1", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		// Create both config files
		os.WriteFile(filepath.Join(tmpDir, "test1", "pursuit.toml"), []byte(""), DefaultFilePermissions)
		os.WriteFile(filepath.Join(tmpDir, "test1", ".pursuit.toml"), []byte(""), DefaultFilePermissions)

		// Change to subdirectory
		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result == "" {
			t.Error("expected to find config file")
		}
		if !filepath.IsAbs(result) {
			t.Error("expected absolute path")
		}
		if filepath.Base(result) != "pursuit.toml" {
			t.Errorf("expected pursuit.toml, got %s", filepath.Base(result))
		}
	})

	// Test 2: Falls back to .pursuit.toml if pursuit.toml not present
	t.Run("fallback to .pursuit.toml", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test2", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		// Create only .pursuit.toml
		os.WriteFile(filepath.Join(tmpDir, "test2", ".pursuit.toml"), []byte(""), DefaultFilePermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result == "" {
			t.Error("expected to find config file")
		}
		if filepath.Base(result) != ".pursuit.toml" {
			t.Errorf("expected .pursuit.toml, got %s", filepath.Base(result))
		}
	})

	// Test 3: Returns empty string when no config found
	t.Run("no config found", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test3", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})
}

func TestGetDatabasePath(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	path := cfg.GetDatabasePath()
	if path != "pursuit.db" {
		t.Errorf("expected default path 'pursuit.db', got %q", path)
	}
}

func TestStageOrDefault(t *testing.T) {
	cfg := Config{
		Stages: map[string]StageConfig{
			"default": {MaxAttempts: 5, BaseBackoffSeconds: 30},
			"send":    {MaxAttempts: 2, TimeoutSeconds: 45},
		},
	}

	t.Run("named stage overrides default section", func(t *testing.T) {
		send := cfg.StageOrDefault("send")
		if send.MaxAttempts != 2 {
			t.Errorf("expected max attempts 2, got %d", send.MaxAttempts)
		}
		if send.TimeoutSeconds != 45 {
			t.Errorf("expected timeout 45, got %d", send.TimeoutSeconds)
		}
		// Unset fields fall through to the default section
		if send.BaseBackoffSeconds != 30 {
			t.Errorf("expected base backoff 30 from default section, got %d", send.BaseBackoffSeconds)
		}
	})

	t.Run("unknown stage uses default section then built-ins", func(t *testing.T) {
		extract := cfg.StageOrDefault("extract")
		if extract.MaxAttempts != 5 {
			t.Errorf("expected max attempts 5 from default section, got %d", extract.MaxAttempts)
		}
		if extract.BackoffMultiplier != 2.0 {
			t.Errorf("expected built-in multiplier 2.0, got %f", extract.BackoffMultiplier)
		}
	})

	t.Run("empty config uses built-ins", func(t *testing.T) {
		var empty Config
		stage := empty.StageOrDefault("compose")
		if stage.MaxAttempts != 3 {
			t.Errorf("expected built-in max attempts 3, got %d", stage.MaxAttempts)
		}
		if stage.MaxBackoffSeconds != 3600 {
			t.Errorf("expected built-in backoff cap 3600, got %d", stage.MaxBackoffSeconds)
		}
	})
}

func TestGateOrDefault(t *testing.T) {
	cfg := Config{
		Gate: map[string]GateConfig{
			"default": {Ceiling: 20, WindowSeconds: 3600},
			"email":   {Ceiling: 5},
		},
	}

	email := cfg.GateOrDefault("email")
	if email.Ceiling != 5 {
		t.Errorf("expected ceiling 5, got %d", email.Ceiling)
	}
	if email.WindowSeconds != 3600 {
		t.Errorf("expected window 3600 from default section, got %d", email.WindowSeconds)
	}

	linkedin := cfg.GateOrDefault("linkedin")
	if linkedin.Ceiling != 20 {
		t.Errorf("expected ceiling 20 from default section, got %d", linkedin.Ceiling)
	}

	var empty Config
	unknown := empty.GateOrDefault("indeed")
	if unknown.Ceiling != 10 || unknown.WindowSeconds != 86400 {
		t.Errorf("expected built-in gate defaults, got %+v", unknown)
	}
}

func TestGetSchedulingConfig_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	sched := cfg.GetSchedulingConfig()

	// Verify all defaults are applied
	if sched.WorkdayStart != "09:00" {
		t.Errorf("expected workday start 09:00, got %s", sched.WorkdayStart)
	}
	if sched.WorkdayEnd != "17:00" {
		t.Errorf("expected workday end 17:00, got %s", sched.WorkdayEnd)
	}
	if sched.BufferMinutes != 30 {
		t.Errorf("expected buffer 30, got %d", sched.BufferMinutes)
	}
	if sched.DurationMinutes != 60 {
		t.Errorf("expected duration 60, got %d", sched.DurationMinutes)
	}
	if sched.HorizonDays != 14 {
		t.Errorf("expected horizon 14, got %d", sched.HorizonDays)
	}
}
