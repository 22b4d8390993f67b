package am

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var globalConfig *Config
var viperInstance *viper.Viper

// ConfigSources records where each configuration key came from during the
// last load. Keys are dotted paths ("pipeline.workers"); introspection reads
// this map so the am command can show provenance.
var ConfigSources = map[string]SourceInfo{}

// Load reads the pursuit configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Set defaults but don't bind environment variables for this specific load
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from %s: %w", configPath, err)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
	ConfigSources = map[string]SourceInfo{}
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	// Set up environment variable binding
	v.SetEnvPrefix("PURSUIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific sensitive configuration values to environment variables
	BindSensitiveEnvVars(v)

	// Set defaults first
	SetDefaults(v)

	// Seed provenance for every default key; file merging below overwrites
	// the entries for keys a file actually provides
	for _, key := range v.AllKeys() {
		ConfigSources[key] = SourceInfo{Source: SourceDefault, Path: ""}
	}

	// Manually merge configs in precedence order: system -> user -> cli -> project
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig searches for pursuit.toml or .pursuit.toml by walking up
// the directory tree. Returns the path to the first config file found, or
// empty string if none found. Preference order: pursuit.toml > .pursuit.toml
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	// Walk up the directory tree looking for config files
	for {
		// Check for pursuit.toml first
		visiblePath := filepath.Join(dir, "pursuit.toml")
		if _, err := os.Stat(visiblePath); err == nil {
			return visiblePath
		}

		// Fall back to .pursuit.toml (hidden variant)
		hiddenPath := filepath.Join(dir, ".pursuit.toml")
		if _, err := os.Stat(hiddenPath); err == nil {
			return hiddenPath
		}

		// Move to parent directory
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root, stop searching
			break
		}
		dir = parent
	}

	return ""
}

// mergedFile pairs a config path with the source label recorded for its keys
type mergedFile struct {
	path   string
	source ConfigSource
}

// mergeConfigFiles manually merges configuration files in the correct
// precedence order, recording per-key provenance in ConfigSources.
// Precedence (lowest to highest): system < user < cli overrides < project < env vars
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	// Ensure ~/.pursuit directory exists
	pursuitDir := filepath.Join(homeDir, ".pursuit")
	os.MkdirAll(pursuitDir, DefaultDirPermissions)

	// Build config paths, with project config found via upward search
	files := []mergedFile{
		{"/etc/pursuit/config.toml", SourceSystem},                    // System config (lowest precedence)
		{filepath.Join(pursuitDir, "config.toml"), SourceUser},        // User config (backward compat)
		{filepath.Join(pursuitDir, "pursuit.toml"), SourceUser},       // User config (preferred name)
		{filepath.Join(pursuitDir, "am_from_cli.toml"), SourceUserCLI}, // am set overrides
	}

	// Add project config if found (highest file precedence, below env vars)
	if projectConfig := findProjectConfig(); projectConfig != "" {
		files = append(files, mergedFile{projectConfig, SourceProject})
	}

	for _, file := range files {
		if _, err := os.Stat(file.path); err != nil {
			continue
		}

		// Config file exists, merge it
		tempViper := viper.New()
		tempViper.SetConfigFile(file.path)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		// Record provenance for every leaf key this file provides. A later
		// file overwrites the entry, so the map always names the winner.
		markSettingsFromSource(tempViper.AllSettings(), "", file.source, file.path, ConfigSources)

		// MergeConfigMap deep-merges at the config layer, so a later file
		// overrides one key without clobbering siblings from an earlier
		// file, and environment variables still outrank every file.
		v.MergeConfigMap(tempViper.AllSettings())
	}
}

// Get returns a configuration value using dot notation
func Get(key string) interface{} {
	v := initViper()
	return v.Get(key)
}

// GetString returns a configuration value as string using dot notation
func GetString(key string) string {
	v := initViper()
	return v.GetString(key)
}

// GetBool returns a configuration value as bool using dot notation
func GetBool(key string) bool {
	v := initViper()
	return v.GetBool(key)
}

// GetInt returns a configuration value as int using dot notation
func GetInt(key string) int {
	v := initViper()
	return v.GetInt(key)
}

// GetFloat64 returns a configuration value as float64 using dot notation
func GetFloat64(key string) float64 {
	v := initViper()
	return v.GetFloat64(key)
}

// ActiveConfigPath returns the highest-precedence config file currently
// present, or empty when configuration comes from defaults and environment
// only. The run daemon watches this file for live reloads.
func ActiveConfigPath() string {
	if projectConfig := findProjectConfig(); projectConfig != "" {
		return projectConfig
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	pursuitDir := filepath.Join(homeDir, ".pursuit")
	for _, name := range []string{"am_from_cli.toml", "pursuit.toml", "config.toml"} {
		path := filepath.Join(pursuitDir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// GetDatabasePath returns the configured database path
func GetDatabasePath() (string, error) {
	// Check for DB_PATH environment variable first (for dev mode override)
	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		return dbPath, nil
	}

	config, err := Load()
	if err != nil {
		return "", err
	}
	return config.GetDatabasePath(), nil
}
