package am

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/pursuit/errors"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	// Check if file exists before backing up
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	// Delete oldest backup if exists
	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		// Log deletion failures (but don't fail config save)
		fmt.Printf("⚠️  Failed to delete old backup %s: %v\n", back3, err)
	}

	// Rotate .back2 to .back3
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	// Rotate .back1 to .back2
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	// Copy current to .back1
	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// GetCLIConfigPath returns the path to the CLI-managed overrides file in
// ~/.pursuit/am_from_cli.toml. The am set command writes here so user-edited
// config files are never touched.
func GetCLIConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pursuit", "am_from_cli.toml")
}

// loadOrInitializeCLIConfig loads the CLI overrides file, or creates an empty one if it doesn't exist
func loadOrInitializeCLIConfig() (map[string]interface{}, string, error) {
	configPath := GetCLIConfigPath()
	if configPath == "" {
		return nil, "", errors.New("could not determine home directory")
	}

	// Ensure ~/.pursuit directory exists
	pursuitDir := filepath.Dir(configPath)
	if err := os.MkdirAll(pursuitDir, 0750); err != nil {
		return nil, "", errors.Wrap(err, "failed to create .pursuit directory")
	}

	// Try to read existing config
	var config map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		// File exists, parse it
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, "", errors.Wrap(err, "failed to parse CLI overrides")
		}
	} else {
		// File doesn't exist, create empty config
		config = make(map[string]interface{})
	}

	return config, configPath, nil
}

// saveCLIConfig writes the config to the CLI overrides file with backup
func saveCLIConfig(config map[string]interface{}, configPath string) error {
	// Create backup
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	// Marshal to TOML
	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Mark this as our own write to prevent reload loops
	if w := GetGlobalWatcher(); w != nil {
		w.MarkOwnWrite()
	}

	// Write to file
	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write CLI overrides")
	}

	return nil
}

// SetValue persists a dotted-key override ("gate.email.ceiling") to the CLI
// overrides file. The value lands in the right nested section; intermediate
// sections are created as needed.
func SetValue(dottedKey string, value interface{}) error {
	parts := strings.Split(dottedKey, ".")
	if len(parts) == 0 || dottedKey == "" {
		return errors.New("config key cannot be empty")
	}

	config, configPath, err := loadOrInitializeCLIConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load CLI overrides")
	}

	// Walk to the innermost section, creating maps along the way
	section := config
	for _, part := range parts[:len(parts)-1] {
		child, ok := section[part].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			section[part] = child
		}
		section = child
	}
	section[parts[len(parts)-1]] = value

	return saveCLIConfig(config, configPath)
}

// UpdatePipelineWorkers updates the pipeline.workers setting in CLI overrides
func UpdatePipelineWorkers(workers int) error {
	return SetValue("pipeline.workers", workers)
}

// UpdateGateCeiling updates a destination's rate ceiling in CLI overrides
func UpdateGateCeiling(destination string, ceiling int) error {
	return SetValue("gate."+destination+".ceiling", ceiling)
}

// UpdateFollowUpMax updates the followup.max setting in CLI overrides
func UpdateFollowUpMax(max int) error {
	return SetValue("followup.max", max)
}
