package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/display"
	"github.com/teranos/pursuit/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Manage pursuit configuration",
	Long: sym.AM + ` am — Manage pursuit configuration ("I am")

Configuration sources (in order of precedence):
1. Environment variables (PURSUIT_* prefix)
2. Project config (./pursuit.toml, searched up the directory tree)
3. User CLI overrides (~/.pursuit/am_from_cli.toml, written by am set)
4. User config (~/.pursuit/pursuit.toml)
5. System config (/etc/pursuit/config.toml)
6. Default values

Examples:
  pursuit am show                       # Show current configuration
  pursuit am show --format json         # Show configuration as JSON
  pursuit am get gate.mail.ceiling      # Get one value
  pursuit am set followup.max 3         # Persist an override
  pursuit am where                      # Which file set which value
  pursuit am validate                   # Validate the merged config`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the merged pursuit configuration from all sources",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a configuration value using dot notation (e.g., database.path, followup.max)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Persist a configuration override",
	Long: `Write one value into the CLI override file (~/.pursuit/am_from_cli.toml).

The previous file is kept as a rotated backup; environment variables
still outrank anything set here.`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the merged pursuit configuration is usable",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration values come from",
	Long:  "List every setting with the file, environment variable, or default that supplied it",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json")
	amValidateCmd.Flags().String("file", "", "Validate a specific config file instead of the merged configuration")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch configFormat {
	case "json":
		return display.OutputJSON(cfg)
	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# pursuit configuration\n%s", string(data))
		return nil
	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json)", configFormat)
	}
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	fmt.Println(am.Get(key))
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	if err := persistSetting(key, value); err != nil {
		return fmt.Errorf("failed to set %q: %w", key, err)
	}

	fmt.Printf("%s %s = %s (written to %s)\n", sym.AM, key, value, am.GetCLIConfigPath())
	return nil
}

// persistSetting routes known numeric keys through their typed setters so
// they land in the overrides file as integers rather than quoted strings.
func persistSetting(key, value string) error {
	switch {
	case key == "pipeline.workers":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("pipeline.workers requires an integer: %w", err)
		}
		return am.UpdatePipelineWorkers(n)
	case key == "followup.max":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("followup.max requires an integer: %w", err)
		}
		return am.UpdateFollowUpMax(n)
	case strings.HasPrefix(key, "gate.") && strings.HasSuffix(key, ".ceiling"):
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s requires an integer: %w", key, err)
		}
		dest := strings.TrimSuffix(strings.TrimPrefix(key, "gate."), ".ceiling")
		return am.UpdateGateCeiling(dest, n)
	}
	return am.SetValue(key, value)
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	var cfg *am.Config
	var err error

	if file, _ := cmd.Flags().GetString("file"); file != "" {
		cfg, err = am.LoadFromFile(file)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	} else {
		cfg, err = am.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	fmt.Println("✓ Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	intro, err := am.GetConfigIntrospection()
	if err != nil {
		return fmt.Errorf("failed to get config introspection: %w", err)
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(intro)
	}

	fmt.Println("Configuration cascade (later overrides earlier):")
	fmt.Println("  1. [DEFAULT]  Built-in defaults")
	fmt.Println("  2. [SYSTEM]   /etc/pursuit/config.toml")
	fmt.Println("  3. [USER]     ~/.pursuit/pursuit.toml")
	fmt.Println("  4. [USER_CLI] ~/.pursuit/am_from_cli.toml (written by am set)")
	fmt.Println("  5. [PROJECT]  ./pursuit.toml (searches up directories)")
	fmt.Println("  6. [ENV]      PURSUIT_* environment variables")
	fmt.Println()

	settings := make([]am.SettingInfo, len(intro.Settings))
	copy(settings, intro.Settings)
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })

	for _, setting := range settings {
		origin := string(setting.Source)
		if setting.SourcePath != "" {
			origin = setting.SourcePath
		}
		fmt.Printf("  %-40s = %-20v [%s]\n", setting.Key, setting.Value, origin)
	}
	return nil
}
