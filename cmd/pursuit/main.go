package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/pursuit/cmd/pursuit/commands"
	"github.com/teranos/pursuit/display"
	"github.com/teranos/pursuit/logger"
)

var rootCmd = &cobra.Command{
	Use:   "pursuit",
	Short: "pursuit - Job application pipeline",
	Long: `pursuit - Automated job-search pipeline.

Postings flow from configured sources through deduplication into a
staged lifecycle: extract structured fields, compose an application,
send it, follow up, watch for responses, and book interviews against
your calendar. Every outbound action is rate gated; every transition
is recorded.

Available commands:
  run     - Run the pipeline daemon (poll-and-dispatch loop)
  ingest  - Pull postings from configured sources once
  status  - Show record counts and recent records
  show    - Show one record with its full history
  requeue - Return a failed record to its pipeline stage
  slots   - Find the next free interview slot
  am      - Manage pursuit configuration ("I am")
  db      - Manage database operations

Examples:
  pursuit ingest               # Poll sources, dedupe, admit postings
  pursuit run                  # Drive the pipeline until interrupted
  pursuit run --simulate       # Same loop against in-memory fakes
  pursuit status               # Where every application stands
  pursuit show 3fa8c2d91b04    # One record's story so far`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// JSON command output is machine-read; logs switch format with it
		// so stdout stays parseable end to end.
		verbosity, _ := cmd.Flags().GetCount("verbose")
		if err := logger.Initialize(display.ShouldOutputJSON(cmd), verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger.Debugw("Verbosity",
			"level", logger.LevelName(verbosity),
			"shows", logger.VerbosityDescription(verbosity),
		)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output machine-readable JSON")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.IngestCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.ShowCmd)
	rootCmd.AddCommand(commands.RequeueCmd)
	rootCmd.AddCommand(commands.SlotsCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
