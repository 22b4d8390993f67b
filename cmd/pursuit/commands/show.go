package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/pursuit/display"
	"github.com/teranos/pursuit/pipeline/lifecycle"
)

// ShowCmd displays one record with its transition history.
var ShowCmd = &cobra.Command{
	Use:   "show <fingerprint>",
	Short: "Show one record with its full history",
	Long: `show — One record's story so far.

Accepts a full fingerprint or any unambiguous prefix, as printed by
status tables and log lines. Output covers the record's fields, its
sources, and every stage attempt ever made.

Examples:
  pursuit show 3fa8c2d91b04          # Prefix from a status table
  pursuit show 3fa8c2d91b04 --json   # Full record as JSON`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	ShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func runShow(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	store := lifecycle.NewStore(database)

	fingerprint, err := store.ResolveFingerprint(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	rec, err := store.GetRecord(cmd.Context(), fingerprint)
	if err != nil {
		return err
	}
	attempts, err := store.Attempts(cmd.Context(), fingerprint)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]interface{}{
			"record":   rec,
			"attempts": attempts,
		})
	}
	return display.RenderRecordDetail(rec, attempts)
}
