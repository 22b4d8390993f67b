package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/pursuit/display"
	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/pipeline/lifecycle"
)

// StatusCmd summarizes where every application stands.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record counts and recent records",
	Long: `status — Where every application stands.

Without flags: record counts per status plus the most recently touched
records. With --status, only records in that status.

Examples:
  pursuit status                      # Counts and recent activity
  pursuit status --status failed      # Failed records for diagnosis
  pursuit status --limit 50 --json    # Machine-readable listing`,
	RunE: runStatus,
}

func init() {
	StatusCmd.Flags().String("status", "", "Filter records by status")
	StatusCmd.Flags().Int("limit", 20, "Maximum records to list")
	StatusCmd.Flags().Bool("json", false, "Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	statusFilter, _ := cmd.Flags().GetString("status")
	limit, _ := cmd.Flags().GetInt("limit")

	if statusFilter != "" && !lifecycle.IsValidStatus(statusFilter) {
		return errors.Newf("unknown status %q", statusFilter)
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()
	store := lifecycle.NewStore(database)

	counts, err := store.StatusCounts(cmd.Context())
	if err != nil {
		return err
	}
	records, err := store.ListByStatus(cmd.Context(), lifecycle.Status(statusFilter), limit)
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(map[string]interface{}{
			"counts":  counts,
			"records": records,
		})
	}

	if statusFilter == "" {
		if err := display.RenderStatusCounts(counts); err != nil {
			return err
		}
	}
	return display.RenderRecords(records)
}
