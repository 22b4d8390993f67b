package commands

import (
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage pursuit database",
	Long: sym.DB + ` db — Database operations and diagnostics

Examples:
  pursuit db stats    # Record, attempt, and gate counts`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long:  "Display record counts, attempt history size, lease and gate state",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	counts := map[string]int{}
	for _, table := range []string{"job_records", "job_sources", "stage_attempts", "stage_cursors", "leases", "gate_events", "calendar_cache"} {
		var n int
		if err := database.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil && err != sql.ErrNoRows {
			return errors.Wrapf(err, "count %s", table)
		}
		counts[table] = n
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:    %s\n", cfg.GetDatabasePath())
	fmt.Printf("Job Records:      %d\n", counts["job_records"])
	fmt.Printf("Job Sources:      %d\n", counts["job_sources"])
	fmt.Printf("Stage Attempts:   %d\n", counts["stage_attempts"])
	fmt.Printf("Active Cursors:   %d\n", counts["stage_cursors"])
	fmt.Printf("Held Leases:      %d\n", counts["leases"])
	fmt.Printf("Gate Events:      %d\n", counts["gate_events"])
	fmt.Printf("Cached Slots:     %d\n", counts["calendar_cache"])
	return nil
}
