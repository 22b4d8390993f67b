package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/pursuit/logger"
	"github.com/teranos/pursuit/pipeline/lifecycle"
)

// RequeueCmd returns a failed record to its pipeline stage.
var RequeueCmd = &cobra.Command{
	Use:   "requeue <fingerprint>",
	Short: "Return a failed record to its pipeline stage",
	Long: `requeue — Administrative override for failed records.

The record returns to the precondition of the stage that failed it,
with a fresh retry budget. This is the only path by which a record's
status ever moves backwards; the override itself is recorded in the
transition history.

Example:
  pursuit requeue 3fa8c2d91b04`,
	Args: cobra.ExactArgs(1),
	RunE: runRequeue,
}

func runRequeue(cmd *cobra.Command, args []string) error {
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

	machine := lifecycle.NewMachine(store, lifecycle.MachineConfig{}, logger.Logger)
	rec, err := machine.Requeue(cmd.Context(), fingerprint)
	if err != nil {
		return err
	}

	fmt.Printf("Record %s requeued, now %s\n", fingerprint[:12], rec.Status)
	return nil
}
