package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/display"
	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/pipeline/calendar"
	"github.com/teranos/pursuit/sym"
)

// SlotsCmd finds the next free interview slot.
var SlotsCmd = &cobra.Command{
	Use:   "slots",
	Short: sym.AT + " Find the next free interview slot",
	Long: sym.AT + ` slots — Slot search against the cached calendar.

Runs the same earliest-feasible search the schedule stage uses: the
requested time is accepted when it fits working hours and keeps the
configured buffer from every cached commitment; otherwise candidates
scan forward until one fits or the horizon runs out.

Examples:
  pursuit slots                               # Next opening from now
  pursuit slots --at 2026-09-03T14:00:00Z     # Try a specific start
  pursuit slots --duration 30                 # Half-hour slot`,
	RunE: runSlots,
}

func init() {
	SlotsCmd.Flags().String("at", "", "Requested start time (RFC3339; default: next workday opening)")
	SlotsCmd.Flags().Int("duration", 0, "Slot length in minutes (0 = configured value)")
	SlotsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSlots(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	cons, err := calendar.ConstraintsFromConfig(cfg.GetSchedulingConfig())
	if err != nil {
		return err
	}

	duration := time.Duration(cfg.Scheduling.DurationMinutes) * time.Minute
	if minutes, _ := cmd.Flags().GetInt("duration"); minutes > 0 {
		duration = time.Duration(minutes) * time.Minute
	}

	requested := calendar.NextOpening(time.Now(), duration, cons)
	if at, _ := cmd.Flags().GetString("at"); at != "" {
		start, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return errors.Wrapf(err, "parse --at %q", at)
		}
		requested = calendar.Interval{Start: start, End: start.Add(duration)}
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	commitments, err := calendar.NewStore(database).Commitments()
	if err != nil {
		return err
	}

	slot, err := calendar.FindSlot(requested, commitments, cons)
	if err != nil {
		if errors.IsInfeasible(err) {
			return errors.Wrap(err, "no feasible slot")
		}
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(slot)
	}
	fmt.Printf("%s Next free slot: %s – %s\n",
		sym.AT,
		slot.Start.In(cons.Location).Format("Mon 2 Jan 15:04"),
		slot.End.In(cons.Location).Format("15:04 MST"),
	)
	if !slot.Start.Equal(requested.Start) {
		fmt.Printf("   (requested %s was not free)\n",
			requested.Start.In(cons.Location).Format("Mon 2 Jan 15:04"))
	}
	return nil
}
