package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/logger"
	"github.com/teranos/pursuit/pipeline"
	"github.com/teranos/pursuit/pipeline/calendar"
	"github.com/teranos/pursuit/pipeline/collab"
	"github.com/teranos/pursuit/sym"
)

// RunCmd drives the pipeline daemon.
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: sym.Pulse + " Run the pipeline daemon",
	Long: sym.Pulse + ` run — Drive job records through their lifecycle.

Each tick the daemon reaps abandoned leases, sweeps stale records, then
pulls due records stage by stage and dispatches them concurrently: rate
gate first, single-flight lease second, the stage action third. Stage
failures are isolated per record.

By default the daemon uses the local collaborator set: pattern-based
extraction, template composition, an outbox directory instead of a mail
transport, and an inbox directory of hand-classified responses. Point
real transports at the collab interfaces to go further.

Examples:
  pursuit run                   # Run until interrupted
  pursuit run --once            # One tick, then exit
  pursuit run --workers 8       # More concurrent stage actions
  pursuit run --simulate        # In-memory fakes, no files touched`,
	RunE: runDaemon,
}

func init() {
	RunCmd.Flags().Int("workers", 0, "Concurrent stage workers (0 = configured value)")
	RunCmd.Flags().Bool("once", false, "Run a single tick and exit")
	RunCmd.Flags().Bool("simulate", false, "Wire in-memory fakes instead of local backends")
	RunCmd.Flags().String("workdir", "", "Directory for outbox/inbox (default: alongside the database)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}
	logger.SetTheme(cfg.GetLogTheme())
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Pipeline.Workers = workers
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	simulate, _ := cmd.Flags().GetBool("simulate")
	var services pipeline.Collaborators
	if simulate {
		services = simulatedCollaborators()
		logger.Infow("Running with simulated collaborators", logger.FieldSymbol, sym.Pulse)
	} else {
		workdir, _ := cmd.Flags().GetString("workdir")
		if workdir == "" {
			workdir = filepath.Dir(cfg.GetDatabasePath())
		}
		services = localCollaborators(workdir, calendar.NewStore(database))
		logger.Infow("Running with local collaborators",
			"outbox", filepath.Join(workdir, "outbox"),
			"inbox", filepath.Join(workdir, "inbox"),
		)
	}

	orch, err := pipeline.NewOrchestrator(database, cfg, services, logger.Logger)
	if err != nil {
		return errors.Wrap(err, "build orchestrator")
	}

	if logger.ShouldOutput(logger.Verbosity(), logger.OutputStartup) {
		fmt.Printf("%s pursuit daemon  workers=%d tick=%ds db=%s\n",
			sym.Pulse, cfg.Pipeline.Workers, cfg.Pipeline.TickIntervalSeconds, cfg.GetDatabasePath())
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if once, _ := cmd.Flags().GetBool("once"); once {
		return orch.Tick(ctx)
	}

	// Live-reload worker count and stage policies when the active config
	// file changes; everything else waits for a restart.
	if path := am.ActiveConfigPath(); path != "" {
		watcher, err := am.NewConfigWatcher(path)
		if err != nil {
			logger.Warnw("Config watcher unavailable", logger.FieldError, err.Error())
		} else {
			watcher.OnReload(func(newCfg *am.Config) error {
				orch.Reconfigure(newCfg)
				return nil
			})
			watcher.Start()
			am.SetGlobalWatcher(watcher)
			defer watcher.Stop()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Printf("\n%s Shutting down...\n", sym.PulseClose)
		cancel()
	}()

	return orch.Run(ctx)
}

// localCollaborators wires the credential-free backend set.
func localCollaborators(workdir string, calCache *calendar.Store) pipeline.Collaborators {
	return pipeline.Collaborators{
		Extractor: collab.PatternExtractor{},
		Composer:  collab.TemplateComposer{},
		Mail:      &collab.OutboxMail{Dir: filepath.Join(workdir, "outbox")},
		Calendar:  &collab.CacheCalendar{Store: calCache},
		Inbox:     &collab.DirInbox{Dir: filepath.Join(workdir, "inbox")},
	}
}

// simulatedCollaborators wires the in-memory fakes, preloaded with one
// busy block tomorrow so scheduling has something to dodge.
func simulatedCollaborators() pipeline.Collaborators {
	busy := time.Now().AddDate(0, 0, 1).Truncate(time.Hour)
	return pipeline.Collaborators{
		Extractor: &collab.FakeExtractor{},
		Composer:  &collab.FakeComposer{},
		Mail:      &collab.FakeMail{},
		Calendar: collab.NewFakeCalendar(calendar.Commitment{
			ID:    "sim-standup",
			Start: busy,
			End:   busy.Add(time.Hour),
		}),
		Inbox: collab.NewFakeInbox(),
	}
}
