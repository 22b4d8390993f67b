package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/pursuit/am"
	"github.com/teranos/pursuit/display"
	"github.com/teranos/pursuit/errors"
	"github.com/teranos/pursuit/ingest"
	"github.com/teranos/pursuit/logger"
	"github.com/teranos/pursuit/pipeline/dedup"
	"github.com/teranos/pursuit/pipeline/lifecycle"
	"github.com/teranos/pursuit/sym"
)

// IngestCmd polls the configured posting sources once.
var IngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: sym.IX + " Pull postings from configured sources",
	Long: sym.IX + ` ingest — One poll cycle over the source manifest.

Every enabled source in sources.toml is fetched behind a shared
politeness limiter. Postings are validated, filtered against the
[search] preferences, and deduplicated: a posting seen before merges
into its record, a new one enters the pipeline as discovered.

Examples:
  pursuit ingest                       # Poll using the configured manifest
  pursuit ingest --manifest jobs.toml  # Poll an alternate manifest
  pursuit ingest --json                # Machine-readable report`,
	RunE: runIngest,
}

func init() {
	IngestCmd.Flags().String("manifest", "", "Source manifest path (default: configured sources.manifest)")
	IngestCmd.Flags().Bool("json", false, "Output report as JSON")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "load configuration")
	}

	manifestPath, _ := cmd.Flags().GetString("manifest")
	if manifestPath == "" {
		manifestPath = cfg.Sources.Manifest
	}
	manifest, err := ingest.LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	sources, err := manifest.Build(30 * time.Second)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		return errors.Newf("no enabled sources in %s", manifestPath)
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	machine := lifecycle.NewMachine(lifecycle.NewStore(database), lifecycle.MachineConfig{}, logger.Logger)
	deduper := dedup.NewDeduper(machine, logger.Logger)
	runner := ingest.NewRunner(sources, deduper, ingest.FilterFromConfig(cfg.Search), cfg.Sources, logger.Logger)

	reports, err := runner.Poll(cmd.Context())
	if err != nil {
		return err
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(reports)
	}
	rows := make([]display.IngestRow, 0, len(reports))
	for _, rep := range reports {
		rows = append(rows, display.IngestRow{
			Source:   rep.Source,
			Fetched:  rep.Fetched,
			New:      rep.New,
			Merged:   rep.Merged,
			Filtered: rep.Filtered,
			Invalid:  rep.Invalid,
			Err:      rep.Err,
		})
	}
	return display.RenderIngestReport(rows)
}
