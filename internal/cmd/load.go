package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vimsaver/internal/metrics"
	"github.com/Iron-Ham/vimsaver/internal/mux"
	"github.com/Iron-Ham/vimsaver/internal/restore"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Restore a snapshot into the session",
	Long: `Re-create the windows recorded in a snapshot and relaunch every
application in its working directory with the same files open.

Applications that are still running are left alone, so loading the same
snapshot twice launches nothing the second time.`,
	Args: cobra.NoArgs,
	RunE: runLoad,
}

var (
	loadInput       string
	loadFromHistory string
)

func init() {
	loadCmd.Flags().StringVarP(&loadInput, "input", "i", "", "snapshot file (default paths.snapshot_file)")
	loadCmd.Flags().StringVar(&loadFromHistory, "from-history", "", "restore a recorded snapshot by id, id prefix or \"latest\"")
	loadCmd.MarkFlagsMutuallyExclusive("input", "from-history")
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { a.finish(metrics.OpLoad, err) }()

	snap, source, err := a.loadSnapshot(cmd.Context(), loadInput, loadFromHistory)
	if err != nil {
		return err
	}

	return a.withSession(cmd, metrics.OpLoad, func(ctx context.Context, m mux.Multiplexer) error {
		eng := restore.New(m, a.apps, restore.Options{
			Metrics: a.metrics,
			Logger:  a.logger,
		})
		report, err := eng.Restore(ctx, snap)
		if err != nil {
			return err
		}
		newPrinter(cmd.OutOrStdout()).restoreSummary(source, report)
		return nil
	})
}

// loadSnapshot reads a snapshot from the history database when fromHistory
// is set, otherwise from input or the configured snapshot file. It returns
// a description of where the snapshot came from.
func (a *app) loadSnapshot(ctx context.Context, input, fromHistory string) (snapshot.Snapshot, string, error) {
	if fromHistory == "" {
		path := input
		if path == "" {
			path = a.cfg.Paths.SnapshotFile
		}
		snap, err := snapshot.ReadFile(path)
		return snap, path, err
	}

	store, err := a.openHistory()
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = store.Close() }()

	if strings.EqualFold(fromHistory, "latest") {
		entry, err := store.Latest(ctx, a.cfg.Session.Name)
		if err != nil {
			return nil, "", err
		}
		return entry.Snapshot, "history " + entry.ID, nil
	}
	entry, err := store.Get(ctx, fromHistory)
	if err != nil {
		return nil, "", err
	}
	return entry.Snapshot, "history " + entry.ID, nil
}
