package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vimsaver/internal/history"
	"github.com/Iron-Ham/vimsaver/internal/metrics"
	"github.com/Iron-Ham/vimsaver/internal/mux"
	"github.com/Iron-Ham/vimsaver/internal/snapshot"
)

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Snapshot the applications running in the session",
	Long: `Walk every window of the session, bring suspended applications to the
foreground, record the files each one has open and write the result as a
JSON snapshot.

Windows whose foreground program is not a recognized application or an
allowed shell are skipped with a warning.`,
	Args: cobra.NoArgs,
	RunE: runSave,
}

var saveOutput string

func init() {
	saveCmd.Flags().StringVarP(&saveOutput, "output", "o", "", "snapshot file (default paths.snapshot_file)")
	rootCmd.AddCommand(saveCmd)
}

func runSave(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { a.finish(metrics.OpSave, err) }()

	path := saveOutput
	if path == "" {
		path = a.cfg.Paths.SnapshotFile
	}

	return a.withSession(cmd, metrics.OpSave, func(ctx context.Context, m mux.Multiplexer) error {
		eng, err := a.engine(m)
		if err != nil {
			return err
		}
		snap, report, err := eng.Save(ctx)
		if err != nil {
			return err
		}
		if err := snapshot.WriteFile(path, snap); err != nil {
			return err
		}

		var entry *history.Entry
		if a.cfg.History.Enabled {
			entry, err = a.record(ctx, m, snap)
			if err != nil {
				// The snapshot file is already written.
				a.logger.Warn("failed to record snapshot history", "error", err)
			}
		}

		newPrinter(cmd.OutOrStdout()).saveSummary(path, snap, report, entry)
		return nil
	})
}

func (a *app) record(ctx context.Context, m mux.Multiplexer, snap snapshot.Snapshot) (*history.Entry, error) {
	store, err := a.openHistory()
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	entry, err := store.Record(ctx, m.Session(), m.Name(), snap)
	if err != nil {
		return nil, fmt.Errorf("failed to record snapshot: %w", err)
	}
	a.logger.Debug("snapshot recorded", "id", entry.ID)
	return &entry, nil
}
