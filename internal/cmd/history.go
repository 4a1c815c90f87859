package cmd

import (
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded snapshots",
	Long: `Commands for the snapshot history database. Snapshots are recorded by
"vimsaver save" when history.enabled is set, and can be restored with
"vimsaver load --from-history <id>".`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded snapshots of the session, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyLimit int

func init() {
	historyListCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of entries, 0 for all")
	historyCmd.AddCommand(historyListCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Close() }()

	store, err := a.openHistory()
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	entries, err := store.List(cmd.Context(), a.cfg.Session.Name, historyLimit)
	if err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout()).historyTable(entries)
	return nil
}
