package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vimsaver/internal/metrics"
	"github.com/Iron-Ham/vimsaver/internal/mux"
)

var quitCmd = &cobra.Command{
	Use:   "quit",
	Short: "Save and close every recognized application in the session",
	Long: `Bring every recognized application to the foreground and ask it to
save its files and exit. With quit.close_shell enabled the shell left
behind is closed too, which closes the window.

Run "vimsaver save" first to keep a snapshot of what is being closed.`,
	Args: cobra.NoArgs,
	RunE: runQuit,
}

func init() {
	rootCmd.AddCommand(quitCmd)
}

func runQuit(cmd *cobra.Command, args []string) (err error) {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { a.finish(metrics.OpQuit, err) }()

	return a.withSession(cmd, metrics.OpQuit, func(ctx context.Context, m mux.Multiplexer) error {
		eng, err := a.engine(m)
		if err != nil {
			return err
		}
		report, err := eng.Quit(ctx)
		if err != nil {
			return err
		}
		newPrinter(cmd.OutOrStdout()).quitSummary(report)
		return nil
	})
}
