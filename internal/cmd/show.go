package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/vimsaver/internal/snapshot"
)

// Output formats for show.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print a snapshot",
	Long: `Print the windows, application instances and open files recorded in a
snapshot. The session is not touched.`,
	Args: cobra.NoArgs,
	RunE: runShow,
}

var (
	showInput       string
	showFromHistory string
	showFormat      string
)

func init() {
	showCmd.Flags().StringVarP(&showInput, "input", "i", "", "snapshot file (default paths.snapshot_file)")
	showCmd.Flags().StringVar(&showFromHistory, "from-history", "", "show a recorded snapshot by id, id prefix or \"latest\"")
	showCmd.Flags().StringVar(&showFormat, "format", formatText, "output format: text, json or yaml")
	showCmd.MarkFlagsMutuallyExclusive("input", "from-history")
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	switch showFormat {
	case formatText, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown format %q (want %s, %s or %s)", showFormat, formatText, formatJSON, formatYAML)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Close() }()

	snap, _, err := a.loadSnapshot(cmd.Context(), showInput, showFromHistory)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch showFormat {
	case formatJSON:
		data, err := snapshot.Encode(snap)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	case formatYAML:
		data, err := snapshot.EncodeYAML(snap)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	default:
		newPrinter(out).snapshotText(snap)
		return nil
	}
}
