package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cdv-tracker/internal/documents"
)

var (
	skipHidden    bool
	watchDebounce time.Duration
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Check source PDFs before creating sessions",
}

var documentsImportCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Register every PDF under a directory and report page counts and duplicates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := documents.NewRegistry(logger)
		results, stats, err := reg.RegisterDirectory(cmd.Context(), args[0], skipHidden)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{
			"stats":     stats,
			"files":     results,
			"documents": reg.List(),
		})
	},
}

var documentsWatchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Register PDFs as they are dropped into the given directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := documents.NewRegistry(logger)
		results, errs, err := reg.Watch(cmd.Context(), documents.WatchConfig{
			Roots:       args,
			InitialScan: true,
			Debounce:    watchDebounce,
		})
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		for {
			select {
			case res, ok := <-results:
				if !ok {
					return nil
				}
				if err := enc.Encode(res); err != nil {
					return err
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Warn("watch error", "error", err)
			}
		}
	},
}

func init() {
	documentsImportCmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "skip dot files and directories")
	documentsWatchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "wait for writes to settle before importing")
	documentsCmd.AddCommand(documentsImportCmd, documentsWatchCmd)
}
