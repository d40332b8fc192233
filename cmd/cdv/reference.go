package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var referenceCmd = &cobra.Command{
	Use:   "reference",
	Short: "Synchronize and query the customs declaration cache",
}

var referenceSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replace the local declaration and closure cache with the remote dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		syncer, err := a.syncer()
		if err != nil {
			return err
		}
		report, err := syncer.SyncAll(cmd.Context(), func(table string, page, rows int) {
			logger.Info("reference page stored", "table", table, "page", page, "rows", rows)
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, report)
	},
}

var referenceTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check the reference dataset credentials and endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		syncer, err := a.syncer()
		if err != nil {
			return err
		}
		if err := syncer.TestConnection(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "reference dataset reachable")
		return nil
	},
}

var matchPick int

var referenceMatchCmd = &cobra.Command{
	Use:   "match <session-id>",
	Short: "List the declarations matching a session, or apply one with --pick",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.service.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		res, err := a.matcher.Match(cmd.Context(), sess.Truck, sess.ArrivalDate, sess.Client)
		if err != nil {
			return err
		}
		if matchPick == 0 {
			return printJSON(cmd, res)
		}
		if matchPick < 1 || matchPick > res.Count {
			return fmt.Errorf("--pick must be between 1 and %d", res.Count)
		}
		updated, err := a.service.ApplyReference(cmd.Context(), id, res.Candidates[matchPick-1])
		if err != nil {
			return err
		}
		return printJSON(cmd, updated)
	},
}

func init() {
	referenceMatchCmd.Flags().IntVar(&matchPick, "pick", 0, "apply the n-th candidate (1-based)")
	referenceCmd.AddCommand(referenceSyncCmd, referenceTestCmd, referenceMatchCmd)
}
