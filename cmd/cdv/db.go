package main

import (
	"time"

	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Record store maintenance",
}

var dbHealthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the database connection and report row counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.db.HealthCheck(cmd.Context(), time.Second); err != nil {
			logger.Error("db health: FAIL", "error", err)
			return err
		}
		sessions, err := a.sessions.List(cmd.Context())
		if err != nil {
			return err
		}
		refs, err := a.refs.Count(cmd.Context())
		if err != nil {
			return err
		}
		logger.Info("db health: OK", "dialect", a.db.Dialect())
		return printJSON(cmd, map[string]any{
			"dialect":           a.db.Dialect(),
			"sessions":          len(sessions),
			"reference_records": refs,
		})
	},
}

func init() {
	dbCmd.AddCommand(dbHealthCmd)
}
