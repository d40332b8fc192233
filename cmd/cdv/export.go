package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/entity"
)

var exportPackage bool

var exportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Write the calculation workbook of a validated session",
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

		d, err := a.service.Details(cmd.Context(), id)
		if err != nil {
			return err
		}
		if d.Session.Status != constants.SessionValidated && d.Session.Status != constants.SessionGenerated {
			// MarkGenerated reports the status error before anything is written.
			if _, err := a.service.MarkGenerated(cmd.Context(), id, nil); err != nil {
				return err
			}
		}

		write := a.exporter.WriteFile
		if exportPackage {
			write = a.exporter.WritePackage
		}
		path, err := write(d.Session, d.Lines)
		if err != nil {
			return err
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}

		sess, err := a.service.MarkGenerated(cmd.Context(), id, []entity.GeneratedDocument{{
			Kind:        constants.GeneratedCalculation,
			FilePath:    path,
			GeneratedAt: time.Now().UTC(),
		}})
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"path": path, "status": sess.Status})
	},
}

func init() {
	exportCmd.Flags().BoolVar(&exportPackage, "zip", false, "bundle the workbook with the source PDFs")
}
