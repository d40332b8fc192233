package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr",
	Short: "Remote OCR service utilities",
}

var ocrPingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the OCR webhook answers",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.ocr.Configured() {
			return errors.New("ocr.webhook_url is not set")
		}
		ok, err := a.ocr.Ping(cmd.Context())
		if err != nil {
			return err
		}
		if !ok {
			return errors.New("OCR webhook did not answer successfully")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "OCR webhook reachable")
		return nil
	},
}

func init() {
	ocrCmd.AddCommand(ocrPingCmd)
}
