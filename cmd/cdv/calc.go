package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cdv-tracker/internal/calc"
)

type calcOutput struct {
	calc.Result
	Decision calc.Decision `json:"decision"`
	Amount   float64       `json:"amount"`
}

var calcCmd = &cobra.Command{
	Use:   "calc <session-id>",
	Short: "Compute totals, retained price and the declared value comparison",
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

		res, err := a.service.Calculate(cmd.Context(), id)
		if err != nil {
			return err
		}
		decision, amount := res.Decision()
		return printJSON(cmd, calcOutput{Result: res, Decision: decision, Amount: amount})
	},
}
