package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cdv-tracker/constants"
	"github.com/joseph-ayodele/cdv-tracker/internal/reference"
	"github.com/joseph-ayodele/cdv-tracker/internal/sessions"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create, inspect and validate sessions",
}

var (
	createProduct string
	createLot     string
	createClient  string
	createCdv     string
	createFiche   string
)

var sessionCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a draft session for a CDV and lot sheet PDF pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		for _, path := range []string{createCdv, createFiche} {
			if _, _, err := a.docs.Register(path); err != nil {
				return err
			}
		}
		sess, err := a.service.Create(cmd.Context(), sessions.CreateRequest{
			Product:         createProduct,
			LotNumber:       createLot,
			Client:          createClient,
			PDFCdvPath:      createCdv,
			PDFFicheLotPath: createFiche,
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, sess)
	},
}

var listStatuses []string

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, optionally filtered by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses := make([]constants.SessionStatus, 0, len(listStatuses))
		for _, s := range listStatuses {
			st := constants.SessionStatus(s)
			if !st.Valid() {
				return fmt.Errorf("unknown status %q", s)
			}
			statuses = append(statuses, st)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		list, err := a.service.List(cmd.Context(), statuses...)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPRODUCT\tCLIENT\tTRUCK\tARRIVAL")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Status, s.Product, s.Client, s.Truck, s.ArrivalDate)
		}
		return w.Flush()
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session with its line items",
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
		return printJSON(cmd, d)
	},
}

var sessionValidateCmd = &cobra.Command{
	Use:   "validate <session-id>",
	Short: "Mark a corrected session as validated",
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

		sess, err := a.service.Validate(cmd.Context(), id)
		if err != nil {
			return err
		}
		return printJSON(cmd, sess)
	},
}

var sessionEnrichCmd = &cobra.Command{
	Use:   "enrich <session-id>",
	Short: "Match a session against the reference cache and apply a single hit",
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

		res, err := a.service.Enrich(cmd.Context(), id)
		if err != nil {
			return err
		}
		if res.Outcome == reference.OutcomeAmbiguous {
			logger.Info("several declarations match, pick one with `cdv reference match`", "candidates", len(res.Candidates))
		}
		return printJSON(cmd, res)
	},
}

func init() {
	sessionCreateCmd.Flags().StringVar(&createProduct, "product", "", "product name")
	sessionCreateCmd.Flags().StringVar(&createLot, "lot", "", "lot number")
	sessionCreateCmd.Flags().StringVar(&createClient, "client", "", "client name")
	sessionCreateCmd.Flags().StringVar(&createCdv, "cdv", "", "path to the CDV PDF")
	sessionCreateCmd.Flags().StringVar(&createFiche, "fiche", "", "path to the lot sheet PDF")
	_ = sessionCreateCmd.MarkFlagRequired("product")
	_ = sessionCreateCmd.MarkFlagRequired("client")
	_ = sessionCreateCmd.MarkFlagRequired("cdv")
	_ = sessionCreateCmd.MarkFlagRequired("fiche")

	sessionListCmd.Flags().StringSliceVar(&listStatuses, "status", nil, "filter by status (repeatable)")

	sessionCmd.AddCommand(sessionCreateCmd, sessionListCmd, sessionShowCmd, sessionValidateCmd, sessionEnrichCmd)
}
