package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/cdv-tracker/internal/common"
)

var (
	cfgFile string
	envFile string
	debug   bool

	cfg    *common.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cdv",
	Short: "Digitize CDV dossiers: OCR queue, reference matching and calculation",
	Long: `cdv drives the sale statement (compte de vente) workflow: imported PDF
pairs are queued for remote OCR one session at a time, enriched from the
cached customs declaration dataset, reviewed, and turned into a calculation
workbook.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && !debug {
					return slog.Attr{}
				}
				return a
			},
		}))
		runID := uuid.NewString()
		logger = logger.With("run_id", runID)
		slog.SetDefault(logger)
		cmd.SetContext(common.WithRequestID(cmd.Context(), runID))

		loaded, err := common.LoadConfig(cfgFile)
		if err != nil {
			return err
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./cdv.yaml or ~/.cdv/cdv.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(dbCmd, documentsCmd, queueCmd, sessionCmd, calcCmd, referenceCmd, exportCmd, ocrCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
