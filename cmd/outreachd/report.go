package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"outreachd/internal/config"
	"outreachd/internal/ledger"
	"outreachd/internal/report"
	"outreachd/internal/seen"
)

var (
	reportConfigPath string
	reportDate       string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the daily action report as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(reportConfigPath)
		if err != nil {
			return err
		}

		date := time.Now().UTC()
		if reportDate != "" {
			date, err = time.Parse("2006-01-02", reportDate)
			if err != nil {
				return fmt.Errorf("parse date: %w", err)
			}
		}

		db, err := openDB(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		rep, err := report.Build(context.Background(), ledger.NewStore(db), seen.NewStore(db), date)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportConfigPath, "config", "outreachd.toml", "path to TOML config file")
	reportCmd.Flags().StringVar(&reportDate, "date", "", "UTC day to report on (YYYY-MM-DD, default today)")
}
