package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var cleanupDays int

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete stored snapshots older than a number of days",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}

		days := cleanupDays
		if days <= 0 {
			days = a.cfg.Storage.RetentionDays
		}
		if days <= 0 {
			return fmt.Errorf("retention must be at least one day")
		}

		store, err := a.openStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		return store.CleanupOldData(time.Now().AddDate(0, 0, -days))
	},
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", 0, "Keep this many days of snapshots. Defaults to storage.retention_days.")
}
