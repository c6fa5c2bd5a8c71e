package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Compact tombstones and flush storage outside the background worker",
}

var maintenanceCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Purge tombstoned entities older than --before (spec §4.6 Compact, R1)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		before, _ := cmd.Flags().GetDuration("before")

		db, err := openDatabase(dataDir(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		// Run synchronously rather than enqueueing: the worker's queue makes
		// no drain guarantee against a concurrent Close, and this process
		// wires no PendingStore to recover a dropped task.
		if err := db.entities.Compact(tenant, time.Now().UTC().Add(-before)); err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		fmt.Println("✓ compaction complete")
		return nil
	},
}

var maintenanceFlushWalCmd = &cobra.Command{
	Use:   "flush-wal",
	Short: "Force a durable fsync of the tenant's storage file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")

		db, err := openDatabase(dataDir(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.kv.Sync(tenant); err != nil {
			return fmt.Errorf("flush wal: %w", err)
		}
		fmt.Println("✓ storage flushed")
		return nil
	},
}

func init() {
	maintenanceCmd.AddCommand(maintenanceCompactCmd)
	maintenanceCmd.AddCommand(maintenanceFlushWalCmd)

	maintenanceCmd.PersistentFlags().String("tenant", "default", "Tenant ID")
	maintenanceCompactCmd.Flags().Duration("before", 24*time.Hour, "Compact tombstones older than this duration")
}
