// Command rem is a minimal CLI for exercising a rem database from a
// terminal: schema registration, entity CRUD, SQL queries, and a pair of
// replication smoke-test commands. It wraps pkg/query and friends the way
// cmd/warren wraps pkg/manager, but has none of a full deployment's
// flags — no cluster join tokens, no HTTP gateway (spec.md §1 lists both
// as engine non-goals).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/rem/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "rem",
	Short: "rem - an embedded, multi-tenant, schema-driven entity database",
	Long: `rem unifies key-value storage, graph edges, vector similarity
search, and a SQL-like query layer over a single embedded KV store.

This CLI drives one rem instance directly out of a data directory; it is
not a client of a separate server process.`,
}

func init() {
	rootCmd.PersistentFlags().String("data-dir", "./rem-data", "Data directory for the embedded store")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(entityCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(replicateCmd)
	rootCmd.AddCommand(maintenanceCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func dataDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("data-dir")
	return dir
}
