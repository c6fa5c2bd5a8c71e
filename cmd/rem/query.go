package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query SQL",
	Short: "Run a query (SELECT, SEARCH, TRAVERSE, or LOOKUP) against a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")

		db, err := openDatabase(dataDir(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		rows, err := db.engine.Query(context.Background(), tenant, args[0])
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}

		for _, row := range rows {
			obj := make(map[string]any, len(row))
			for _, f := range row {
				obj[f.Name] = f.Value.Native()
			}
			out, err := json.Marshal(obj)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		}
		if len(rows) == 0 {
			fmt.Println("(0 rows)")
		}
		return nil
	},
}

func init() {
	queryCmd.Flags().String("tenant", "default", "Tenant ID")
}
