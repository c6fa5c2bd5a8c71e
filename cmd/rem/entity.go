package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/rem/pkg/types"
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Insert, inspect, and delete entities",
}

var entityInsertCmd = &cobra.Command{
	Use:   "insert TYPE FILE",
	Short: "Insert an entity of TYPE from a JSON properties file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, path := args[0], args[1]
		tenant, _ := cmd.Flags().GetString("tenant")

		props, err := readProperties(path)
		if err != nil {
			return err
		}

		db, err := openDatabase(dataDir(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := db.entities.Insert(tenant, typ, props)
		if err != nil {
			return fmt.Errorf("insert entity: %w", err)
		}
		fmt.Printf("✓ entity inserted: %s\n", id)
		return nil
	},
}

var entityGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Fetch an entity by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}

		db, err := openDatabase(dataDir(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		e, err := db.entities.Get(tenant, id)
		if err != nil {
			return fmt.Errorf("get entity: %w", err)
		}
		return printEntity(e)
	},
}

var entityUpdateCmd = &cobra.Command{
	Use:   "update ID FILE",
	Short: "Replace an entity's properties from a JSON properties file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}
		props, err := readProperties(args[1])
		if err != nil {
			return err
		}

		db, err := openDatabase(dataDir(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.entities.Update(tenant, id, props); err != nil {
			return fmt.Errorf("update entity: %w", err)
		}
		fmt.Printf("✓ entity updated: %s\n", id)
		return nil
	},
}

var entityDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Tombstone an entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}

		db, err := openDatabase(dataDir(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.entities.Delete(tenant, id); err != nil {
			return fmt.Errorf("delete entity: %w", err)
		}
		fmt.Printf("✓ entity deleted: %s\n", id)
		return nil
	},
}

func init() {
	entityCmd.AddCommand(entityInsertCmd)
	entityCmd.AddCommand(entityGetCmd)
	entityCmd.AddCommand(entityUpdateCmd)
	entityCmd.AddCommand(entityDeleteCmd)

	entityCmd.PersistentFlags().String("tenant", "default", "Tenant ID")
}

// readProperties loads a JSON object from path and converts it into the
// map[string]types.Value shape entity.Store expects.
func readProperties(path string) (map[string]types.Value, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read properties file: %w", err)
	}
	var native map[string]any
	if err := json.Unmarshal(raw, &native); err != nil {
		return nil, fmt.Errorf("parse properties file: %w", err)
	}
	props := make(map[string]types.Value, len(native))
	for k, v := range native {
		val, err := types.FromNative(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		props[k] = val
	}
	return props, nil
}

func printEntity(e *types.Entity) error {
	native := make(map[string]any, len(e.Properties))
	for k, v := range e.Properties {
		native[k] = v.Native()
	}
	out, err := json.MarshalIndent(map[string]any{
		"id":            e.ID,
		"type":          e.Type,
		"name":          e.Name,
		"properties":    native,
		"created_at":    e.CreatedAt,
		"modified_at":   e.ModifiedAt,
		"origin_node_id": e.OriginNodeID,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
