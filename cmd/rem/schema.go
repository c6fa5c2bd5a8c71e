package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/rem/pkg/types"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Manage entity type schemas",
}

// schemaFile is the CLI's own on-disk shape for a schema description: it
// carries JSONSchema as a json.RawMessage so an author writes a normal
// nested JSON-Schema document instead of a base64 blob.
type schemaFile struct {
	Name             string                 `json:"name"`
	JSONSchema       json.RawMessage        `json:"json_schema"`
	Category         string                 `json:"category"`
	Version          int                    `json:"version"`
	EmbeddingDim     int                    `json:"embedding_dim"`
	EmbeddingAltDim  int                    `json:"embedding_alt_dim"`
	Metric           string                 `json:"metric"`
	IndexedFields    []string               `json:"indexed_fields"`
	KeyField         string                 `json:"key_field"`
	EmbeddableFields []schemaEmbeddableField `json:"embeddable_fields"`
	ToolRefs         []string               `json:"tool_refs"`
}

// schemaEmbeddableField names a property and the embedding slot ("embedding"
// or "embedding_alt") its text is embedded into on write.
type schemaEmbeddableField struct {
	Property string `json:"property"`
	Slot     string `json:"slot"`
}

var schemaRegisterCmd = &cobra.Command{
	Use:   "register FILE",
	Short: "Register a schema description from a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read schema file: %w", err)
		}
		var sf schemaFile
		if err := json.Unmarshal(raw, &sf); err != nil {
			return fmt.Errorf("parse schema file: %w", err)
		}

		db, err := openDatabase(dataDir(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		embeddable := make([]types.EmbeddableField, len(sf.EmbeddableFields))
		for i, f := range sf.EmbeddableFields {
			embeddable[i] = types.EmbeddableField{Property: f.Property, Slot: f.Slot}
		}
		desc := &types.SchemaDescription{
			Name: sf.Name, JSONSchema: []byte(sf.JSONSchema),
			Category: types.SchemaCategory(sf.Category), Version: sf.Version,
			EmbeddingDim: sf.EmbeddingDim, EmbeddingAltDim: sf.EmbeddingAltDim,
			Metric: types.VectorMetric(sf.Metric), IndexedFields: sf.IndexedFields,
			KeyField: sf.KeyField, EmbeddableFields: embeddable, ToolRefs: sf.ToolRefs,
		}
		if err := db.schemas.Register(tenant, desc); err != nil {
			return fmt.Errorf("register schema: %w", err)
		}
		fmt.Printf("✓ schema registered: %s (tenant %s, version %d)\n", desc.Name, tenant, desc.Version)
		return nil
	},
}

var schemaListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered schemas for a category",
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		category, _ := cmd.Flags().GetString("category")

		db, err := openDatabase(dataDir(cmd))
		if err != nil {
			return err
		}
		defer db.Close()

		descs, err := db.schemas.ListByCategory(tenant, types.SchemaCategory(category))
		if err != nil {
			return fmt.Errorf("list schemas: %w", err)
		}
		if len(descs) == 0 {
			fmt.Println("No schemas found")
			return nil
		}
		fmt.Printf("%-20s %-10s %-8s %s\n", "NAME", "CATEGORY", "VERSION", "KEY FIELD")
		for _, d := range descs {
			fmt.Printf("%-20s %-10s %-8d %s\n", d.Name, d.Category, d.Version, d.KeyField)
		}
		return nil
	},
}

func init() {
	schemaCmd.AddCommand(schemaRegisterCmd)
	schemaCmd.AddCommand(schemaListCmd)

	schemaCmd.PersistentFlags().String("tenant", "default", "Tenant ID")
	schemaListCmd.Flags().String("category", "user", "Schema category (system, user, public, agents)")
}
