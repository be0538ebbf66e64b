package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	coalesce "github.com/tributary-data/coalesce"
	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest records from a JSON file",
	Long: `Ingest source records from a JSON file holding an array of records:

  [{"id": "r1", "fields": {"name": "John Smith", "email": "j@x.com"}}, ...]

Records that fail validation are skipped and counted; the batch continues.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("collection", "", "Target collection (required unless records carry one)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := newLogger(cfg)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read records file: %w", err)
	}
	var records []*types.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse records file: %w", err)
	}

	collection, _ := cmd.Flags().GetString("collection")
	for _, rec := range records {
		if rec.Collection == "" {
			rec.Collection = collection
		}
	}

	client, err := coalesce.NewClient(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize client: %w", err)
	}
	defer client.Close()

	stats, err := client.IngestRecords(context.Background(), records)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d records (%d skipped)\n", stats.Upserted, stats.Skipped)
	return nil
}
