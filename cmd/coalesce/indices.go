package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	coalesce "github.com/tributary-data/coalesce"
	"github.com/tributary-data/coalesce/pkg/config"
)

var indicesCmd = &cobra.Command{
	Use:   "indices",
	Short: "Create store indices",
	Long: `Create the backend indices the pipeline relies on: a unique record
constraint, fulltext indices over the scored fields, and a vector index for
embedding search. A no-op on backends without index support.`,
	RunE: runIndices,
}

func init() {
	rootCmd.AddCommand(indicesCmd)
}

func runIndices(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := newLogger(cfg)

	client, err := coalesce.NewClient(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize client: %w", err)
	}
	defer client.Close()

	if err := client.CreateIndices(context.Background()); err != nil {
		return fmt.Errorf("failed to create indices: %w", err)
	}
	fmt.Println("Indices created")
	return nil
}
