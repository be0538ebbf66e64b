package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	coalesce "github.com/tributary-data/coalesce"
	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the resolution pipeline",
	Long: `Run a full resolution pipeline: blocking, scoring, graph building,
clustering, and golden-record fusion.

The pipeline is parameterized by a YAML document (--pipeline) or by the
pipeline section of the app config. Interrupting the run with Ctrl-C stops
it gracefully and still writes a partial report.`,
	RunE: runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("pipeline", "", "Pipeline YAML document")
	runCmd.Flags().String("collection", "", "Collection to resolve (overrides the document)")
	runCmd.Flags().String("export-dir", "", "Directory for golden-record Parquet exports")
	runCmd.Flags().String("report-dir", "", "Directory for run report JSON files")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := newLogger(cfg)

	pcfg := &cfg.Pipeline
	if path, _ := cmd.Flags().GetString("pipeline"); path != "" {
		pcfg, err = config.LoadPipelineFile(path)
		if err != nil {
			return err
		}
	}
	if collection, _ := cmd.Flags().GetString("collection"); collection != "" {
		pcfg.Collection = collection
	}
	if pcfg.Collection == "" {
		return fmt.Errorf("no collection configured; set --collection or the pipeline document")
	}

	client, err := coalesce.NewClient(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize client: %w", err)
	}
	defer client.Close()

	opts := pipeline.Options{}
	opts.ExportDir, _ = cmd.Flags().GetString("export-dir")
	opts.ReportDir, _ = cmd.Flags().GetString("report-dir")

	// Ctrl-C cancels the run; the pipeline still returns a partial report.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, runErr := client.Run(ctx, pcfg, opts)
	if report != nil {
		printReport(report)
	}
	return runErr
}

func printReport(r *pipeline.Report) {
	fmt.Printf("\nRun %s: %s\n", r.RunID, r.Status)
	fmt.Printf("  records:        %d\n", r.Records)
	fmt.Printf("  candidates:     %d\n", r.Candidates)
	fmt.Printf("  matches:        %d\n", r.Matches)
	fmt.Printf("  clusters:       %d\n", r.Clusters)
	fmt.Printf("  golden records: %d\n", r.GoldenRecords)
	for _, stage := range r.Stages {
		line := fmt.Sprintf("  stage %-12s %s", stage.Name, stage.Status)
		if stage.Status != pipeline.StatusSkipped {
			line += fmt.Sprintf(" (%dms)", stage.DurationMS)
		}
		fmt.Println(line)
	}
	if r.ExportPath != "" {
		fmt.Printf("  export: %s\n", r.ExportPath)
	}
}
