package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	coalesce "github.com/tributary-data/coalesce"
	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/pipeline"
	"github.com/tributary-data/coalesce/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the coalesce HTTP server",
	Long: `Start the HTTP server providing REST access to the resolution pipeline.

Endpoints cover record ingestion, pipeline runs, cluster and golden-record
retrieval, and health checks.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "Server host")
	serveCmd.Flags().Int("port", 8080, "Server port")
	serveCmd.Flags().String("mode", "debug", "Server mode (debug, release, test)")

	serveCmd.Flags().String("store-driver", "", "Store driver (badger, neo4j, memory)")
	serveCmd.Flags().String("store-uri", "", "Store URI or path")

	serveCmd.Flags().String("export-dir", "", "Directory for golden-record Parquet exports")
	serveCmd.Flags().String("report-dir", "", "Directory for run report JSON files")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	overrideServeFlags(cmd, cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", cfg.Server.Port)
	}

	log := newLogger(cfg)
	client, err := coalesce.NewClient(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize client: %w", err)
	}
	defer client.Close()

	opts := pipeline.Options{}
	opts.ExportDir, _ = cmd.Flags().GetString("export-dir")
	opts.ReportDir, _ = cmd.Flags().GetString("report-dir")

	srv := server.New(cfg, client, opts, log)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	}
}

func overrideServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode, _ = cmd.Flags().GetString("mode")
	}
	if cmd.Flags().Changed("store-driver") {
		cfg.Store.Driver, _ = cmd.Flags().GetString("store-driver")
	}
	if cmd.Flags().Changed("store-uri") {
		cfg.Store.URI, _ = cmd.Flags().GetString("store-uri")
	}
}
