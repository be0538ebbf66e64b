package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tributary-data/coalesce/pkg/config"
	"github.com/tributary-data/coalesce/pkg/logger"
	"github.com/tributary-data/coalesce/pkg/telemetry"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "coalesce",
		Short: "Coalesce: entity resolution over record stores",
		Long: `Coalesce resolves duplicate records across data sources into canonical
golden records. It blocks candidate pairs, scores them probabilistically,
clusters the resulting similarity graph, and fuses each cluster into one
golden record with per-field provenance.`,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.coalesce.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and environment variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".coalesce")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger builds the console logger, wrapped with the Parquet and SQL error
// sinks when telemetry is configured. A sink that fails to initialize is
// skipped with a warning; logging itself never depends on telemetry health.
func newLogger(cfg *config.Config) *slog.Logger {
	var handler slog.Handler = logger.NewColorHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	})

	if cfg.Telemetry.ParquetPath != "" {
		parquetHandler, err := telemetry.NewParquetHandler(handler, cfg.Telemetry.ParquetPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: parquet error tracking disabled: %v\n", err)
		} else {
			handler = parquetHandler
		}
	}

	if cfg.Telemetry.SQLDSN != "" {
		db, err := sql.Open("mysql", cfg.Telemetry.SQLDSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: sql error tracking disabled: %v\n", err)
		} else if sqlHandler, err := telemetry.NewSQLHandler(handler, db); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: sql error tracking disabled: %v\n", err)
			db.Close()
		} else {
			handler = sqlHandler
		}
	}
	return slog.New(handler)
}
