// Package cmd provides the CLI commands for lexengine.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clearlaw/lexengine/internal/config"
	"github.com/clearlaw/lexengine/internal/logging"
	"github.com/clearlaw/lexengine/pkg/version"
)

var (
	configPath     string
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the lexengine CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lexengine",
		Short: "Hybrid retrieval engine for legal question answering",
		Long: `lexengine retrieves statutory provisions for a legal question,
combining keyword (BM25) and semantic (vector) search with rank
fusion, cross-encoder reranking and parent-document expansion.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("lexengine version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ~/.lexengine/config.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
		}
	}

	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if debugMode {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup

	// Components resolve slog.Default when no logger is injected.
	setDefaultLogger(logger)
	return nil
}

// loadConfig resolves the config file: the explicit flag, then the
// conventional location if it exists, then pure defaults plus env.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		if def := config.DefaultPath(); def != "" {
			if _, err := os.Stat(def); err == nil {
				path = def
			}
		}
	}
	return config.Load(path)
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}
