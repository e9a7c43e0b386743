// Package cmd provides the CLI commands for Parley.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/parley-chat/parley/internal/config"
	perrors "github.com/parley-chat/parley/internal/errors"
	"github.com/parley-chat/parley/internal/logging"
	"github.com/parley-chat/parley/pkg/version"
)

// Persistent flags shared by every subcommand.
var (
	debugMode   bool
	noColor     bool
	dataDirFlag string

	loggingCleanup func()
)

// NewRootCmd creates the root command for the parley CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parley",
		Short: "Post and search short messages",
		Long: `Parley stores short messages from named senders and makes them searchable
as you type. Messages live in a local store; a full-text index is kept in step
with it and can always be rebuilt from the store.

Run 'parley serve' to expose posting and search to MCP clients over stdio.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("parley version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default ~/.parley/data)")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newPostCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newBrowseCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newReconcileCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging routes slog to the rotating log file. The MCP server never
// mirrors to stderr; other commands do with --debug.
func startLogging(cmd *cobra.Command, _ []string) error {
	level, logFile := "info", logging.DefaultLogPath()
	if cfg, err := loadConfig(); err == nil {
		level, logFile = cfg.Server.LogLevel, cfg.Paths.LogFile
	}
	if debugMode {
		level = "debug"
	}

	var lcfg logging.Config
	if cmd.Name() == "serve" {
		lcfg = logging.ServeConfig(level)
	} else {
		lcfg = logging.DefaultConfig()
		lcfg.Level = level
		lcfg.WriteToStderr = debugMode
	}
	lcfg.FilePath = logFile

	logger, cleanup, err := logging.Setup(lcfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Debug("command_started", slog.String("command", cmd.CommandPath()), slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// loadConfig loads the layered configuration for the working directory and
// applies --data-dir.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current directory: %w", err)
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	if dataDirFlag != "" {
		cfg.Paths.DataDir = dataDirFlag
	}
	return cfg, nil
}

// Execute runs the root command and prints any error in CLI form.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		if _, ok := perrors.As(err); ok {
			fmt.Fprint(root.ErrOrStderr(), perrors.FormatForCLI(err))
		} else {
			fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		}
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}
	return err
}
