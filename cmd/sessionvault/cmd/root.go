package cmd

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessionvault/config"
	"github.com/jmcleod/sessionvault/console"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "sessionvault",
	Short: "Manage the console's session and credential store",
	Long: `Operator tooling for the session and credential store behind the
management console.`,
	Version:      Version,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SESSIONVAULT_CONFIG"), "Path to the JSON configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// openConsole loads the configuration and opens the persistent store. The
// CLI has nothing useful to do with the placeholder stores, so an
// unconfigured store is an error here.
func openConsole(cmd *cobra.Command) (*console.Console, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if !cfg.Configured() {
		return nil, errors.New("session_store is not configured")
	}
	return console.New(cfg, console.WithLogger(newLogger(cmd)))
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
