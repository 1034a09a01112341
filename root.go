package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/slingr-stack/google-drive-endpoint/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagListen     string
	flagStorePath  string
	flagPIDFile    string
	flagVerbose    bool
	flagQuiet      bool
)

// newRootCmd builds and returns the fully-assembled root command with
// all subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "google-drive-endpoint",
		Short:   "Google Drive endpoint service",
		Long:    "A credential broker and Google Drive API proxy for platform applications.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// resolveConfig applies the override chain for commands that need the
// effective configuration.
func resolveConfig() (*config.Config, string, error) {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	if flagListen != "" {
		cli.ListenAddr = &flagListen
	}

	if flagStorePath != "" {
		cli.StorePath = &flagStorePath
	}

	return config.Resolve(config.ReadEnvOverrides(), cli)
}

// buildLogger creates an slog.Logger from the resolved config and CLI
// flags. Config provides the baseline; --verbose and --quiet override
// it because CLI flags always win. The "auto" format picks text on a
// terminal and JSON otherwise, so service logs stay machine-parseable.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	format := "auto"
	if cfg != nil {
		format = cfg.Logging.LogFormat
	}

	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	default:
		if isatty.IsTerminal(os.Stderr.Fd()) {
			return slog.New(slog.NewTextHandler(os.Stderr, opts))
		}

		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
