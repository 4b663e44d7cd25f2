package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-uploader/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags is the parsed set of persistent flags.
type CLIFlags struct {
	ConfigPath string
	Verbose    bool
	Quiet      bool
}

// CLIContext carries the resolved configuration and logger to subcommands.
// It is attached to the command context by the root pre-run hook.
type CLIContext struct {
	Cfg    *config.Resolved
	Logger *slog.Logger
	Flags  CLIFlags

	closeLog func() error
}

type cliContextKey struct{}

// cliContextFrom returns the CLIContext stored by the root pre-run hook.
func cliContextFrom(ctx context.Context) (*CLIContext, bool) {
	if ctx == nil {
		return nil, false
	}

	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)

	return cc, ok && cc != nil
}

// mustCLIContext is cliContextFrom for commands, which always run after the
// pre-run hook.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := cliContextFrom(ctx)
	if !ok {
		panic("onedrive-uploader: command context missing CLIContext")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onedrive-uploader",
		Short: "Upload files dropped into a directory to OneDrive",
		Long: "Watches a local directory and uploads every new or changed file " +
			"to a OneDrive folder, optionally deleting the local copy afterwards.",
		Version: version,
		// Errors are printed once by main.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cc, ok := cliContextFrom(cmd.Context()); ok && cc.closeLog != nil {
				return cc.closeLog()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "only log errors")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain,
// builds the logger and stores both in the command context.
func loadConfig(cmd *cobra.Command) error {
	flags := CLIFlags{ConfigPath: flagConfigPath, Verbose: flagVerbose, Quiet: flagQuiet}

	cli := cliOverrides(cmd, flags)

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := buildLogger(resolved, os.Stderr)
	if err != nil {
		return err
	}

	logger.Debug("configuration loaded",
		slog.String("config_path", resolved.ConfigPath),
		slog.String("source_dir", resolved.SourceDir),
		slog.String("destination_root", resolved.DestinationRoot),
	)

	cc := &CLIContext{Cfg: resolved, Logger: logger, Flags: flags, closeLog: closeLog}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// cliOverrides maps explicitly set flags onto config overrides. Flags the
// user did not pass stay nil so lower layers keep their values.
func cliOverrides(cmd *cobra.Command, flags CLIFlags) config.CLIOverrides {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	switch {
	case flags.Verbose:
		level := "debug"
		cli.LogLevel = &level
	case flags.Quiet:
		level := "error"
		cli.LogLevel = &level
	}

	if f := cmd.Flags().Lookup("source-dir"); f != nil && f.Changed {
		dir := f.Value.String()
		cli.SourceDir = &dir
	}

	if f := cmd.Flags().Lookup("delete-after-upload"); f != nil && f.Changed {
		deleteAfter := f.Value.String() == "true"
		cli.DeleteAfterUpload = &deleteAfter
	}

	return cli
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
