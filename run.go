package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-uploader/internal/auth"
	"github.com/tonimelisma/onedrive-uploader/internal/config"
	"github.com/tonimelisma/onedrive-uploader/internal/queue"
	"github.com/tonimelisma/onedrive-uploader/internal/watcher"
)

var errNotLoggedIn = errors.New("not logged in: run 'onedrive-uploader login' first")

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the source directory and upload files until interrupted",
		Long: `Scan the source directory, upload every file found, then keep watching
for new and changed files. Stops on SIGINT or SIGTERM after in-flight uploads
finish; a second signal exits immediately.`,
		Args: cobra.NoArgs,
		RunE: runRun,
	}

	cmd.Flags().String("source-dir", "", "directory to watch (overrides source.directory)")
	cmd.Flags().Bool("delete-after-upload", false, "delete local files after a successful upload")

	return cmd
}

func runRun(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := cc.Cfg.RequireCredentials(); err != nil {
		return err
	}

	cleanup, err := writePIDFile(config.PIDFilePath())
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	a, err := newApp(cc, nil)
	if err != nil {
		return err
	}

	if err := ensureToken(ctx, a); err != nil {
		return err
	}

	return runUploader(ctx, a)
}

// ensureToken obtains a token up front so an interactive prompt happens
// before the watcher starts. Only a missing authorization is fatal; transient
// failures are retried by the supervised upload loop.
func ensureToken(ctx context.Context, a *app) error {
	_, err := a.tokens.AccessToken(ctx)
	if err == nil {
		return nil
	}

	if errors.Is(err, auth.ErrInteractiveAuthRequired) {
		return errNotLoggedIn
	}

	if ctx.Err() != nil {
		return fmt.Errorf("authorization interrupted: %w", ctx.Err())
	}

	a.logger.Warn("could not obtain access token at startup, will retry",
		slog.String("error", err.Error()),
	)

	return nil
}

// runUploader runs the watcher and the supervised upload loop until ctx is
// canceled or the watcher fails.
func runUploader(ctx context.Context, a *app) error {
	cfg := a.cfg
	q := queue.New(cfg.QueueCapacity)

	w := watcher.New(watcher.Config{
		SourceRoot:      cfg.SourceDir,
		DestinationRoot: cfg.DestinationRoot,
		Filter: watcher.Filter{
			SkipFiles:    cfg.SkipFiles,
			SkipDotfiles: cfg.SkipDotfiles,
		},
		Debounce: cfg.Debounce,
	}, q, a.logger)

	orch := a.newOrchestrator()

	a.logger.Info("uploader starting",
		slog.String("source_dir", cfg.SourceDir),
		slog.String("destination_root", cfg.DestinationRoot),
		slog.Bool("delete_after_upload", cfg.DeleteAfterUpload),
		slog.Int("queue_capacity", q.Cap()),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer q.Close()

		return w.Run(gctx)
	})

	g.Go(func() error {
		return orch.Supervise(gctx, q, cfg.RestartDelay)
	})

	err := g.Wait()

	stats := orch.Stats()
	a.logger.Info("uploader stopped",
		slog.Int64("succeeded", stats.Succeeded),
		slog.Int64("failed", stats.Failed),
		slog.Int64("skipped", stats.Skipped),
		slog.Int("dropped", q.Len()),
	)

	return err
}
