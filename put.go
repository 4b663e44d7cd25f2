package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-uploader/internal/config"
	"github.com/tonimelisma/onedrive-uploader/internal/queue"
	"github.com/tonimelisma/onedrive-uploader/internal/upload"
	"github.com/tonimelisma/onedrive-uploader/internal/watcher"
)

func newPutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <file>...",
		Short: "Upload files once without watching",
		Long: `Upload the named files and exit. Files inside the source directory keep
their relative folder under the destination root; other files go directly
into the destination root.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runPut,
	}

	cmd.Flags().Bool("delete-after-upload", false, "delete local files after a successful upload")

	return cmd
}

func runPut(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())

	if err := cc.Cfg.RequireCredentials(); err != nil {
		return err
	}

	tasks, err := putTasks(cc.Cfg, args)
	if err != nil {
		return err
	}

	a, err := newApp(cc, nil)
	if err != nil {
		return err
	}

	stats, err := uploadOnce(shutdownContext(cmd.Context(), cc.Logger), a, tasks)
	if err != nil {
		return err
	}

	if failed := stats.Failed + stats.Skipped; failed > 0 {
		return fmt.Errorf("%d of %d uploads did not complete", failed, len(tasks))
	}

	cc.Statusf("Uploaded %d file(s).\n", stats.Succeeded)

	return nil
}

// uploadOnce pushes tasks through a closed queue so the workers exit once it
// is drained.
func uploadOnce(ctx context.Context, a *app, tasks []queue.Task) (upload.Stats, error) {
	q := queue.New(len(tasks))

	for _, t := range tasks {
		if err := q.Enqueue(ctx, t); err != nil {
			return upload.Stats{}, err
		}
	}

	q.Close()

	orch := a.newOrchestrator()
	err := orch.Run(ctx, q)

	return orch.Stats(), err
}

// putTasks maps each argument to a task. Every argument must be a regular
// file.
func putTasks(cfg *config.Resolved, args []string) ([]queue.Task, error) {
	tasks := make([]queue.Task, 0, len(args))

	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", arg, err)
		}

		info, err := os.Lstat(abs)
		if err != nil {
			return nil, err
		}

		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("%s: not a regular file", arg)
		}

		root := filepath.Dir(abs)
		if isWithin(cfg.SourceDir, abs) {
			root = cfg.SourceDir
		}

		folder, name, err := watcher.MapDestination(root, cfg.DestinationRoot, abs)
		if err != nil {
			return nil, err
		}

		tasks = append(tasks, queue.Task{SourcePath: abs, DestinationFolder: folder, DestinationName: name})
	}

	return tasks, nil
}

// isWithin reports whether p lies strictly below dir.
func isWithin(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
