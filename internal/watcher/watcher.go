// Package watcher turns files appearing under a local directory tree into
// upload tasks. It enqueues every existing file at startup, then follows
// fsnotify events recursively.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/onedrive-uploader/internal/queue"
)

// Backoff bounds for repeated watcher errors (e.g. kernel queue overflow).
const (
	watchErrInitBackoff = time.Second
	watchErrMaxBackoff  = 30 * time.Second
	watchErrBackoffMult = 2
)

// FsWatcher is the subset of *fsnotify.Watcher the watch loop uses.
type FsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (f fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return fsnotifyWatcher{w: w}, nil
}

// Enqueuer accepts upload tasks. *queue.Queue implements it.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// Config describes what to watch and where files go.
type Config struct {
	SourceRoot      string
	DestinationRoot string
	Filter          Filter
	// Debounce coalesces repeated events for one path into a single task
	// after the path has been quiet this long. Zero enqueues every event.
	Debounce time.Duration
}

// Watcher produces queue tasks from the source tree.
type Watcher struct {
	cfg    Config
	queue  Enqueuer
	logger *slog.Logger

	newWatcher func() (FsWatcher, error)
	sleepFunc  func(ctx context.Context, d time.Duration) error
}

// New creates a Watcher. Nothing is read until Run.
func New(cfg Config, q Enqueuer, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		cfg:        cfg,
		queue:      q,
		logger:     logger,
		newWatcher: newFsnotifyWatcher,
		sleepFunc:  timeSleep,
	}
}

// Run scans the source tree, then follows filesystem events until ctx is
// canceled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.cfg.SourceRoot)
	if err != nil {
		return fmt.Errorf("watcher: source directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("watcher: source %s is not a directory", w.cfg.SourceRoot)
	}

	fw, err := w.newWatcher()
	if err != nil {
		return fmt.Errorf("watcher: creating filesystem watcher: %w", err)
	}
	defer fw.Close()

	var deb *debouncer
	if w.cfg.Debounce > 0 {
		deb = newDebouncer(w.cfg.Debounce, func(p string) { w.enqueue(ctx, p) })
		defer deb.stop()
	}

	w.logger.Info("watcher starting",
		slog.String("source", w.cfg.SourceRoot),
		slog.String("destination", w.cfg.DestinationRoot),
		slog.Duration("debounce", w.cfg.Debounce),
	)

	// Watches are added during the scan so files created mid-scan still
	// produce events.
	n, err := w.scanTree(ctx, w.cfg.SourceRoot, fw)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}

		return err
	}

	w.logger.Info("initial scan complete", slog.Int("files", n))

	return w.watchLoop(ctx, fw, deb)
}

// watchLoop processes fsnotify events and errors until ctx is canceled or
// the watcher's channels close.
func (w *Watcher) watchLoop(ctx context.Context, fw FsWatcher, deb *debouncer) error {
	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events():
			if !ok {
				return nil
			}

			w.handleEvent(ctx, ev, fw, deb)

			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-fw.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if sleepErr := w.sleepFunc(ctx, errBackoff); sleepErr != nil {
				return nil
			}

			errBackoff = min(errBackoff*watchErrBackoffMult, watchErrMaxBackoff)
		}
	}
}

// handleEvent reacts to one fsnotify event. Removals and chmod-only events
// are ignored; a rename is reported on the old name, and the new name
// arrives as a separate Create.
func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event, fw FsWatcher, deb *debouncer) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}

	info, err := os.Lstat(ev.Name)
	if err != nil {
		w.logger.Debug("event path vanished", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
		return
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		return
	}

	if w.cfg.Filter.Excluded(filepath.Base(ev.Name), info.IsDir()) {
		w.logger.Debug("watch: skipping excluded path", slog.String("path", ev.Name))
		return
	}

	if info.IsDir() {
		if ev.Has(fsnotify.Create) {
			if _, scanErr := w.scanTree(ctx, ev.Name, fw); scanErr != nil && ctx.Err() == nil {
				w.logger.Warn("scan of new directory failed",
					slog.String("path", ev.Name),
					slog.String("error", scanErr.Error()),
				)
			}
		}

		return
	}

	if !info.Mode().IsRegular() {
		return
	}

	if deb != nil {
		deb.touch(ev.Name)
		return
	}

	w.enqueue(ctx, ev.Name)
}

// scanTree watches every directory under root and enqueues every file,
// returning the number of files enqueued.
func (w *Watcher) scanTree(ctx context.Context, root string, fw FsWatcher) (int, error) {
	count := 0

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("walk error", slog.String("path", p), slog.String("error", err.Error()))
			return skipEntry(d)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if p != root && w.cfg.Filter.Excluded(d.Name(), d.IsDir()) {
			return skipEntry(d)
		}

		if d.IsDir() {
			if addErr := fw.Add(p); addErr != nil {
				w.logger.Warn("failed to add watch",
					slog.String("path", p),
					slog.String("error", addErr.Error()),
				)
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		if w.enqueue(ctx, p) {
			count++
		}

		return nil
	})
	if walkErr != nil {
		return count, fmt.Errorf("watcher: scanning %s: %w", root, walkErr)
	}

	return count, nil
}

// enqueue maps localPath and pushes the task, blocking while the queue is
// full. It reports whether the task was queued.
func (w *Watcher) enqueue(ctx context.Context, localPath string) bool {
	folder, name, err := MapDestination(w.cfg.SourceRoot, w.cfg.DestinationRoot, localPath)
	if err != nil {
		w.logger.Warn("cannot map path", slog.String("path", localPath), slog.String("error", err.Error()))
		return false
	}

	task := queue.Task{SourcePath: localPath, DestinationFolder: folder, DestinationName: name}

	if err := w.queue.Enqueue(ctx, task); err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, queue.ErrClosed) {
			w.logger.Warn("enqueue failed", slog.String("path", localPath), slog.String("error", err.Error()))
		}

		return false
	}

	w.logger.Debug("queued file",
		slog.String("path", localPath),
		slog.String("destination", path.Join(folder, name)),
	)

	return true
}

// skipEntry returns filepath.SkipDir for directories so the walk skips the
// subtree, or nil for files.
func skipEntry(d fs.DirEntry) error {
	if d != nil && d.IsDir() {
		return filepath.SkipDir
	}

	return nil
}

// timeSleep waits for d or until ctx is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
