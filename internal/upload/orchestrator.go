// Package upload drains the work queue and transfers each file. It acquires
// an access token and chooses the single-request or chunked protocol by
// size. After an authorization failure it retries once. A completed upload is
// checked against the content hash the server reports, and the source is
// optionally deleted once that check passes.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-uploader/internal/graph"
	"github.com/tonimelisma/onedrive-uploader/internal/queue"
)

// Defaults for Options fields left at zero.
const (
	DefaultSmallUploadThreshold = 4 << 20
	DefaultChunkSize            = 10 * graph.ChunkAlignment
)

// ErrTokenUnavailable wraps failures to obtain an access token. It stops the
// consumer loop; the task that hit it is retried when the loop restarts.
var ErrTokenUnavailable = errors.New("upload: access token unavailable")

// Uploader performs the remote calls. *graph.Client implements it.
type Uploader interface {
	UploadSmall(ctx context.Context, accessToken string, u graph.SmallUpload) (*graph.Response, error)
	CreateUploadSession(
		ctx context.Context, accessToken, destinationPath string, conflict graph.ConflictBehavior,
	) (*graph.UploadSession, error)
	UploadChunk(
		ctx context.Context, session *graph.UploadSession, chunk io.Reader, from, to, total int64,
	) (*graph.Response, error)
}

// TokenSource supplies access tokens. *auth.Manager implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	ForceReauthorize(ctx context.Context, rejected string) (string, error)
}

// Dequeuer is the consumer side of the work queue. *queue.Queue implements it.
type Dequeuer interface {
	Dequeue(ctx context.Context) (queue.Task, error)
	Len() int
}

// Options tunes the orchestrator.
type Options struct {
	// Files strictly smaller than SmallUploadThreshold use a single PUT.
	SmallUploadThreshold int64
	// ChunkSize must be a multiple of graph.ChunkAlignment.
	ChunkSize         int64
	Conflict          graph.ConflictBehavior
	DeleteAfterUpload bool
	Workers           int
	OpenBackoff       Backoff
	DeleteBackoff     Backoff
	Limiter           *BandwidthLimiter
}

// Outcome classifies one upload attempt.
type Outcome int

const (
	// OutcomeSuccess means the server accepted the file.
	OutcomeSuccess Outcome = iota
	// OutcomeAuthFailure means the server rejected the token (401/403).
	OutcomeAuthFailure
	// OutcomeOtherFailure covers every other non-2xx status and transport
	// errors.
	OutcomeOtherFailure
	// OutcomeSkipped means the source vanished or never became readable.
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthFailure:
		return "auth-failure"
	case OutcomeOtherFailure:
		return "failure"
	case OutcomeSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is the final outcome for one task.
type Result struct {
	Outcome    Outcome
	StatusCode int
	Body       []byte
	Err        error
}

// Stats counts task outcomes since the orchestrator was created.
type Stats struct {
	Succeeded int64
	Failed    int64
	Skipped   int64
}

// Orchestrator uploads queued files.
type Orchestrator struct {
	client Uploader
	tokens TokenSource
	opts   Options
	logger *slog.Logger

	sleepFunc  sleepFunc
	openFunc   func(name string) (*os.File, error)
	removeFunc func(name string) error

	succeeded atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64

	// heldMu guards held, tasks interrupted by a token failure.
	heldMu sync.Mutex
	held   []queue.Task
}

// New creates an Orchestrator, filling zero Options with defaults.
func New(client Uploader, tokens TokenSource, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.SmallUploadThreshold <= 0 {
		opts.SmallUploadThreshold = DefaultSmallUploadThreshold
	}

	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	if opts.Conflict == "" {
		opts.Conflict = graph.ConflictRename
	}

	if opts.Workers < 1 {
		opts.Workers = 1
	}

	if opts.OpenBackoff.MaxAttempts <= 0 {
		opts.OpenBackoff = DefaultOpenBackoff
	}

	if opts.DeleteBackoff.MaxAttempts <= 0 {
		opts.DeleteBackoff = DefaultDeleteBackoff
	}

	return &Orchestrator{
		client:     client,
		tokens:     tokens,
		opts:       opts,
		logger:     logger,
		sleepFunc:  timeSleep,
		openFunc:   os.Open,
		removeFunc: os.Remove,
	}
}

// Stats returns outcome counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Succeeded: o.succeeded.Load(),
		Failed:    o.failed.Load(),
		Skipped:   o.skipped.Load(),
	}
}

// Run consumes q with Options.Workers goroutines until ctx is canceled or
// the queue is closed, returning nil. It returns an ErrTokenUnavailable
// error when a token cannot be obtained; the interrupted task is kept and
// processed first by the next Run.
func (o *Orchestrator) Run(ctx context.Context, q Dequeuer) error {
	g, gctx := errgroup.WithContext(ctx)

	o.logger.Info("upload workers starting", slog.Int("workers", o.opts.Workers))

	for range o.opts.Workers {
		g.Go(func() error {
			return o.worker(gctx, q)
		})
	}

	return g.Wait()
}

func (o *Orchestrator) worker(ctx context.Context, q Dequeuer) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		task, ok := o.takeHeld()
		if !ok {
			var err error

			task, err = q.Dequeue(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
					return nil
				}

				return fmt.Errorf("upload: dequeue: %w", err)
			}
		}

		res := o.safeUpload(ctx, task)

		if errors.Is(res.Err, ErrTokenUnavailable) {
			o.hold(task)

			return res.Err
		}

		o.logger.Info("task finished",
			slog.String("path", task.SourcePath),
			slog.String("outcome", res.Outcome.String()),
			slog.Int("items_remaining", q.Len()),
		)
	}
}

// safeUpload wraps Upload with panic recovery so one bad task cannot take
// down the worker pool.
func (o *Orchestrator) safeUpload(ctx context.Context, task queue.Task) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic during upload",
				slog.String("path", task.SourcePath),
				slog.Any("panic", r),
			)
			o.failed.Add(1)

			res = Result{Outcome: OutcomeOtherFailure, Err: fmt.Errorf("upload: panic: %v", r)}
		}
	}()

	return o.Upload(ctx, task)
}

func (o *Orchestrator) hold(task queue.Task) {
	o.heldMu.Lock()
	defer o.heldMu.Unlock()

	o.held = append(o.held, task)
}

func (o *Orchestrator) takeHeld() (queue.Task, bool) {
	o.heldMu.Lock()
	defer o.heldMu.Unlock()

	if len(o.held) == 0 {
		return queue.Task{}, false
	}

	task := o.held[0]
	o.held = o.held[1:]

	return task, true
}

// Upload transfers one file. The transfer runs on a context detached from
// ctx's cancellation so shutdown lets in-flight uploads finish.
func (o *Orchestrator) Upload(ctx context.Context, task queue.Task) Result {
	ctx = context.WithoutCancel(ctx)

	logger := o.logger.With(slog.String("path", task.SourcePath))

	f, err := o.openSource(ctx, task.SourcePath)
	if err != nil {
		logger.Warn("skipping file", slog.String("reason", err.Error()))
		o.skipped.Add(1)

		return Result{Outcome: OutcomeSkipped, Err: err}
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		o.skipped.Add(1)

		return Result{Outcome: OutcomeSkipped, Err: fmt.Errorf("upload: stat %s: %w", task.SourcePath, err)}
	}

	size := info.Size()
	res := o.uploadWithReauth(ctx, logger, f, task, size)
	if res.Outcome == OutcomeSuccess {
		res = o.verify(logger, f, size, res)
	}
	f.Close()

	switch res.Outcome {
	case OutcomeSuccess:
		o.succeeded.Add(1)
		logger.Info("upload succeeded",
			slog.String("destination", graph.JoinPath(task.DestinationFolder, task.DestinationName)),
			slog.String("size", humanize.IBytes(uint64(size))),
			slog.Int("status", res.StatusCode),
		)

		if o.opts.DeleteAfterUpload {
			o.deleteSource(ctx, logger, task.SourcePath)
		}
	default:
		if !errors.Is(res.Err, ErrTokenUnavailable) {
			o.failed.Add(1)
			logger.Error("upload failed",
				slog.String("outcome", res.Outcome.String()),
				slog.Int("status", res.StatusCode),
				slog.String("body", string(res.Body)),
				slog.Any("error", res.Err),
			)
		}
	}

	return res
}

// uploadWithReauth makes one attempt and, if the token was rejected, forces
// reauthorization and makes exactly one more.
func (o *Orchestrator) uploadWithReauth(
	ctx context.Context, logger *slog.Logger, f *os.File, task queue.Task, size int64,
) Result {
	contentType := detectContentType(f, task.DestinationName)

	token, err := o.tokens.AccessToken(ctx)
	if err != nil {
		return Result{Outcome: OutcomeAuthFailure, Err: fmt.Errorf("%w: %w", ErrTokenUnavailable, err)}
	}

	res := o.attempt(ctx, f, task, size, contentType, token)
	if res.Outcome != OutcomeAuthFailure {
		return res
	}

	logger.Warn("upload rejected the access token, reauthorizing", slog.Int("status", res.StatusCode))

	token, err = o.tokens.ForceReauthorize(ctx, token)
	if err != nil {
		return Result{Outcome: OutcomeAuthFailure, Err: fmt.Errorf("%w: %w", ErrTokenUnavailable, err)}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Result{Outcome: OutcomeOtherFailure, Err: fmt.Errorf("upload: rewinding %s: %w", task.SourcePath, err)}
	}

	return o.attempt(ctx, f, task, size, contentType, token)
}

func (o *Orchestrator) attempt(
	ctx context.Context, f *os.File, task queue.Task, size int64, contentType, token string,
) Result {
	if size < o.opts.SmallUploadThreshold {
		resp, err := o.client.UploadSmall(ctx, token, graph.SmallUpload{
			Folder:      task.DestinationFolder,
			Name:        task.DestinationName,
			Content:     o.opts.Limiter.WrapReader(ctx, f),
			Size:        size,
			ContentType: contentType,
			Conflict:    o.opts.Conflict,
		})

		return resultOf(resp, err)
	}

	return o.uploadChunked(ctx, f, task, size, token)
}

// uploadChunked creates an upload session and streams the file in
// ChunkSize pieces, stopping at the first rejected chunk.
func (o *Orchestrator) uploadChunked(ctx context.Context, f io.ReaderAt, task queue.Task, size int64, token string) Result {
	dest := graph.JoinPath(task.DestinationFolder, task.DestinationName)

	session, err := o.client.CreateUploadSession(ctx, token, dest, o.opts.Conflict)
	if err != nil {
		return resultOf(nil, err)
	}

	ranges := ChunkRanges(size, o.opts.ChunkSize)

	o.logger.Debug("chunked upload",
		slog.String("destination", dest),
		slog.String("size", humanize.IBytes(uint64(size))),
		slog.Int("chunks", len(ranges)),
	)

	var last *graph.Response

	for _, r := range ranges {
		chunk := o.opts.Limiter.WrapReader(ctx, io.NewSectionReader(f, r.From, r.Len()))

		last, err = o.client.UploadChunk(ctx, session, chunk, r.From, r.To, size)
		if err != nil {
			return resultOf(nil, err)
		}
	}

	return resultOf(last, nil)
}

// resultOf classifies a client response.
func resultOf(resp *graph.Response, err error) Result {
	if err == nil {
		res := Result{Outcome: OutcomeSuccess}
		if resp != nil {
			res.StatusCode = resp.StatusCode
			res.Body = resp.Body
		}

		return res
	}

	res := Result{Outcome: OutcomeOtherFailure, Err: err}

	var se *graph.StatusError
	if errors.As(err, &se) {
		res.StatusCode = se.StatusCode
		res.Body = []byte(se.Body)

		if errors.Is(err, graph.ErrUnauthorized) || errors.Is(err, graph.ErrForbidden) {
			res.Outcome = OutcomeAuthFailure
		}
	}

	return res
}

// openSource opens path, retrying while the file is held by its writer.
// Missing files and directories are not retried.
func (o *Orchestrator) openSource(ctx context.Context, path string) (*os.File, error) {
	var f *os.File

	attempts, err := o.opts.OpenBackoff.Retry(ctx, o.sleepFunc, func() error {
		info, statErr := os.Stat(path)
		if statErr != nil {
			return statErr
		}

		if info.IsDir() {
			return fmt.Errorf("%s is a directory", path)
		}

		var openErr error

		f, openErr = o.openFunc(path)

		return openErr
	}, isTransientOpenError)
	if err != nil {
		return nil, fmt.Errorf("upload: opening %s after %d attempts: %w", path, attempts, err)
	}

	if attempts > 1 {
		o.logger.Debug("source opened after retries", slog.String("path", path), slog.Int("attempts", attempts))
	}

	return f, nil
}

func isTransientOpenError(err error) bool {
	var pe *os.PathError

	return errors.As(err, &pe) && !errors.Is(err, os.ErrNotExist)
}

// deleteSource removes an uploaded file. Failures are logged only.
func (o *Orchestrator) deleteSource(ctx context.Context, logger *slog.Logger, path string) {
	attempts, err := o.opts.DeleteBackoff.Retry(ctx, o.sleepFunc, func() error {
		return o.removeFunc(path)
	}, func(err error) bool {
		return !errors.Is(err, os.ErrNotExist)
	})

	switch {
	case err == nil:
		logger.Info("deleted source after upload")
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("source already gone")
	default:
		logger.Warn("failed to delete source after upload",
			slog.Int("attempts", attempts),
			slog.String("error", err.Error()),
		)
	}
}

// detectContentType maps the extension to a MIME type, falling back to
// sniffing the first bytes of f. f is rewound afterwards.
func detectContentType(f io.ReadSeeker, name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}

	m, err := mimetype.DetectReader(f)
	if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil || err != nil {
		return "application/octet-stream"
	}

	return m.String()
}
