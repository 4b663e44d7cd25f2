package upload

import (
	"context"
	"log/slog"
	"time"
)

// DefaultRestartDelay is the pause before a failed consumer loop restarts.
const DefaultRestartDelay = 15 * time.Second

// Supervise runs the consumer loop and restarts it after restartDelay
// whenever it stops with an error. It returns when ctx is canceled or the
// loop ends cleanly.
func (o *Orchestrator) Supervise(ctx context.Context, q Dequeuer, restartDelay time.Duration) error {
	if restartDelay <= 0 {
		restartDelay = DefaultRestartDelay
	}

	for restarts := 0; ; restarts++ {
		err := o.Run(ctx, q)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		o.logger.Error("upload loop stopped, restarting",
			slog.String("error", err.Error()),
			slog.Duration("delay", restartDelay),
			slog.Int("restarts", restarts+1),
		)

		if sleepErr := o.sleepFunc(ctx, restartDelay); sleepErr != nil {
			return nil
		}
	}
}
