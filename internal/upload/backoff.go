package upload

import (
	"context"
	"time"
)

// Backoff is a fixed-delay retry policy.
type Backoff struct {
	MaxAttempts int
	Delay       time.Duration
}

// Default policies for opening a just-written file that may still be locked
// by its writer, and for deleting it after upload.
var (
	DefaultOpenBackoff   = Backoff{MaxAttempts: 50, Delay: 200 * time.Millisecond}
	DefaultDeleteBackoff = Backoff{MaxAttempts: 20, Delay: 200 * time.Millisecond}
)

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

// Retry calls op until it returns nil, returns an error retryable rejects,
// or MaxAttempts calls have failed. It returns the number of calls made and
// the last error.
func (b Backoff) Retry(
	ctx context.Context, sleep sleepFunc, op func() error, retryable func(error) bool,
) (int, error) {
	attempts := max(b.MaxAttempts, 1)

	var err error

	for i := 1; i <= attempts; i++ {
		if err = op(); err == nil {
			return i, nil
		}

		if !retryable(err) || i == attempts {
			return i, err
		}

		if sleepErr := sleep(ctx, b.Delay); sleepErr != nil {
			return i, err
		}
	}

	return attempts, err
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
