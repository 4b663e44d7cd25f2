package upload

import (
	"context"
	"io"
	"log/slog"
	"math"

	"github.com/dustin/go-humanize"
	"golang.org/x/time/rate"
)

// burstMultiplier sets the token bucket burst relative to the per-second
// rate, so a short stall can be made up on the next read.
const burstMultiplier = 2

// BandwidthLimiter caps aggregate upload throughput. One limiter is shared
// by every worker. A nil *BandwidthLimiter is unlimited.
type BandwidthLimiter struct {
	limiter *rate.Limiter
}

// NewBandwidthLimiter returns a limiter for bytesPerSec, or nil when
// bytesPerSec is zero or negative.
func NewBandwidthLimiter(bytesPerSec int64, logger *slog.Logger) *BandwidthLimiter {
	if bytesPerSec <= 0 {
		return nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	// Clamped so absurd limits cannot overflow the burst.
	burst := int(min(bytesPerSec, math.MaxInt/burstMultiplier)) * burstMultiplier

	logger.Info("bandwidth limit enabled",
		slog.String("rate", humanize.IBytes(uint64(bytesPerSec))+"/s"),
		slog.Int("burst", burst),
	)

	return &BandwidthLimiter{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// WrapReader returns a rate-limited r. A nil limiter returns r unchanged.
func (bl *BandwidthLimiter) WrapReader(ctx context.Context, r io.Reader) io.Reader {
	if bl == nil {
		return r
	}

	return &rateLimitedReader{r: r, limiter: bl.limiter, ctx: ctx}
}

// rateLimitedReader blocks after each read until the limiter admits the
// bytes consumed.
type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if waitErr := waitN(r.ctx, r.limiter, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

// waitN splits n into burst-sized requests; rate.Limiter.WaitN rejects
// requests larger than the burst.
func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	burst := limiter.Burst()

	for n > 0 {
		take := min(n, burst)

		if err := limiter.WaitN(ctx, take); err != nil {
			return err
		}

		n -= take
	}

	return nil
}
