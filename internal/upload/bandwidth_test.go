package upload

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBandwidthLimiter_ZeroIsUnlimited(t *testing.T) {
	assert.Nil(t, NewBandwidthLimiter(0, nil))
	assert.Nil(t, NewBandwidthLimiter(-5, nil))
}

func TestNewBandwidthLimiter_HugeLimitDoesNotOverflow(t *testing.T) {
	bl := NewBandwidthLimiter(math.MaxInt64, slog.Default())
	require.NotNil(t, bl)
	assert.Positive(t, bl.limiter.Burst())
	assert.Equal(t, (math.MaxInt/burstMultiplier)*burstMultiplier, bl.limiter.Burst())
}

func TestBandwidthLimiter_NilPassthrough(t *testing.T) {
	var bl *BandwidthLimiter

	r := strings.NewReader("data")
	assert.Same(t, r, bl.WrapReader(context.Background(), r))
}

func TestBandwidthLimiter_ReadsEverything(t *testing.T) {
	bl := NewBandwidthLimiter(1<<20, nil)
	require.NotNil(t, bl)

	data := bytes.Repeat([]byte("x"), 64<<10)

	got, err := io.ReadAll(bl.WrapReader(context.Background(), bytes.NewReader(data)))
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestBandwidthLimiter_Throttles(t *testing.T) {
	// 1 KiB/s with a 2 KiB burst: reading 3 KiB needs about a second.
	bl := NewBandwidthLimiter(1024, nil)
	data := bytes.Repeat([]byte("y"), 3*1024)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := io.ReadAll(bl.WrapReader(ctx, bytes.NewReader(data)))
	assert.Error(t, err, "read should not finish inside the deadline")
}

func TestWaitN_SplitsOverBurst(t *testing.T) {
	bl := NewBandwidthLimiter(1<<20, nil)

	// 3 MiB exceeds the 2 MiB burst; waitN must split rather than fail.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, waitN(ctx, bl.limiter, 3<<20))
}
