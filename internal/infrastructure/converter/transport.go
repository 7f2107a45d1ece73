package converter

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

var (
	errTransferStalled = errors.New("no transfer progress within the quiet window")
	errTransferCeiling = errors.New("transfer exceeded the hard time ceiling")
)

// progressTracker converts a byte stream position into 0-100 progress
// callbacks and records when progress last advanced for stall detection.
type progressTracker struct {
	total    int64
	report   func(percent int)
	interval time.Duration

	mu          sync.Mutex
	transferred int64
	lastPercent int
	lastAdvance time.Time
}

func newProgressTracker(total int64, report func(percent int)) *progressTracker {
	return &progressTracker{
		total:       total,
		report:      report,
		lastAdvance: time.Now(),
	}
}

func (t *progressTracker) add(n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	t.transferred += int64(n)
	percent := 100
	if t.total > 0 {
		percent = int(t.transferred * 100 / t.total)
		if percent > 100 {
			percent = 100
		}
	}
	advanced := percent > t.lastPercent
	if advanced {
		t.lastPercent = percent
		t.lastAdvance = time.Now()
	}
	report := t.report
	t.mu.Unlock()

	if advanced && report != nil {
		report(percent)
	}
}

func (t *progressTracker) status() (percent int, lastAdvance time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastPercent, t.lastAdvance
}

// trackedReader feeds the tracker and honors context cancellation so a
// stall-aborted transfer stops pulling bytes.
type trackedReader struct {
	ctx     context.Context
	src     io.Reader
	tracker *progressTracker
}

func (r *trackedReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, context.Cause(r.ctx)
	}
	n, err := r.src.Read(p)
	r.tracker.add(n)
	if err != nil && r.ctx.Err() != nil {
		return n, context.Cause(r.ctx)
	}
	return n, err
}

// watchTransfer cancels the returned context when progress stops for
// quietWindow before reaching 100%, or when the transfer runs longer
// than hardCeiling regardless of progress.
func watchTransfer(ctx context.Context, tracker *progressTracker, quietWindow, hardCeiling time.Duration) (context.Context, context.CancelFunc) {
	watchCtx, cancel := context.WithCancelCause(ctx)
	started := time.Now()

	tick := quietWindow / 4
	if tick <= 0 {
		tick = 250 * time.Millisecond
	}

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				percent, lastAdvance := tracker.status()
				if hardCeiling > 0 && time.Since(started) > hardCeiling {
					cancel(errTransferCeiling)
					return
				}
				if percent < 100 && quietWindow > 0 && time.Since(lastAdvance) > quietWindow {
					cancel(errTransferStalled)
					return
				}
			}
		}
	}()

	return watchCtx, func() { cancel(nil) }
}
