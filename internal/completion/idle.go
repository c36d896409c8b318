package completion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// ErrStalled is reported when a response body sends nothing for longer than
// the per-attempt timeout
var ErrStalled = errors.New("completion stream stalled")

// idleReader aborts the request when a single Read waits longer than timeout.
// The clock only runs while a Read is blocked, so slow consumers and long
// streams that keep producing data are never cut off.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	cancel  context.CancelFunc
	timer   *time.Timer
	fired   atomic.Bool
}

func newIdleReader(r io.Reader, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout, cancel: cancel}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.fired.Store(true)
		ir.cancel()
	})
	ir.timer.Stop()
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	if ir.fired.Load() {
		return 0, ir.stalled()
	}

	ir.timer.Reset(ir.timeout)
	n, err := ir.r.Read(p)
	ir.timer.Stop()

	if err != nil && ir.fired.Load() {
		return n, ir.stalled()
	}
	return n, err
}

func (ir *idleReader) stalled() error {
	return fmt.Errorf("%w: no data for %s", ErrStalled, ir.timeout)
}

// stop disarms the timer
func (ir *idleReader) stop() {
	ir.timer.Stop()
}
