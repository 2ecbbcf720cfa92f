package common

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/time/rate"
)

// chunkSize: size of each read/write chunk
const chunkSize = 1024 * 1024 // 1 MiB

var bufPool = sync.Pool{
	New: func() interface{} { return make([]byte, chunkSize) },
}

// Throttle limits the byte rate of background writers such as checkpoints.
// A nil Throttle never waits.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle returns a Throttle admitting bytesPerSec bytes per second, or
// nil if bytesPerSec is not positive.
func NewThrottle(bytesPerSec int64) *Throttle {
	if bytesPerSec <= 0 {
		return nil
	}
	burst := int(bytesPerSec)
	if burst > chunkSize {
		burst = chunkSize
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst)}
}

// WaitN blocks until n bytes may be written.
func (t *Throttle) WaitN(ctx context.Context, n int) error {
	if t == nil {
		return nil
	}
	for n > 0 {
		step := min(n, t.limiter.Burst())
		if err := t.limiter.WaitN(ctx, step); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}
		n -= step
	}
	return nil
}

// CopyThrottled copies srcPath to dstPath at no more than the throttle's rate
// and syncs the destination. It returns the number of bytes copied.
func CopyThrottled(ctx context.Context, srcPath, dstPath string, throttle *Throttle) (int64, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open src: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return 0, fmt.Errorf("open dst: %w", err)
	}
	defer dst.Close()

	buf := bufPool.Get().([]byte)
	defer bufPool.Put(buf)

	var readOff int64
	for {
		n, rerr := src.ReadAt(buf[:chunkSize], readOff)
		if n > 0 {
			// throttle: wait until enough tokens available for n bytes
			if err := throttle.WaitN(ctx, n); err != nil {
				return readOff, err
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return readOff, fmt.Errorf("write error: %w", werr)
			}
			readOff += int64(n)
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return readOff, fmt.Errorf("read error: %w", rerr)
		}
	}

	if err := dst.Sync(); err != nil {
		return readOff, fmt.Errorf("sync error: %w", err)
	}
	return readOff, nil
}
