package common

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNilThrottleNeverWaits(t *testing.T) {
	require.Nil(t, NewThrottle(0))
	var th *Throttle
	require.NoError(t, th.WaitN(context.Background(), 1<<30))
}

func TestThrottleHonoursContext(t *testing.T) {
	th := NewThrottle(1024)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	// far more than the rate allows before the deadline
	require.Error(t, th.WaitN(ctx, 1<<20))
}

func TestCopyThrottled(t *testing.T) {
	dir := t.TempDir()
	src, dst := filepath.Join(dir, "src"), filepath.Join(dir, "dst")
	data := bytes.Repeat([]byte("stratadb"), 300_000)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	n, err := CopyThrottled(context.Background(), src, dst, NewThrottle(64<<20))
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), n)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	require.Equal(t, data, got)

	// the destination must not exist yet
	_, err = CopyThrottled(context.Background(), src, dst, nil)
	require.Error(t, err)
}
