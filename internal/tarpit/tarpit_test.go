package tarpit

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingWriter struct {
	writes  atomic.Int32
	flushes atomic.Int32
	failAt  int32
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n := w.writes.Add(1)
	if w.failAt > 0 && n >= w.failAt {
		return 0, errors.New("broken pipe")
	}
	return len(p), nil
}

func (w *countingWriter) Flush() { w.flushes.Add(1) }

func TestServeDripsUntilDeadline(t *testing.T) {
	d := New(100*time.Millisecond, 20*time.Millisecond)
	w := &countingWriter{}

	start := time.Now()
	err := d.Serve(context.Background(), w)
	elapsed := time.Since(start)

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	// Immediate chunk plus roughly one per tick.
	assert.GreaterOrEqual(t, w.writes.Load(), int32(3))
	assert.Equal(t, w.writes.Load(), w.flushes.Load(), "every chunk must be flushed")
}

func TestServeStopsOnCancel(t *testing.T) {
	d := New(10*time.Second, 20*time.Millisecond)
	w := &countingWriter{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := d.Serve(ctx, w)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, elapsed, time.Second, "cancellation must end the drip promptly, not after the full duration")
}

func TestServeStopsOnWriteFailure(t *testing.T) {
	d := New(10*time.Second, 10*time.Millisecond)
	w := &countingWriter{failAt: 3}

	start := time.Now()
	err := d.Serve(context.Background(), w)
	elapsed := time.Since(start)

	assert.Error(t, err)
	assert.Less(t, elapsed, time.Second, "a dead client must free the dripper")
	assert.Equal(t, int32(3), w.writes.Load())
}
