// Package tarpit implements the slow-drip response used against abusive
// clients: small chunks emitted on an interval to hold the attacker's
// connection open without tying up anything on our side.
package tarpit

import (
	"context"
	"io"
	"time"
)

// Flusher matches http.ResponseWriter implementations that can flush.
type Flusher interface {
	Flush()
}

// Dripper writes filler chunks on a fixed interval for a bounded duration.
type Dripper struct {
	duration time.Duration
	interval time.Duration
	chunk    []byte
}

// New builds a Dripper emitting for duration, one chunk per interval.
func New(duration, interval time.Duration) *Dripper {
	return &Dripper{
		duration: duration,
		interval: interval,
		chunk:    []byte(".\n"),
	}
}

// Serve drips chunks into w until the duration elapses, the context is
// cancelled, or a write fails. Cancellation is observed between ticks, never
// ignored: a disconnected client frees the goroutine within one interval.
func (d *Dripper) Serve(ctx context.Context, w io.Writer) error {
	deadline := time.NewTimer(d.duration)
	defer deadline.Stop()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	// First chunk goes out immediately so slow-loris style clients commit
	// to reading the response.
	if err := d.write(w); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
			if err := d.write(w); err != nil {
				return err
			}
		}
	}
}

func (d *Dripper) write(w io.Writer) error {
	if _, err := w.Write(d.chunk); err != nil {
		return err
	}
	if f, ok := w.(Flusher); ok {
		f.Flush()
	}
	return nil
}
