package proc

import (
	"strings"
	"sync"
)

// DefaultTailBytes bounds how much combined child output is retained for
// error reporting.
const DefaultTailBytes = 64 * 1024

// Ring is a bounded, concurrency-safe byte buffer that keeps the most recent
// writes. It is handed to a child process as stdout/stderr so that a crash
// report can include the tail of the output without retaining all of it.
type Ring struct {
	mu   sync.Mutex
	max  int
	buf  []byte
	lost int64
}

// NewRing returns a ring keeping at most max bytes. A non-positive max falls
// back to DefaultTailBytes.
func NewRing(max int) *Ring {
	if max <= 0 {
		max = DefaultTailBytes
	}
	return &Ring{max: max}
}

// Write implements io.Writer. It never fails; oldest bytes are evicted once
// the buffer exceeds its bound.
func (r *Ring) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(p) >= r.max {
		r.lost += int64(len(r.buf)) + int64(len(p)-r.max)
		r.buf = append(r.buf[:0], p[len(p)-r.max:]...)
		return len(p), nil
	}
	r.buf = append(r.buf, p...)
	if over := len(r.buf) - r.max; over > 0 {
		r.lost += int64(over)
		r.buf = append(r.buf[:0], r.buf[over:]...)
	}
	return len(p), nil
}

// Tail returns the retained output as a string, trimmed of trailing
// whitespace.
func (r *Ring) Tail() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.TrimRight(string(r.buf), "\r\n\t ")
}

// Truncated reports whether any bytes were evicted.
func (r *Ring) Truncated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lost > 0
}
