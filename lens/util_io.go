package lens

import (
	"sync"
)

// headBuffer retains the first maxBytes written to it and counts the total. Writes always
// report full success so it can back an io.TeeReader.
type headBuffer struct {
	mu       sync.Mutex
	buf      []byte
	maxBytes int
	total    int64
}

func newHeadBuffer(maxBytes int) *headBuffer {
	return &headBuffer{maxBytes: maxBytes}
}

func (hb *headBuffer) Write(p []byte) (int, error) {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	hb.total += int64(len(p))
	if remaining := hb.maxBytes - len(hb.buf); remaining > 0 {
		hb.buf = append(hb.buf, p[:min(remaining, len(p))]...)
	}
	return len(p), nil
}

// Bytes returns a copy of the retained head.
func (hb *headBuffer) Bytes() []byte {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	out := make([]byte, len(hb.buf))
	copy(out, hb.buf)
	return out
}

// Total returns the count of all bytes written, including those not retained.
func (hb *headBuffer) Total() int64 {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	return hb.total
}

// Truncated reports if writes exceeded the retained size.
func (hb *headBuffer) Truncated() bool {
	hb.mu.Lock()
	defer hb.mu.Unlock()

	return hb.total > int64(len(hb.buf))
}
