package exec

import (
	"bytes"
	"sync"
)

// boundedBuffer keeps the first limit bytes written to it and discards the
// rest while still reporting full writes, so the child never blocks on a
// full pipe.
type boundedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if room := b.limit - b.buf.Len(); room < len(p) {
		b.truncated = true

		if room > 0 {
			b.buf.Write(p[:room])
		}

		return len(p), nil
	}

	b.buf.Write(p)

	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func (b *boundedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.truncated
}
