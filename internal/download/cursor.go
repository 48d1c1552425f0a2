package download

import (
	"fmt"
	"sync"

	"tgspider/internal/domain"
)

// writeCursor reassembles out-of-order chunk completions into the strictly
// increasing offsets domain.OrderedWriter requires. Chunks that complete
// ahead of the cursor are held in an offset-keyed buffer until the cursor
// reaches them. The buffer has no size limit: while an earlier chunk is
// still outstanding, every later chunk that completes is held here.
type writeCursor struct {
	w      domain.OrderedWriter
	total  int64
	mu     sync.Mutex
	at     int64
	buffer map[int64][]byte
}

func newWriteCursor(w domain.OrderedWriter, total int64) *writeCursor {
	return &writeCursor{w: w, total: total, buffer: make(map[int64][]byte)}
}

// Write accepts a chunk's bytes at its offset, buffering it if earlier
// offsets have not yet been flushed, and draining the buffer as far
// forward as contiguous data allows.
func (c *writeCursor) Write(offset int64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if offset != c.at {
		c.buffer[offset] = data
		return nil
	}

	if err := c.w.WriteAt(c.at, data); err != nil {
		return err
	}
	c.at += int64(len(data))

	for {
		next, ok := c.buffer[c.at]
		if !ok {
			break
		}
		delete(c.buffer, c.at)
		if err := c.w.WriteAt(c.at, next); err != nil {
			return err
		}
		c.at += int64(len(next))
	}
	return nil
}

// Flush reports an error if any buffered chunk never reached the cursor,
// which would mean a hole was left in the destination file.
func (c *writeCursor) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.at != c.total {
		return fmt.Errorf("incomplete write: cursor at %d of %d bytes, %d chunks never reached it", c.at, c.total, len(c.buffer))
	}
	return nil
}
