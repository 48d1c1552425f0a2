package download

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrderedWriter struct {
	buf     bytes.Buffer
	writes  []int64
	aborted bool
}

func (f *fakeOrderedWriter) WriteAt(offset int64, data []byte) error {
	if offset != int64(f.buf.Len()) {
		return errors.New("out of order write reached sink")
	}
	f.writes = append(f.writes, offset)
	f.buf.Write(data)
	return nil
}

func (f *fakeOrderedWriter) Close() error { return nil }
func (f *fakeOrderedWriter) Abort()       { f.aborted = true }

func TestWriteCursorReordersOutOfOrderChunks(t *testing.T) {
	w := &fakeOrderedWriter{}
	c := newWriteCursor(w, 9)

	require.NoError(t, c.Write(6, []byte("ghi")))
	require.NoError(t, c.Write(0, []byte("abc")))
	require.NoError(t, c.Write(3, []byte("def")))

	require.NoError(t, c.Flush())
	assert.Equal(t, "abcdefghi", w.buf.String())
}

func TestWriteCursorFlushDetectsHole(t *testing.T) {
	w := &fakeOrderedWriter{}
	c := newWriteCursor(w, 9)

	require.NoError(t, c.Write(0, []byte("abc")))
	require.NoError(t, c.Write(6, []byte("ghi")))

	assert.Error(t, c.Flush())
}
