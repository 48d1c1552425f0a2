package download

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgspider/internal/domain"
)

// fakeFacade implements domain.BlobFacade, exercising only the GetFile and
// SenderFor paths the downloader calls.
type fakeFacade struct {
	mu            sync.Mutex
	getFileCalls  int
	getFileFunc   func(call int) ([]byte, error)
	senderForFunc func(dcID int) (domain.Sender, error)
}

func (f *fakeFacade) IterDialogs(ctx context.Context) (<-chan domain.Channel, <-chan error) {
	panic("not used")
}
func (f *fakeFacade) GetChannels(ctx context.Context, ids []string) ([]domain.Channel, error) {
	panic("not used")
}
func (f *fakeFacade) GetForumTopics(ctx context.Context, channel domain.Channel) ([]domain.Topic, error) {
	panic("not used")
}
func (f *fakeFacade) GetHistory(ctx context.Context, channel domain.Channel, offsetID, addOffset, limit int) ([]domain.Message, error) {
	panic("not used")
}
func (f *fakeFacade) GetReplies(ctx context.Context, channel domain.Channel, msgID int, limit int) ([]domain.Message, error) {
	panic("not used")
}

func (f *fakeFacade) GetFile(ctx context.Context, media domain.Media) ([]byte, error) {
	f.mu.Lock()
	call := f.getFileCalls
	f.getFileCalls++
	f.mu.Unlock()
	return f.getFileFunc(call)
}

func (f *fakeFacade) SenderFor(ctx context.Context, dcID int) (domain.Sender, error) {
	return f.senderForFunc(dcID)
}

// fakeSender implements domain.Sender with a per-call hook, used both for
// the post-migration sender and for counting concurrent in-flight calls.
type fakeSender struct {
	mu    sync.Mutex
	calls int
	fn    func(call int, offset, limit int64) ([]byte, error)
}

func (s *fakeSender) GetFile(ctx context.Context, media domain.Media, offset, limit int64) ([]byte, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	s.mu.Unlock()
	return s.fn(call, offset, limit)
}

func repeat(b byte, n int64) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestDownloadBelowThresholdUsesFallback(t *testing.T) {
	facade := &fakeFacade{
		getFileFunc: func(call int) ([]byte, error) {
			return repeat('x', minAccelerateSize-1), nil
		},
	}
	d := New(facade, Options{AccelerationEnabled: true, Threads: 4, ChunkSize: 64 * 1024, MaxRetries: 3})
	sink := &fakeFileSink{}

	err := d.Download(context.Background(), domain.Media{}, minAccelerateSize-1, sink, "out/small.bin", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, facade.getFileCalls)
	assert.Len(t, sink.created, 1)
	assert.Equal(t, minAccelerateSize-1, sink.created[0].buf.Len())
}

func TestDownloadAtThresholdUsesAcceleratedPath(t *testing.T) {
	size := int64(minAccelerateSize)
	chunkSize := int64(256 * 1024)
	facade := &fakeFacade{
		getFileFunc: func(call int) ([]byte, error) {
			return repeat('y', size), nil
		},
	}
	d := New(facade, Options{AccelerationEnabled: true, Threads: 4, ChunkSize: chunkSize, MaxRetries: 3})
	sink := &fakeFileSink{}

	err := d.Download(context.Background(), domain.Media{}, size, sink, "out/big.bin", nil)
	require.NoError(t, err)

	wantChunks := int((size + chunkSize - 1) / chunkSize)
	assert.Equal(t, wantChunks, facade.getFileCalls)
	require.Len(t, sink.created, 1)
	assert.Equal(t, int(size), sink.created[0].buf.Len())
}

func TestDownloadMigratesSenderMidDownloadAtNoRetryCost(t *testing.T) {
	chunkSize := int64(10)
	size := 2 * chunkSize

	newSender := &fakeSender{
		fn: func(call int, offset, limit int64) ([]byte, error) {
			return repeat('m', limit), nil
		},
	}
	facade := &fakeFacade{
		getFileFunc: func(call int) ([]byte, error) {
			return nil, &domain.FileMigrateError{NewDC: 2}
		},
		senderForFunc: func(dcID int) (domain.Sender, error) {
			assert.Equal(t, 2, dcID)
			return newSender, nil
		},
	}
	d := New(facade, Options{AccelerationEnabled: true, Threads: 1, ChunkSize: chunkSize, MaxRetries: 3})
	sink := &fakeFileSink{}

	err := d.downloadAccelerated(context.Background(), domain.Media{}, size, sink, "out/migrated.bin", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, facade.getFileCalls, "only the first chunk's first attempt should hit the pre-migration path")
	assert.Equal(t, 2, newSender.calls, "both chunks should complete via the migrated sender")
	require.Len(t, sink.created, 1)
	assert.Equal(t, int(size), sink.created[0].buf.Len())
}

func TestDownloadSucceedsOnExactlyTheLastAllowedAttempt(t *testing.T) {
	chunkSize := int64(32)
	maxRetries := 3

	facade := &fakeFacade{
		getFileFunc: func(call int) ([]byte, error) {
			if call < maxRetries-1 {
				return nil, errors.New("transient")
			}
			return repeat('z', chunkSize), nil
		},
	}
	d := New(facade, Options{AccelerationEnabled: true, Threads: 1, ChunkSize: chunkSize, MaxRetries: maxRetries})
	sink := &fakeFileSink{}

	err := d.downloadAccelerated(context.Background(), domain.Media{}, chunkSize, sink, "out/retried.bin", nil)
	require.NoError(t, err)
	assert.Equal(t, maxRetries, facade.getFileCalls)
}

func TestDownloadFailsAfterExhaustingRetryBudget(t *testing.T) {
	chunkSize := int64(32)
	maxRetries := 3

	facade := &fakeFacade{
		getFileFunc: func(call int) ([]byte, error) {
			return nil, errors.New("still failing")
		},
	}
	d := New(facade, Options{AccelerationEnabled: true, Threads: 1, ChunkSize: chunkSize, MaxRetries: maxRetries})
	sink := &fakeFileSink{}

	err := d.downloadAccelerated(context.Background(), domain.Media{}, chunkSize, sink, "out/failed.bin", nil)
	require.Error(t, err)
	assert.Equal(t, maxRetries, facade.getFileCalls)
	require.Len(t, sink.created, 1)
	assert.True(t, sink.created[0].aborted)
}

func TestDownloadBoundsConcurrencyToBackPressureCeiling(t *testing.T) {
	threads := 2
	chunkSize := int64(16)
	numChunks := 20
	size := int64(numChunks) * chunkSize

	var mu sync.Mutex
	var inFlight int32
	var peak int32

	facade := &fakeFacade{
		getFileFunc: func(call int) ([]byte, error) {
			n := atomic.AddInt32(&inFlight, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return repeat('p', chunkSize), nil
		},
	}
	d := New(facade, Options{AccelerationEnabled: true, Threads: threads, ChunkSize: chunkSize, MaxRetries: 1})
	sink := &fakeFileSink{}

	err := d.downloadAccelerated(context.Background(), domain.Media{}, size, sink, "out/bounded.bin", nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, int(peak), 2*threads)
}

// fakeFileSink implements domain.FileSink, recording every created writer so
// tests can inspect what was written.
type fakeFileSink struct {
	created []*fakeOrderedWriter
}

func (f *fakeFileSink) EnsureDir(path string) error {
	return nil
}

func (f *fakeFileSink) Create(destPath string) (domain.OrderedWriter, error) {
	w := &fakeOrderedWriter{}
	f.created = append(f.created, w)
	return w, nil
}
