// Package download implements chunk-parallel file downloading: fixed-size
// chunking, bounded fan-out, an ordered write cursor and a per-chunk retry
// budget that treats a DC migration as free and a generic failure as a
// linear-backoff retry.
package download

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"tgspider/internal/domain"
	"tgspider/internal/pkg/logtag"
	"tgspider/internal/pkg/retry"
)

const minAccelerateSize = 1 * 1024 * 1024
const retryBaseDelay = time.Second

// Options configures one Downloader; all fields come from domain.ConfigView
// and are clamped by New.
type Options struct {
	AccelerationEnabled bool
	Threads             int
	ChunkSize           int64
	MaxRetries          int
}

// Downloader fetches one media item's bytes into a domain.FileSink,
// choosing between the fallback whole-file path and the accelerated
// chunk-parallel path.
type Downloader struct {
	facade domain.BlobFacade
	opts   Options
}

func New(facade domain.BlobFacade, opts Options) *Downloader {
	if opts.Threads <= 0 {
		opts.Threads = 5
	}
	if opts.Threads > 8 {
		opts.Threads = 8
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 512 * 1024
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	return &Downloader{facade: facade, opts: opts}
}

// Progress is invoked from an arbitrary goroutine with monotonically
// increasing bytesDownloaded; callers that need ordering must do their own
// synchronization.
type Progress func(bytesDownloaded, totalBytes int64)

// Download writes media's bytes to dest via sink. size is the size already
// known from the message (0 means unknown, which forces the fallback
// path).
func (d *Downloader) Download(ctx context.Context, media domain.Media, size int64, sink domain.FileSink, destPath string, progress Progress) error {
	if err := sink.EnsureDir(parentDir(destPath)); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}

	if !d.opts.AccelerationEnabled || size < minAccelerateSize {
		return d.downloadFallback(ctx, media, size, sink, destPath, progress)
	}
	return d.downloadAccelerated(ctx, media, size, sink, destPath, progress)
}

func parentDir(destPath string) string {
	i := lastSlash(destPath)
	if i < 0 {
		return "."
	}
	return destPath[:i]
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// downloadFallback performs a single whole-file GetFile call, used for
// small files or when acceleration is disabled.
func (d *Downloader) downloadFallback(ctx context.Context, media domain.Media, size int64, sink domain.FileSink, destPath string, progress Progress) error {
	w, err := sink.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}

	data, err := d.facade.GetFile(ctx, media)
	if err != nil {
		w.Abort()
		return fmt.Errorf("fallback download: %w", err)
	}

	if err := w.WriteAt(0, data); err != nil {
		w.Abort()
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	if progress != nil {
		progress(int64(len(data)), size)
	}
	return w.Close()
}

// downloadAccelerated fetches media in fixed-size chunks across a bounded
// pool of workers, reassembling them through an ordered write cursor. The
// semaphore bounds chunk fetches that have been launched and not yet
// finished; a chunk that finishes ahead of the cursor releases its permit
// and waits in the cursor's buffer, which the semaphore does not count.
func (d *Downloader) downloadAccelerated(ctx context.Context, media domain.Media, size int64, sink domain.FileSink, destPath string, progress Progress) error {
	w, err := sink.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}

	chunkSize := d.opts.ChunkSize
	numChunks := int((size + chunkSize - 1) / chunkSize)

	cursor := newWriteCursor(w, size)
	sem := semaphore.NewWeighted(int64(2 * d.opts.Threads))

	var senderMu sync.Mutex
	var active domain.Sender // nil: use the facade's default single-shot per-chunk path

	var downloaded int64
	var progMu sync.Mutex
	report := func(n int64) {
		if progress == nil {
			return
		}
		progMu.Lock()
		downloaded += n
		total := downloaded
		progMu.Unlock()
		progress(total, size)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Threads)

	for i := 0; i < numChunks; i++ {
		i := i
		offset := int64(i) * chunkSize
		limit := chunkSize
		if offset+limit > size {
			limit = size - offset
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}

		g.Go(func() error {
			defer sem.Release(1)

			data, err := d.fetchChunk(gctx, media, offset, limit, &senderMu, &active)
			if err != nil {
				return fmt.Errorf("chunk %d [%d:%d]: %w", i, offset, offset+limit, err)
			}
			if err := cursor.Write(offset, data); err != nil {
				return fmt.Errorf("write chunk %d: %w", i, err)
			}
			report(int64(len(data)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		w.Abort()
		return err
	}
	if err := cursor.Flush(); err != nil {
		w.Abort()
		return err
	}
	return w.Close()
}

// fetchChunk retries a single chunk with a two-state policy: a DC
// migration swaps the shared sender and retries immediately at no cost to
// the retry budget; any other failure consumes one retry attempt under a
// linear 1000ms*attempt backoff.
func (d *Downloader) fetchChunk(ctx context.Context, media domain.Media, offset, limit int64, senderMu *sync.Mutex, active *domain.Sender) ([]byte, error) {
	var result []byte
	op := func() error {
		senderMu.Lock()
		sender := *active
		senderMu.Unlock()

		var data []byte
		var err error
		if sender != nil {
			data, err = sender.GetFile(ctx, media, offset, limit)
		} else {
			data, err = d.facade.GetFile(ctx, media)
			if err == nil && int64(len(data)) > offset {
				hi := offset + limit
				if hi > int64(len(data)) {
					hi = int64(len(data))
				}
				data = data[offset:hi]
			}
		}

		var migrate *domain.FileMigrateError
		if err != nil && errors.As(err, &migrate) {
			newSender, serr := d.facade.SenderFor(ctx, migrate.NewDC)
			if serr != nil {
				return serr
			}
			senderMu.Lock()
			*active = newSender
			senderMu.Unlock()
			log.Printf("%s chunk migrated to dc %d, retrying at no cost", logtag.Info, migrate.NewDC)
			data, err = newSender.GetFile(ctx, media, offset, limit)
		}
		if err != nil {
			return err
		}
		result = data
		return nil
	}

	err := retry.WithRetry(ctx, "chunk fetch", op, d.opts.MaxRetries, retry.Linear(retryBaseDelay))
	return result, err
}
