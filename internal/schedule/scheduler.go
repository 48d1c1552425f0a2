// Package schedule implements a steady-state loop that ticks ingestion on
// a timer, dispatches download tasks to a bounded worker pool, and
// advances each channel's checkpoint message by message, never past a
// message whose download failed.
package schedule

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tgspider/internal/domain"
	"tgspider/internal/download"
	"tgspider/internal/ingest"
	"tgspider/internal/pathpolicy"
	"tgspider/internal/pkg/logtag"
)

const ingestionTick = 10 * time.Second

// Downloader is the subset of download.Downloader the scheduler drives.
type Downloader interface {
	Download(ctx context.Context, media domain.Media, size int64, sink domain.FileSink, destPath string, progress download.Progress) error
}

type channelRuntime struct {
	channel          domain.Channel
	lastDownloadTime time.Time
	pending          []domain.Task
	downloading      bool
}

// Scheduler fans tasks out across channels, keeping exactly one message
// in flight per channel and prioritizing whichever channel has gone
// longest without a completed download.
type Scheduler struct {
	config     domain.ConfigView
	ingestor   *ingest.Ingestor
	downloader Downloader
	sink       domain.FileSink
	progress   domain.ProgressSink

	mu       sync.Mutex
	cond     *sync.Cond
	channels map[string]*channelRuntime
	running  bool
}

func New(config domain.ConfigView, ingestor *ingest.Ingestor, downloader Downloader, sink domain.FileSink, progress domain.ProgressSink) *Scheduler {
	s := &Scheduler{
		config:     config,
		ingestor:   ingestor,
		downloader: downloader,
		sink:       sink,
		progress:   progress,
		channels:   make(map[string]*channelRuntime),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Run drives the scheduler until ctx is cancelled or Stop is called.
// Cancellation is cooperative: in-flight downloads are allowed to finish
// (or fail) normally; only the next tick is suppressed.
func (s *Scheduler) Run(ctx context.Context, channels []domain.Channel) error {
	s.mu.Lock()
	s.running = true
	for _, ch := range channels {
		s.channels[ch.ID] = &channelRuntime{channel: ch}
	}
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency())

	ticker := time.NewTicker(ingestionTick)
	defer ticker.Stop()

	if err := s.ingestAll(gctx, g); err != nil {
		log.Printf("%s initial ingestion: %v", logtag.Warn, err)
	}

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return g.Wait()
		case <-ticker.C:
			if !s.isRunning() {
				return g.Wait()
			}
			if err := s.ingestAll(gctx, g); err != nil {
				log.Printf("%s ingestion tick: %v", logtag.Warn, err)
			}
		}
	}
}

// Stop cooperatively halts the scheduler: no new ingestion ticks or
// dispatches start after this, but anything already running is left to
// finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) ingestAll(ctx context.Context, g *errgroup.Group) error {
	sizeLookup := func(kind domain.MediaKind, channelID string) (string, bool) {
		return s.config.SizeFilter(kind, channelID)
	}

	s.mu.Lock()
	order := oldestIdleFirst(s.channels)
	runtimes := make([]*channelRuntime, 0, len(order))
	for _, id := range order {
		runtimes = append(runtimes, s.channels[id])
	}
	s.mu.Unlock()

	for _, rt := range runtimes {
		rt := rt

		s.mu.Lock()
		busy := rt.downloading || len(rt.pending) > 0
		s.mu.Unlock()
		if busy {
			// Single channel, single message in flight: a channel with a
			// non-empty queue or an active drain is left for the
			// dispatcher to finish before it is offered another page.
			continue
		}

		state := domain.ChannelState{
			LastID:        s.config.LastID(rt.channel.ID),
			MediasAllowed: s.config.MediasAllowed(rt.channel.ID),
		}

		tasks, err := s.ingestor.Fetch(ctx, rt.channel, state, s.config.NewChannelStrategy(), pathpolicy.SizeRangeLookup(sizeLookup))
		if err != nil {
			log.Printf("%s ingest %s: %v", logtag.Warn, rt.channel.ID, err)
			continue
		}
		if len(tasks) == 0 {
			continue
		}

		s.mu.Lock()
		rt.pending = append(rt.pending, tasks...)
		rt.downloading = true
		s.mu.Unlock()
		s.cond.Broadcast()

		g.Go(func() error {
			s.drainChannel(ctx, rt)
			return nil
		})
	}
	return nil
}

// drainChannel processes one channel's pending tasks strictly one message
// at a time (the "single channel, single message in flight" discipline),
// advancing the checkpoint after each message whose download succeeded,
// and never for a comment (comments live in a discussion side-channel and
// must not move the parent channel's checkpoint). A failed download ends
// the drain and drops the rest of the queue, so the checkpoint stays put
// and the next ingestion tick offers the failed message again.
func (s *Scheduler) drainChannel(ctx context.Context, rt *channelRuntime) {
	defer func() {
		s.mu.Lock()
		rt.downloading = false
		s.mu.Unlock()
	}()

	for {
		s.mu.Lock()
		if !s.running || len(rt.pending) == 0 {
			s.mu.Unlock()
			return
		}
		task := rt.pending[0]
		rt.pending = rt.pending[1:]
		s.mu.Unlock()

		if err := s.downloadTask(ctx, task); err != nil {
			log.Printf("%s download %s/%d: %v", logtag.Warn, task.ChannelID, task.Message.ID, err)
			s.mu.Lock()
			rt.pending = nil
			s.mu.Unlock()
			return
		}

		if !task.Message.IsComment {
			s.config.SetLastID(task.ChannelID, task.Message.ID)
		}

		s.mu.Lock()
		rt.lastDownloadTime = time.Now()
		s.mu.Unlock()
	}
}

func (s *Scheduler) downloadTask(ctx context.Context, task domain.Task) error {
	media := task.Message.Media
	size, _ := media.SizeBytes()

	var fileName string
	if media.Document != nil {
		fileName = media.Document.RawFileName()
	}

	opts := domain.PathOptions{
		DataDir:          s.config.DataDir(),
		ChannelID:        task.ChannelID,
		TopicID:          task.Message.TopicID,
		GroupMessage:     s.config.GroupMessage(),
		GroupedID:        task.Message.GroupedID,
		OrganizeEnabled:  s.config.FileOrganizationEnabled(),
		CreateSubfolders: s.config.CreateSubfolders(),
		MessageID:        task.Message.ID,
		RawFileName:      fileName,
	}
	if kind, ok := media.Kind(); ok {
		opts.MediaType = kind
	}
	if media.Document != nil {
		opts.MimeType = media.Document.MimeType
	}

	destPath := pathpolicy.Path(opts)

	progress := func(downloaded, total int64) {
		if s.progress != nil {
			s.progress.Progress(task.ChannelID, destPath, downloaded, total)
		}
	}

	return s.downloader.Download(ctx, media, size, s.sink, destPath, progress)
}

// oldestIdleFirst is exposed for tests: it reports channel IDs ordered by
// longest-idle-first.
func oldestIdleFirst(runtimes map[string]*channelRuntime) []string {
	ids := make([]string, 0, len(runtimes))
	for id := range runtimes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return runtimes[ids[i]].lastDownloadTime.Before(runtimes[ids[j]].lastDownloadTime)
	})
	return ids
}
