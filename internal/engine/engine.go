// Package engine wires the crawler's components (RPC facade, ingestor,
// downloader, scheduler) into a single constructed value, avoiding the
// package-level globals a quick script would reach for.
package engine

import (
	"context"

	"tgspider/internal/domain"
	"tgspider/internal/download"
	"tgspider/internal/ingest"
	"tgspider/internal/schedule"
)

// Engine owns the full crawl-and-download pipeline for one run.
type Engine struct {
	facade    domain.BlobFacade
	config    domain.ConfigView
	scheduler *schedule.Scheduler
}

// New constructs an Engine from its collaborators. Callers (cmd/tgspider)
// are responsible for having already started the facade's connection.
func New(facade domain.BlobFacade, config domain.ConfigView, sink domain.FileSink, progress domain.ProgressSink) *Engine {
	ingestor := ingest.New(facade)
	downloader := download.New(facade, download.Options{
		AccelerationEnabled: config.AccelerationEnabled(),
		Threads:             config.DownloadThreads(),
		ChunkSize:           config.ChunkSize(),
		MaxRetries:          config.MaxRetries(),
	})
	sched := schedule.New(config, ingestor, downloader, sink, progress)

	return &Engine{
		facade:    facade,
		config:    config,
		scheduler: sched,
	}
}

// Run resolves the configured channel set and runs the scheduler until ctx
// is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	channels, err := e.resolveChannels(ctx)
	if err != nil {
		return err
	}
	return e.scheduler.Run(ctx, channels)
}

// Stop cooperatively halts the scheduler; in-flight downloads are left to
// finish.
func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// resolveChannels turns the configured channel ID list into domain.Channel
// values, falling back to dialog discovery when none are configured
// explicitly.
func (e *Engine) resolveChannels(ctx context.Context) ([]domain.Channel, error) {
	ids := e.config.Channels()
	if len(ids) > 0 {
		return e.facade.GetChannels(ctx, ids)
	}

	var channels []domain.Channel
	out, errc := e.facade.IterDialogs(ctx)
	for ch := range out {
		channels = append(channels, ch)
	}
	if err := <-errc; err != nil {
		return channels, err
	}
	return channels, nil
}
