// Package ingest implements the per-channel fetch policy that turns one
// channel's checkpoint into a stream of filtered download tasks.
package ingest

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"tgspider/internal/domain"
	"tgspider/internal/pathpolicy"
	"tgspider/internal/pkg/logtag"
	"tgspider/internal/pkg/retry"
)

const historyPageSize = 100

// repliesLimit is the total reply count handed to GetReplies, which fetches
// the thread 100 replies per request; math.MaxInt leaves it uncapped.
const repliesLimit = math.MaxInt

const pageFetchRetries = 3
const pageFetchBaseDelay = 500 * time.Millisecond

// NewChannelStrategy selects how a never-before-seen channel (lastId == 0)
// bootstraps its checkpoint.
type NewChannelStrategy int

const (
	// StrategyLatestOnly starts from the newest message, ignoring backlog.
	StrategyLatestOnly NewChannelStrategy = -1
	// StrategyFullBacklog walks the entire channel history from the start.
	StrategyFullBacklog NewChannelStrategy = 0
)

// Ingestor fetches and filters one channel's unseen messages per tick.
type Ingestor struct {
	facade domain.BlobFacade
	group  singleflight.Group
}

func New(facade domain.BlobFacade) *Ingestor {
	return &Ingestor{facade: facade}
}

// Fetch returns the tasks for the messages it fetched after the channel's
// last checkpoint (one history page per call once a checkpoint exists), in
// oldest-first order, applying the configured media-kind and size filters
// as it goes. It does not advance lastId itself; the scheduler advances the
// checkpoint one message at a time as each task's download succeeds.
func (in *Ingestor) Fetch(ctx context.Context, channel domain.Channel, state domain.ChannelState, newChannelStrategy int, sizeLookup pathpolicy.SizeRangeLookup) ([]domain.Task, error) {
	topics, err := in.topicsOnce(ctx, channel)
	if err != nil {
		log.Printf("%s topics for %s unavailable: %v", logtag.Warn, channel.ID, err)
	}
	channel.Topics = topics

	var history []domain.Message
	if state.LastID > 0 {
		history, err = in.fetchSince(ctx, channel, state.LastID)
	} else {
		history, err = in.fetchNewChannel(ctx, channel, NewChannelStrategy(newChannelStrategy))
	}
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", channel.ID, err)
	}

	var tasks []domain.Task
	for _, msg := range history {
		if msg.IsService {
			continue
		}

		expanded, err := in.expandComments(ctx, channel, msg)
		if err != nil {
			log.Printf("%s comment expansion for %s/%d: %v", logtag.Warn, channel.ID, msg.ID, err)
		}

		for _, m := range append([]domain.Message{msg}, expanded...) {
			decisions := pathpolicy.Filter(m, state.MediasAllowed, sizeLookup)
			for _, d := range decisions {
				if !d.Accepted {
					continue
				}
				tasks = append(tasks, domain.Task{
					ChannelID:     channel.ID,
					Message:       m,
					MediasAllowed: state.MediasAllowed,
				})
			}
		}
	}

	return tasks, nil
}

// topicsOnce collapses overlapping GetForumTopics calls for the same
// channel into a single RPC, since consecutive ingestion ticks for an
// active channel otherwise race the same request.
func (in *Ingestor) topicsOnce(ctx context.Context, channel domain.Channel) ([]domain.Topic, error) {
	v, err, _ := in.group.Do(channel.ID, func() (any, error) {
		return in.facade.GetForumTopics(ctx, channel)
	})
	if err != nil {
		return nil, err
	}
	topics, _ := v.([]domain.Topic)
	return topics, nil
}

// getHistory wraps one GetHistory page fetch with a bounded exponential
// retry, since a single page RPC failing transiently shouldn't abort an
// entire ingestion tick.
func (in *Ingestor) getHistory(ctx context.Context, channel domain.Channel, offsetID, addOffset, limit int) ([]domain.Message, error) {
	var page []domain.Message
	op := func() error {
		p, err := in.facade.GetHistory(ctx, channel, offsetID, addOffset, limit)
		page = p
		return err
	}
	err := retry.WithExponentialRetry(ctx, "get history", op, pageFetchRetries, pageFetchBaseDelay)
	return page, err
}

// fetchSince fetches exactly one page of messages newer than lastId,
// offsetId=lastId, addOffset=-1-limit (the exact arithmetic that makes
// MessagesGetHistory return the limit messages immediately following
// lastId, newest first). Only one page per call: the Scheduler drives
// further pages by reinvoking Fetch on its next ingestion tick, which
// bounds memory and keeps Stop observable within one tick.
func (in *Ingestor) fetchSince(ctx context.Context, channel domain.Channel, lastID int) ([]domain.Message, error) {
	page, err := in.getHistory(ctx, channel, lastID, -1-historyPageSize, historyPageSize)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(page))
	for _, m := range page {
		if m.ID > lastID {
			out = append(out, m)
		}
	}

	reverseMessages(out)
	return out, nil
}

// fetchNewChannel bootstraps a channel with no checkpoint, per the three
// strategies: -1 (latest only), 0 (full backlog), k>0
// (the k most recent messages).
func (in *Ingestor) fetchNewChannel(ctx context.Context, channel domain.Channel, strategy NewChannelStrategy) ([]domain.Message, error) {
	switch {
	case strategy == StrategyLatestOnly:
		page, err := in.getHistory(ctx, channel, 1, -1, 1)
		if err != nil {
			return nil, err
		}
		return page, nil
	case strategy == StrategyFullBacklog:
		return in.fetchFullBacklog(ctx, channel)
	case int(strategy) > 0:
		limit := int(strategy)
		var out []domain.Message
		offsetID := 0
		for len(out) < limit {
			page, err := in.getHistory(ctx, channel, offsetID, 0, historyPageSize)
			if err != nil {
				return out, err
			}
			if len(page) == 0 {
				break
			}
			out = append(out, page...)
			offsetID = page[len(page)-1].ID
			if len(page) < historyPageSize {
				break
			}
		}
		if len(out) > limit {
			out = out[:limit]
		}
		reverseMessages(out)
		return out, nil
	default:
		return nil, fmt.Errorf("invalid new-channel strategy %d", strategy)
	}
}

func (in *Ingestor) fetchFullBacklog(ctx context.Context, channel domain.Channel) ([]domain.Message, error) {
	var out []domain.Message
	offsetID := 0
	for {
		page, err := in.getHistory(ctx, channel, offsetID, 0, historyPageSize)
		if err != nil {
			return out, err
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		offsetID = page[len(page)-1].ID
		if len(page) < historyPageSize {
			break
		}
	}
	reverseMessages(out)
	return out, nil
}

// expandComments walks a discussion thread's replies explicitly page by
// page, rather than requesting one oversized limit, to bound the RPC's
// response size.
func (in *Ingestor) expandComments(ctx context.Context, channel domain.Channel, msg domain.Message) ([]domain.Message, error) {
	return in.facade.GetReplies(ctx, channel, msg.ID, repliesLimit)
}

func reverseMessages(msgs []domain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
