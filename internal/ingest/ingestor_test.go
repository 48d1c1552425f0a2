package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgspider/internal/domain"
	"tgspider/internal/pathpolicy"
)

// fakeFacade is a minimal in-memory domain.BlobFacade for exercising the
// ingestor's fetch policy without gotd/td.
type fakeFacade struct {
	history []domain.Message
	replies map[int][]domain.Message
	topics  []domain.Topic
}

func (f *fakeFacade) IterDialogs(ctx context.Context) (<-chan domain.Channel, <-chan error) {
	out := make(chan domain.Channel)
	errc := make(chan error, 1)
	close(out)
	close(errc)
	return out, errc
}

func (f *fakeFacade) GetChannels(ctx context.Context, ids []string) ([]domain.Channel, error) {
	return nil, nil
}

func (f *fakeFacade) GetForumTopics(ctx context.Context, channel domain.Channel) ([]domain.Topic, error) {
	return f.topics, nil
}

// GetHistory emulates MessagesGetHistory's two paging directions the
// ingestor relies on: a negative addOffset walks forward from offsetID
// (used by fetchSince to find messages newer than the checkpoint), while
// addOffset==0 walks backward from offsetID (used to page through
// backlog), newest-first, capped at limit.
func (f *fakeFacade) GetHistory(ctx context.Context, channel domain.Channel, offsetID, addOffset, limit int) ([]domain.Message, error) {
	var candidates []domain.Message
	if addOffset < 0 {
		for i := len(f.history) - 1; i >= 0; i-- {
			m := f.history[i]
			if m.ID > offsetID {
				candidates = append(candidates, m)
			}
		}
	} else {
		for i := len(f.history) - 1; i >= 0; i-- {
			m := f.history[i]
			if offsetID == 0 || m.ID < offsetID {
				candidates = append(candidates, m)
			}
		}
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (f *fakeFacade) GetReplies(ctx context.Context, channel domain.Channel, msgID int, limit int) ([]domain.Message, error) {
	return f.replies[msgID], nil
}

func (f *fakeFacade) GetFile(ctx context.Context, media domain.Media) ([]byte, error) {
	return nil, nil
}

func (f *fakeFacade) SenderFor(ctx context.Context, dcID int) (domain.Sender, error) {
	return nil, nil
}

func alwaysAllow(kind domain.MediaKind, channelID string) (string, bool) { return "", false }

func TestFetchSinceReturnsOnlyNewerMessages(t *testing.T) {
	facade := &fakeFacade{
		history: []domain.Message{
			{ID: 1, Media: domain.Media{Document: &domain.Document{Size: 10, MimeType: "application/octet-stream", Attributes: []domain.DocumentAttribute{{Filename: "a.dat"}}}}},
			{ID: 2, Media: domain.Media{Document: &domain.Document{Size: 10, MimeType: "application/octet-stream", Attributes: []domain.DocumentAttribute{{Filename: "b.dat"}}}}},
			{ID: 3, Media: domain.Media{Document: &domain.Document{Size: 10, MimeType: "application/octet-stream", Attributes: []domain.DocumentAttribute{{Filename: "c.dat"}}}}},
		},
	}
	in := New(facade)

	state := domain.ChannelState{
		LastID:        1,
		MediasAllowed: allowAll(),
	}
	tasks, err := in.Fetch(context.Background(), domain.Channel{ID: "1"}, state, int(StrategyLatestOnly), pathpolicy.SizeRangeLookup(alwaysAllow))
	require.NoError(t, err)

	var ids []int
	for _, tsk := range tasks {
		ids = append(ids, tsk.Message.ID)
	}
	assert.Equal(t, []int{2, 3}, ids)
}

func TestFetchNewChannelLatestOnlyReturnsOneMessage(t *testing.T) {
	facade := &fakeFacade{
		history: []domain.Message{
			{ID: 1, Media: domain.Media{Document: &domain.Document{Size: 10, MimeType: "application/octet-stream", Attributes: []domain.DocumentAttribute{{Filename: "a.dat"}}}}},
			{ID: 2, Media: domain.Media{Document: &domain.Document{Size: 10, MimeType: "application/octet-stream", Attributes: []domain.DocumentAttribute{{Filename: "b.dat"}}}}},
		},
	}
	in := New(facade)
	state := domain.ChannelState{LastID: 0, MediasAllowed: allowAll()}

	tasks, err := in.Fetch(context.Background(), domain.Channel{ID: "1"}, state, int(StrategyLatestOnly), pathpolicy.SizeRangeLookup(alwaysAllow))
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 2, tasks[0].Message.ID)
}

func allowAll() map[domain.MediaKind]bool {
	return map[domain.MediaKind]bool{
		domain.MediaPhoto: true,
		domain.MediaVideo: true,
		domain.MediaAudio: true,
		domain.MediaFile:  true,
	}
}
