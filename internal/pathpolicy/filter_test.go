package pathpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tgspider/internal/domain"
)

func allowAll() map[domain.MediaKind]bool {
	return map[domain.MediaKind]bool{
		domain.MediaPhoto: true,
		domain.MediaVideo: true,
		domain.MediaAudio: true,
		domain.MediaFile:  true,
	}
}

func TestFilterRejectsDisallowedKind(t *testing.T) {
	msg := domain.Message{Media: domain.Media{Document: &domain.Document{Size: 10, MimeType: "video/mp4"}}}
	allowed := map[domain.MediaKind]bool{domain.MediaPhoto: true}

	decisions := Filter(msg, allowed, nil)
	assert.Len(t, decisions, 1)
	assert.False(t, decisions[0].Accepted)
}

func TestFilterAcceptsWithinSizeRange(t *testing.T) {
	msg := domain.Message{ChannelID: "c1", Media: domain.Media{Document: &domain.Document{Size: 500, MimeType: "video/mp4"}}}
	lookup := func(kind domain.MediaKind, channelID string) (string, bool) {
		return "100-1000", true
	}

	decisions := Filter(msg, allowAll(), lookup)
	assert.Len(t, decisions, 1)
	assert.True(t, decisions[0].Accepted)
}

func TestFilterRejectsOutsideSizeRange(t *testing.T) {
	msg := domain.Message{ChannelID: "c1", Media: domain.Media{Document: &domain.Document{Size: 5000, MimeType: "video/mp4"}}}
	lookup := func(kind domain.MediaKind, channelID string) (string, bool) {
		return "100-1000", true
	}

	decisions := Filter(msg, allowAll(), lookup)
	assert.Len(t, decisions, 1)
	assert.False(t, decisions[0].Accepted)
}

func TestFilterDefaultAcceptsWhenNoSizeConfigured(t *testing.T) {
	msg := domain.Message{ChannelID: "c1", Media: domain.Media{Document: &domain.Document{Size: 5000, MimeType: "video/mp4"}}}
	lookup := func(kind domain.MediaKind, channelID string) (string, bool) {
		return "", false
	}

	decisions := Filter(msg, allowAll(), lookup)
	assert.True(t, decisions[0].Accepted)
}

func TestFilterNoMediaReturnsNoDecisions(t *testing.T) {
	msg := domain.Message{IsService: true}
	decisions := Filter(msg, allowAll(), nil)
	assert.Nil(t, decisions)
}

func TestFilterIsIdempotent(t *testing.T) {
	msg := domain.Message{ChannelID: "c1", Media: domain.Media{Document: &domain.Document{Size: 500, MimeType: "video/mp4"}}}
	lookup := func(kind domain.MediaKind, channelID string) (string, bool) {
		return "100-1000", true
	}
	first := Filter(msg, allowAll(), lookup)
	second := Filter(msg, allowAll(), lookup)
	assert.Equal(t, first, second)
}
