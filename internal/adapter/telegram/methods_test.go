package telegram

import (
	"testing"

	"github.com/gotd/td/tg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgspider/internal/domain"
)

func TestParseChannelID(t *testing.T) {
	n, err := parseChannelID("1234")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), n)

	_, err = parseChannelID("not-a-number")
	assert.Error(t, err)
}

func TestToChannel(t *testing.T) {
	c := &tg.Channel{ID: 77, Title: "News", Forum: true, AccessHash: 555}
	ch := toChannel(c)

	assert.Equal(t, "77", ch.ID)
	assert.Equal(t, "News", ch.Title)
	assert.True(t, ch.IsForum)
	assert.Equal(t, peerToken{AccessHash: 555}, ch.AccessToken)
}

func TestToDocumentExtractsFilenameAttribute(t *testing.T) {
	d := &tg.Document{
		ID:       10,
		Size:     2048,
		MimeType: "video/mp4",
		Attributes: []tg.DocumentAttributeClass{
			&tg.DocumentAttributeVideo{W: 100, H: 100},
			&tg.DocumentAttributeFilename{FileName: "clip.mp4"},
		},
	}
	doc := toDocument(d)

	assert.Equal(t, "clip.mp4", doc.RawFileName())
	assert.False(t, doc.IsPlainFile())
	assert.Equal(t, int64(2048), doc.Size)
}

func TestToPhotoPicksLargestSize(t *testing.T) {
	p := &tg.Photo{
		ID: 1,
		Sizes: []tg.PhotoSizeClass{
			&tg.PhotoSize{Type: "s", W: 90, H: 90, Size: 1000},
			&tg.PhotoSize{Type: "x", W: 800, H: 800, Size: 90000},
		},
	}
	photo := toPhoto(p)
	assert.Len(t, photo.Sizes, 2)
	assert.Equal(t, "x", domain.ThumbSizeSelector(photo.Sizes))
}

func TestInputFileLocationRejectsEmptyMedia(t *testing.T) {
	_, _, err := inputFileLocation(domain.Media{})
	assert.Error(t, err)
}
