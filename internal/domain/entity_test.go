package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaKindClassification(t *testing.T) {
	photo := Media{Photo: &Photo{}}
	k, ok := photo.Kind()
	assert.True(t, ok)
	assert.Equal(t, MediaPhoto, k)

	video := Media{Document: &Document{MimeType: "video/mp4", Attributes: []DocumentAttribute{{}, {}}}}
	k, ok = video.Kind()
	assert.True(t, ok)
	assert.Equal(t, MediaVideo, k)

	plainFile := Media{Document: &Document{MimeType: "video/mp4", Attributes: []DocumentAttribute{{Filename: "a.mp4"}}}}
	k, ok = plainFile.Kind()
	assert.True(t, ok)
	assert.Equal(t, MediaFile, k)

	none := Media{}
	_, ok = none.Kind()
	assert.False(t, ok)
}

func TestSizeBytesPicksLargestPhotoSize(t *testing.T) {
	m := Media{Photo: &Photo{Sizes: []PhotoSize{
		{Type: "s", Size: 100},
		{Type: "m", Size: 500},
		{Progressive: []int{50, 900, 300}},
	}}}
	size, ok := m.SizeBytes()
	assert.True(t, ok)
	assert.Equal(t, int64(900), size)
}

func TestThumbSizeSelectorEmptyForProgressive(t *testing.T) {
	sizes := []PhotoSize{
		{Type: "s", Size: 100},
		{Progressive: []int{50, 900, 300}},
	}
	assert.Equal(t, "", ThumbSizeSelector(sizes))
}

func TestThumbSizeSelectorPicksLargestFixedSize(t *testing.T) {
	sizes := []PhotoSize{
		{Type: "s", Size: 100},
		{Type: "x", Size: 800},
		{Type: "m", Size: 500},
	}
	assert.Equal(t, "x", ThumbSizeSelector(sizes))
}

func TestDocumentIsPlainFile(t *testing.T) {
	d := &Document{Attributes: []DocumentAttribute{{Filename: "report.pdf"}}}
	assert.True(t, d.IsPlainFile())

	d2 := &Document{Attributes: []DocumentAttribute{{Filename: "a.mp4"}, {}}}
	assert.False(t, d2.IsPlainFile())
}
