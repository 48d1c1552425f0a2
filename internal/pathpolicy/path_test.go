package pathpolicy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tgspider/internal/domain"
)

func TestSanitizeChannelFolderFallsBackToID(t *testing.T) {
	assert.Equal(t, "123", SanitizeChannelFolder("   ", "123"))
	assert.Equal(t, "a_b_c", SanitizeChannelFolder("a/b:c", "123"))
}

func TestFilenameAppendsDefaultExtensionWhenMissing(t *testing.T) {
	name := Filename(domain.PathOptions{
		MessageID:   42,
		MediaType:   domain.MediaVideo,
		RawFileName: "",
	})
	assert.Equal(t, "42.mp4", name)
}

func TestFilenameKeepsExplicitExtension(t *testing.T) {
	name := Filename(domain.PathOptions{
		MessageID:   42,
		RawFileName: "movie.mkv",
	})
	assert.Equal(t, "42_movie.mkv", name)
}

func TestFilenamePrefixesGroupedIDWhenNotGrouping(t *testing.T) {
	name := Filename(domain.PathOptions{
		MessageID:    42,
		GroupedID:    "999",
		GroupMessage: false,
		MediaType:    domain.MediaPhoto,
	})
	assert.Equal(t, "999_42.jpg", name)
}

func TestPathIsDeterministic(t *testing.T) {
	opts := domain.PathOptions{
		DataDir:          "/data",
		ChannelTitle:     "My Channel",
		ChannelID:        "100",
		TopicID:          "5",
		OrganizeEnabled:  true,
		CreateSubfolders: true,
		MediaType:        domain.MediaPhoto,
		MessageID:        7,
	}
	assert.Equal(t, Path(opts), Path(opts))
	assert.Equal(t, "/data/My Channel/_5/photo/7.jpg", Path(opts))
}
