// Package domain holds the plain types shared by every component of the
// crawler: channels, messages, media, tasks and chunks. None of it knows
// about gotd/td, viper or any other adapter library.
package domain

// MediaKind classifies a downloadable media attachment.
type MediaKind string

const (
	MediaPhoto MediaKind = "photo"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
	MediaFile  MediaKind = "file"
)

// AllMediaKinds is the default allowed set when no override is configured.
var AllMediaKinds = []MediaKind{MediaPhoto, MediaVideo, MediaAudio, MediaFile}

// Topic is a forum sub-thread of a Channel.
type Topic struct {
	ID    string
	Title string
}

// Channel is a Telegram broadcast channel, supergroup, or the special "me"
// saved-messages peer. AccessToken is an opaque handle the RPC facade uses
// to address the peer; the engine never interprets it.
type Channel struct {
	ID          string
	Title       string
	AccessToken any
	IsForum     bool
	Topics      []Topic
}

// PhotoSize is one entry of a Photo's size ladder.
type PhotoSize struct {
	Type        string // thumbSize selector; empty for PhotoSizeProgressive
	Progressive []int  // non-empty only for PhotoSizeProgressive
	W, H        int
	Size        int64
}

// Media is a tagged union: exactly one of Photo/Document is non-nil, or
// both are nil (MessageService, no media).
type Media struct {
	Photo    *Photo
	Document *Document
}

type Photo struct {
	ID            int64
	AccessHash    int64
	FileReference []byte
	DCID          int
	Sizes         []PhotoSize
}

// DocumentAttribute is the subset of tg.DocumentAttribute* this crawler
// cares about: only the filename attribute carries information we use.
type DocumentAttribute struct {
	Filename string
}

type Document struct {
	ID            int64
	AccessHash    int64
	FileReference []byte
	DCID          int
	Size          int64
	MimeType      string
	Attributes    []DocumentAttribute
}

// RawFileName returns the filename attribute's value, if any.
func (d *Document) RawFileName() string {
	for _, a := range d.Attributes {
		if a.Filename != "" {
			return a.Filename
		}
	}
	return ""
}

// IsPlainFile reports whether the document's only attribute is a filename,
// the defining trait of the "file" media kind.
func (d *Document) IsPlainFile() bool {
	return len(d.Attributes) == 1 && d.Attributes[0].Filename != ""
}

// Kind classifies the media variant into the four kinds the filter and
// path policy understand.
func (m Media) Kind() (MediaKind, bool) {
	switch {
	case m.Photo != nil:
		return MediaPhoto, true
	case m.Document != nil:
		if m.Document.IsPlainFile() {
			return MediaFile, true
		}
		mt := m.Document.MimeType
		switch {
		case len(mt) >= 6 && mt[:6] == "video/":
			return MediaVideo, true
		case len(mt) >= 6 && mt[:6] == "audio/":
			return MediaAudio, true
		default:
			return MediaFile, true
		}
	default:
		return "", false
	}
}

// SizeBytes returns the byte size used for range filtering, and whether it
// could be determined at all. Callers default to accepting when it
// cannot be.
func (m Media) SizeBytes() (int64, bool) {
	switch {
	case m.Photo != nil:
		return largestPhotoSize(m.Photo.Sizes)
	case m.Document != nil:
		return m.Document.Size, true
	default:
		return 0, false
	}
}

func largestPhotoSize(sizes []PhotoSize) (int64, bool) {
	var best int64
	found := false
	for _, s := range sizes {
		sz := s.Size
		if len(s.Progressive) > 0 {
			for _, p := range s.Progressive {
				if int64(p) > sz {
					sz = int64(p)
				}
			}
		}
		if !found || sz > best {
			best = sz
			found = true
		}
	}
	return best, found
}

// ThumbSizeSelector returns the `type` string of the largest PhotoSize, or
// empty if the largest entry is a progressive size.
func ThumbSizeSelector(sizes []PhotoSize) string {
	var bestIdx = -1
	var best int64
	for i, s := range sizes {
		sz := s.Size
		if len(s.Progressive) > 0 {
			for _, p := range s.Progressive {
				if int64(p) > sz {
					sz = int64(p)
				}
			}
		}
		if bestIdx == -1 || sz > best {
			best = sz
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return ""
	}
	if len(sizes[bestIdx].Progressive) > 0 {
		return ""
	}
	return sizes[bestIdx].Type
}

// Message is the subset of a Telegram message the engine needs.
type Message struct {
	ChannelID string
	ID        int
	GroupedID string
	TopicID   string
	Media     Media
	Date      int64
	IsComment bool
	IsService bool
}

// ChannelState is the persistent per-channel checkpoint.
type ChannelState struct {
	LastID        int
	MediasAllowed map[MediaKind]bool
}

// Task is a unit of work handed from the Ingestor to the Scheduler.
type Task struct {
	ChannelID     string
	Message       Message
	MediasAllowed map[MediaKind]bool
}

// ChunkState tracks one chunk's progress through fetch and retry.
type ChunkState int

const (
	ChunkPending ChunkState = iota
	ChunkInFlight
	ChunkCompleted
	ChunkRetrying
	ChunkFailed
)

// Chunk is a single [Offset, Offset+Limit) byte range of a file download.
type Chunk struct {
	Offset  int64
	Limit   int64
	Retries int
	State   ChunkState
}

// PathOptions is the pure input to the path policy.
type PathOptions struct {
	DataDir          string
	ChannelTitle     string
	ChannelID        string
	TopicID          string // empty if not present
	GroupMessage     bool
	GroupedID        string
	MediaType        MediaKind
	OrganizeEnabled  bool
	CreateSubfolders bool
	MessageID        int
	RawFileName      string
	MimeType         string
}

// FilterDecision is the result of evaluating one media kind on a message.
type FilterDecision struct {
	Kind     MediaKind
	Accepted bool
	Reason   string
}
