// Package pathpolicy implements the pure, deterministic mapping from a
// message/media pair to an on-disk path, and the size/kind filter. None of
// it performs I/O except the one mkdir the caller is told to run
// immediately before writing.
package pathpolicy

import (
	"mime"
	"path/filepath"
	"strconv"
	"strings"

	"tgspider/internal/domain"
)

var invalidChars = []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}

// SanitizeChannelFolder replaces filesystem-hostile characters in a channel
// title, falling back to the channel id if the result is empty.
func SanitizeChannelFolder(title, id string) string {
	out := title
	for _, c := range invalidChars {
		out = strings.ReplaceAll(out, c, "_")
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return id
	}
	return out
}

var defaultExt = map[domain.MediaKind]string{
	domain.MediaPhoto: "jpg",
	domain.MediaVideo: "mp4",
	domain.MediaAudio: "mp3",
	domain.MediaFile:  "dat",
}

// extensionFromMime looks the mime type up against the standard table and
// falls back to the per-kind default.
func extensionFromMime(mimeType string, kind domain.MediaKind) string {
	if mimeType != "" {
		if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
			return strings.TrimPrefix(exts[0], ".")
		}
	}
	return defaultExt[kind]
}

// hasExplicitExtension reports whether rawFileName already carries a
// filename extension: a dot after the last path separator, and not as the
// first character of the base name.
func hasExplicitExtension(rawFileName string) bool {
	base := filepath.Base(rawFileName)
	dot := strings.LastIndex(base, ".")
	return dot > 0
}

// Filename builds the filename from the message/grouping/extension recipe.
func Filename(opts domain.PathOptions) string {
	var b strings.Builder

	if !opts.GroupMessage && opts.GroupedID != "" {
		b.WriteString(opts.GroupedID)
		b.WriteString("_")
	}

	b.WriteString(strconv.Itoa(opts.MessageID))

	if opts.RawFileName != "" {
		b.WriteString("_")
		b.WriteString(opts.RawFileName)
	}

	if opts.RawFileName != "" && hasExplicitExtension(opts.RawFileName) {
		return b.String()
	}

	ext := extensionFromMime(opts.MimeType, opts.MediaType)
	b.WriteString(".")
	b.WriteString(ext)
	return b.String()
}

// Path computes the destination path per a fixed-priority recipe. It is a
// pure function of its inputs: Path(o) == Path(o) always.
func Path(opts domain.PathOptions) string {
	folder := SanitizeChannelFolder(opts.ChannelTitle, opts.ChannelID)

	parts := []string{opts.DataDir, folder}

	if opts.TopicID != "" {
		parts = append(parts, "_"+opts.TopicID)
	}

	if opts.GroupMessage && opts.GroupedID != "" {
		parts = append(parts, opts.GroupedID)
	}

	if opts.OrganizeEnabled && opts.CreateSubfolders {
		parts = append(parts, string(opts.MediaType))
	}

	parts = append(parts, Filename(opts))

	return filepath.Join(parts...)
}
