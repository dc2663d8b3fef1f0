// Package urlutil provides URL normalization, filename hashing, tag parsing
// and note id generation. All functions are pure.
package urlutil

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"
)

// Normalize canonicalizes a URL for use as a page identity key:
// percent-decoding is applied, the fragment is stripped, and trailing
// slashes are removed. The query string is kept. Invalid input is
// returned unchanged.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}
	normalized := raw
	if decoded, err := url.PathUnescape(raw); err == nil {
		normalized = decoded
	}
	if i := strings.IndexByte(normalized, '#'); i >= 0 {
		normalized = normalized[:i]
	}
	return strings.TrimRight(normalized, "/")
}

// Hash returns the deterministic short hash of s used to derive filenames:
// a 32-bit signed rolling hash over the UTF-16 code units of s, absolute
// value, base-36 encoded. Distinct URLs mapping to the same hash are a
// known, accepted risk; the file layer verifies the owning URL on read.
func Hash(s string) string {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}

// NoteFileName returns the page-record filename for a URL.
func NoteFileName(rawURL string) string {
	return "note_" + Hash(Normalize(rawURL)) + ".json"
}

// MarkdownFileName returns the page-snapshot filename for a URL.
func MarkdownFileName(rawURL string) string {
	return "page_" + Hash(Normalize(rawURL)) + ".md"
}

// ParseTags splits free-form tag input into individual tags: '#' characters
// are stripped, tags are whitespace-separated, and empties are dropped.
// No case normalization is applied.
func ParseTags(input string) []string {
	input = strings.ReplaceAll(input, "#", "")
	var tags []string
	for _, f := range strings.Fields(input) {
		if t := strings.TrimSpace(f); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// NewNoteID generates a fresh, never-reused note identifier.
func NewNoteID() string {
	return uuid.NewString()
}
