// Package chapterstate implements the compact text encoding used to persist
// a "last known latest chapter" snapshot on a saved entry. The snapshot can
// then be compared against freshly fetched data without a join.
//
// Format: id|title|locked. Absent fields encode as empty segments. Fields
// are NOT escaped: a literal '|' inside a title corrupts the encoding.
// Callers must guarantee titles never contain the delimiter; upgrading to an
// escaping scheme would change the meaning of already persisted snapshots.
package chapterstate

import (
	"errors"
	"strconv"
	"strings"
)

// Delimiter separates the three snapshot segments.
const Delimiter = "|"

// ErrMalformedState is returned when a persisted snapshot cannot be decoded.
// Callers treat it as "no known previous chapter", never as fatal.
var ErrMalformedState = errors.New("malformed chapter state")

// Snapshot is a chapter snapshot. Title and Locked are optional; a nil
// pointer round-trips as an empty segment.
type Snapshot struct {
	ID     string
	Title  *string
	Locked *bool
}

// Encode serializes s into one string.
func Encode(s Snapshot) string {
	title := ""
	if s.Title != nil {
		title = *s.Title
	}
	locked := ""
	if s.Locked != nil {
		locked = strconv.FormatBool(*s.Locked)
	}
	return s.ID + Delimiter + title + Delimiter + locked
}

// Decode parses an encoded snapshot. Only the first two delimiters are
// significant; anything after them stays in the last segment, which then
// simply fails the boolean parse instead of truncating the id or title.
func Decode(raw string) (Snapshot, error) {
	segments := strings.SplitN(raw, Delimiter, 3)
	if segments[0] == "" {
		return Snapshot{}, ErrMalformedState
	}

	s := Snapshot{ID: segments[0]}
	if len(segments) > 1 && segments[1] != "" {
		title := segments[1]
		s.Title = &title
	}
	if len(segments) > 2 {
		if locked, err := strconv.ParseBool(segments[2]); err == nil {
			s.Locked = &locked
		}
	}
	return s, nil
}
