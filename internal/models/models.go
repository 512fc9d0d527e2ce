// This file defines the normalized entity model shared by every plugin
// backend. Content from different plugins never collides because every
// manga-scoped record is keyed by the composite (manga id, plugin id).

package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no row matches.
var ErrNotFound = errors.New("not found")

// MangaStatus describes the publication state of a manga.
type MangaStatus int

const (
	StatusUnknown MangaStatus = iota
	StatusOnGoing
	StatusEnded
)

// SourceRef is the cross-plugin identity key. The same manga id string may
// appear under two plugins with unrelated meaning, so no query may use the
// manga id alone.
type SourceRef struct {
	MangaID  string `json:"manga_id"`
	PluginID string `json:"plugin_id"`
}

// Image is a cover or a page. It is owned by either a manga (cover) or a
// chapter (page) and is deleted together with its owner.
type Image struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Chapter belongs to exactly one chapter group. Order is a string sorting
// key rather than a number so that values like "1.5" or "extra" survive.
type Chapter struct {
	ID    string   `json:"id"`
	Title *string  `json:"title,omitempty"`
	Order string   `json:"order"`
	Pages []*Image `json:"pages,omitempty"` // only loaded on demand
}

// ChapterGroup is an ordered set of chapters under one title, typically a
// volume or a scanlator.
type ChapterGroup struct {
	ID       int64      `json:"id"`
	Title    string     `json:"title"`
	Chapters []*Chapter `json:"chapters"`
}

// Manga is the root of a cached content tree for one (id, plugin) pair.
type Manga struct {
	ID              string          `json:"id"`
	PluginID        string          `json:"plugin_id"`
	Title           *string         `json:"title,omitempty"`
	Status          MangaStatus     `json:"status"`
	Description     *string         `json:"description,omitempty"`
	Authors         []string        `json:"authors"`
	Genres          []string        `json:"genres"`
	UpdatedAt       *time.Time      `json:"updated_at,omitempty"`
	LatestChapterID *string         `json:"latest_chapter_id,omitempty"`
	Cover           *Image          `json:"cover,omitempty"`
	Groups          []*ChapterGroup `json:"groups,omitempty"` // omitempty hides it for summaries
	CachedAt        *time.Time      `json:"cached_at,omitempty"`
}

// Ref returns the composite key of this manga.
func (m *Manga) Ref() SourceRef {
	return SourceRef{MangaID: m.ID, PluginID: m.PluginID}
}

// LatestChapter walks the cached groups for the chapter referenced by
// LatestChapterID. Returns nil if the pointer is unset or dangling.
func (m *Manga) LatestChapter() *Chapter {
	if m.LatestChapterID == nil {
		return nil
	}
	for _, g := range m.Groups {
		for _, ch := range g.Chapters {
			if ch.ID == *m.LatestChapterID {
				return ch
			}
		}
	}
	return nil
}

// ReadingRecord is the last-read position for a manga/plugin pair. Rows are
// written only by user reading actions.
type ReadingRecord struct {
	MangaID      string    `json:"manga_id"`
	PluginID     string    `json:"plugin_id"`
	Datetime     time.Time `json:"datetime"`
	Page         int       `json:"page"`
	ChapterID    *string   `json:"chapter_id,omitempty"`
	ChapterTitle *string   `json:"chapter_title,omitempty"`
}

// SavedEntry marks a manga as library-saved. LatestChapter holds the
// chapter-state encoded snapshot of the newest chapter known at Datetime;
// Updates is set by the sync engine when a newer one appears.
type SavedEntry struct {
	MangaID       string    `json:"manga_id"`
	PluginID      string    `json:"plugin_id"`
	Datetime      time.Time `json:"datetime"`
	Updates       bool      `json:"updates"`
	LatestChapter string    `json:"latest_chapter"`
}
