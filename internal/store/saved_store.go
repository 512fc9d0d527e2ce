package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
)

// UpsertSavedEntry creates or refreshes a library bookmark. Explicit "add to
// library" calls this; the sync engine later rewrites the check state
// through MarkSavedEntryChecked.
func (s *Store) UpsertSavedEntry(e *models.SavedEntry) error {
	if e.Datetime.IsZero() {
		e.Datetime = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO saved_entries (manga_id, plugin_id, datetime, updates, latest_chapter)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(manga_id, plugin_id) DO UPDATE SET
			datetime = excluded.datetime,
			updates = excluded.updates,
			latest_chapter = excluded.latest_chapter;
	`, e.MangaID, e.PluginID, e.Datetime, e.Updates, e.LatestChapter)
	if err != nil {
		return fmt.Errorf("failed to upsert saved entry %s/%s: %w", e.PluginID, e.MangaID, err)
	}
	return nil
}

// MarkSavedEntryChecked records the outcome of one sync check: the new
// last-checked time, whether newer chapters were detected, and the encoded
// snapshot of the newest known chapter.
func (s *Store) MarkSavedEntryChecked(ref models.SourceRef, updates bool, latestChapter string) error {
	res, err := s.db.Exec(`
		UPDATE saved_entries SET datetime = ?, updates = ?, latest_chapter = ?
		WHERE manga_id = ? AND plugin_id = ?
	`, time.Now(), updates, latestChapter, ref.MangaID, ref.PluginID)
	if err != nil {
		return fmt.Errorf("failed to mark saved entry checked: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ClearSavedEntryUpdates resets the updates flag, e.g. once the user has
// opened the manga.
func (s *Store) ClearSavedEntryUpdates(ref models.SourceRef) error {
	_, err := s.db.Exec(`
		UPDATE saved_entries SET updates = 0 WHERE manga_id = ? AND plugin_id = ?
	`, ref.MangaID, ref.PluginID)
	return err
}

// GetSavedEntry returns the bookmark for one source ref, or models.ErrNotFound.
func (s *Store) GetSavedEntry(ref models.SourceRef) (*models.SavedEntry, error) {
	e := &models.SavedEntry{MangaID: ref.MangaID, PluginID: ref.PluginID}
	err := s.db.QueryRow(`
		SELECT datetime, updates, latest_chapter
		FROM saved_entries WHERE manga_id = ? AND plugin_id = ?
	`, ref.MangaID, ref.PluginID).Scan(&e.Datetime, &e.Updates, &e.LatestChapter)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get saved entry: %w", err)
	}
	return e, nil
}

// DeleteSavedEntry removes a bookmark without touching the cached tree.
func (s *Store) DeleteSavedEntry(ref models.SourceRef) error {
	_, err := s.db.Exec("DELETE FROM saved_entries WHERE manga_id = ? AND plugin_id = ?", ref.MangaID, ref.PluginID)
	return err
}

// ListSavedEntries returns every bookmark, newest check first.
func (s *Store) ListSavedEntries() ([]*models.SavedEntry, error) {
	return s.querySavedEntries("SELECT manga_id, plugin_id, datetime, updates, latest_chapter FROM saved_entries ORDER BY datetime DESC")
}

// ListSavedEntriesForPlugin returns the bookmarks held under one plugin.
// The sync engine walks these per refresh pass.
func (s *Store) ListSavedEntriesForPlugin(pluginID string) ([]*models.SavedEntry, error) {
	return s.querySavedEntries(
		"SELECT manga_id, plugin_id, datetime, updates, latest_chapter FROM saved_entries WHERE plugin_id = ? ORDER BY datetime DESC",
		pluginID)
}

func (s *Store) querySavedEntries(query string, args ...any) ([]*models.SavedEntry, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved entries: %w", err)
	}
	defer rows.Close()

	entries := []*models.SavedEntry{}
	for rows.Next() {
		e := &models.SavedEntry{}
		if err := rows.Scan(&e.MangaID, &e.PluginID, &e.Datetime, &e.Updates, &e.LatestChapter); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
