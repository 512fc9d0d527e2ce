package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
)

// UpsertReadingRecord stores the last-read position for a manga/plugin
// pair. Only user reading actions call this. The cached manga row must
// exist; reading records hang off it and are cascade-deleted with it.
func (s *Store) UpsertReadingRecord(r *models.ReadingRecord) error {
	if r.Datetime.IsZero() {
		r.Datetime = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO reading_records (manga_id, plugin_id, datetime, page, chapter_id, chapter_title)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(manga_id, plugin_id) DO UPDATE SET
			datetime = excluded.datetime,
			page = excluded.page,
			chapter_id = excluded.chapter_id,
			chapter_title = excluded.chapter_title;
	`, r.MangaID, r.PluginID, r.Datetime, r.Page, r.ChapterID, r.ChapterTitle)
	if err != nil {
		return fmt.Errorf("failed to upsert reading record %s/%s: %w", r.PluginID, r.MangaID, err)
	}
	return nil
}

// GetReadingRecord returns the reading record for one source ref, or
// models.ErrNotFound.
func (s *Store) GetReadingRecord(ref models.SourceRef) (*models.ReadingRecord, error) {
	r := &models.ReadingRecord{MangaID: ref.MangaID, PluginID: ref.PluginID}
	err := s.db.QueryRow(`
		SELECT datetime, page, chapter_id, chapter_title
		FROM reading_records WHERE manga_id = ? AND plugin_id = ?
	`, ref.MangaID, ref.PluginID).Scan(&r.Datetime, &r.Page, &r.ChapterID, &r.ChapterTitle)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reading record: %w", err)
	}
	return r, nil
}
