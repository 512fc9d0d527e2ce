package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
)

// UpsertMangaSummary writes or refreshes the manga row itself, without
// touching the chapter tree. Idempotent on the composite primary key.
func (s *Store) UpsertMangaSummary(m *models.Manga) error {
	return s.upsertMangaRow(s.db, m)
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *Store) upsertMangaRow(e execer, m *models.Manga) error {
	_, err := e.Exec(`
		INSERT INTO manga (id, plugin_id, title, status, description, authors, genres, latest_chapter_id, updated_at, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id, plugin_id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			description = excluded.description,
			authors = excluded.authors,
			genres = excluded.genres,
			latest_chapter_id = excluded.latest_chapter_id,
			updated_at = excluded.updated_at,
			cached_at = CURRENT_TIMESTAMP;
	`, m.ID, m.PluginID, m.Title, m.Status, m.Description,
		joinList(m.Authors), joinList(m.Genres), m.LatestChapterID, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert manga %s/%s: %w", m.PluginID, m.ID, err)
	}
	return nil
}

// UpsertMangaTree replaces the whole cached tree (manga row, cover, chapter
// groups and chapters) for one source ref in a single transaction. A
// partially written tree is never visible: either every row lands or the
// transaction rolls back. Reading records and saved entries survive because
// the manga row is updated in place, not deleted.
func (s *Store) UpsertMangaTree(m *models.Manga) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.upsertMangaRow(tx, m); err != nil {
		return err
	}

	// Rebuild the tree. Deleting the groups cascades through chapters and
	// their page images.
	if _, err := tx.Exec("DELETE FROM chapter_groups WHERE manga_id = ? AND plugin_id = ?", m.ID, m.PluginID); err != nil {
		return fmt.Errorf("failed to clear chapter groups: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM images WHERE manga_id = ? AND manga_plugin_id = ?", m.ID, m.PluginID); err != nil {
		return fmt.Errorf("failed to clear cover: %w", err)
	}

	if m.Cover != nil {
		_, err := tx.Exec(`
			INSERT INTO images (path, width, height, position, manga_id, manga_plugin_id)
			VALUES (?, ?, ?, 0, ?, ?)
		`, m.Cover.Path, m.Cover.Width, m.Cover.Height, m.ID, m.PluginID)
		if err != nil {
			return fmt.Errorf("failed to insert cover: %w", err)
		}
	}

	for gi, group := range m.Groups {
		res, err := tx.Exec(`
			INSERT INTO chapter_groups (manga_id, plugin_id, title, position)
			VALUES (?, ?, ?, ?)
		`, m.ID, m.PluginID, group.Title, gi)
		if err != nil {
			return fmt.Errorf("failed to insert chapter group %q: %w", group.Title, err)
		}
		groupID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		group.ID = groupID

		for ci, ch := range group.Chapters {
			_, err := tx.Exec(`
				INSERT INTO chapters (group_id, id, title, sort_order, position)
				VALUES (?, ?, ?, ?, ?)
			`, groupID, ch.ID, ch.Title, ch.Order, ci)
			if err != nil {
				return fmt.Errorf("failed to insert chapter %q: %w", ch.ID, err)
			}

			for pi, page := range ch.Pages {
				_, err := tx.Exec(`
					INSERT INTO images (path, width, height, position, chapter_group_id, chapter_id)
					VALUES (?, ?, ?, ?, ?, ?)
				`, page.Path, page.Width, page.Height, pi, groupID, ch.ID)
				if err != nil {
					return fmt.Errorf("failed to insert page %d of chapter %q: %w", pi, ch.ID, err)
				}
			}
		}
	}

	return tx.Commit()
}

// FetchManga returns the full cached tree for one source ref: the manga row,
// its cover and the ordered chapter groups with their ordered chapters.
// Pages are loaded on demand through FetchChapterPages. Returns
// models.ErrNotFound when nothing is cached for the ref.
func (s *Store) FetchManga(ref models.SourceRef) (*models.Manga, error) {
	m := &models.Manga{ID: ref.MangaID, PluginID: ref.PluginID}
	var authors, genres string
	var cachedAt time.Time

	err := s.db.QueryRow(`
		SELECT title, status, description, authors, genres, latest_chapter_id, updated_at, cached_at
		FROM manga WHERE id = ? AND plugin_id = ?
	`, ref.MangaID, ref.PluginID).Scan(
		&m.Title, &m.Status, &m.Description, &authors, &genres,
		&m.LatestChapterID, &m.UpdatedAt, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manga %s/%s: %w", ref.PluginID, ref.MangaID, err)
	}
	m.Authors = splitList(authors)
	m.Genres = splitList(genres)
	m.CachedAt = &cachedAt

	cover := &models.Image{}
	err = s.db.QueryRow(`
		SELECT path, width, height FROM images
		WHERE manga_id = ? AND manga_plugin_id = ?
		ORDER BY position LIMIT 1
	`, ref.MangaID, ref.PluginID).Scan(&cover.Path, &cover.Width, &cover.Height)
	if err == nil {
		m.Cover = cover
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to fetch cover: %w", err)
	}

	groups, err := s.fetchChapterGroups(ref)
	if err != nil {
		return nil, err
	}
	m.Groups = groups

	return m, nil
}

func (s *Store) fetchChapterGroups(ref models.SourceRef) ([]*models.ChapterGroup, error) {
	rows, err := s.db.Query(`
		SELECT id, title FROM chapter_groups
		WHERE manga_id = ? AND plugin_id = ?
		ORDER BY position
	`, ref.MangaID, ref.PluginID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chapter groups: %w", err)
	}
	defer rows.Close()

	groups := []*models.ChapterGroup{}
	for rows.Next() {
		g := &models.ChapterGroup{}
		if err := rows.Scan(&g.ID, &g.Title); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, g := range groups {
		chRows, err := s.db.Query(`
			SELECT id, title, sort_order FROM chapters
			WHERE group_id = ? ORDER BY position
		`, g.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch chapters of group %d: %w", g.ID, err)
		}
		g.Chapters = []*models.Chapter{}
		for chRows.Next() {
			ch := &models.Chapter{}
			if err := chRows.Scan(&ch.ID, &ch.Title, &ch.Order); err != nil {
				chRows.Close()
				return nil, err
			}
			g.Chapters = append(g.Chapters, ch)
		}
		chRows.Close()
		if err := chRows.Err(); err != nil {
			return nil, err
		}
	}

	return groups, nil
}

// FetchChapterPages returns the ordered page images cached for a chapter of
// the given manga.
func (s *Store) FetchChapterPages(ref models.SourceRef, chapterID string) ([]*models.Image, error) {
	rows, err := s.db.Query(`
		SELECT i.path, i.width, i.height
		FROM images i
		JOIN chapter_groups g ON i.chapter_group_id = g.id
		WHERE g.manga_id = ? AND g.plugin_id = ? AND i.chapter_id = ?
		ORDER BY i.position
	`, ref.MangaID, ref.PluginID, chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pages of chapter %q: %w", chapterID, err)
	}
	defer rows.Close()

	pages := []*models.Image{}
	for rows.Next() {
		img := &models.Image{}
		if err := rows.Scan(&img.Path, &img.Width, &img.Height); err != nil {
			return nil, err
		}
		pages = append(pages, img)
	}
	return pages, rows.Err()
}

// UpsertChapterPages replaces the cached pages of one chapter.
func (s *Store) UpsertChapterPages(ref models.SourceRef, chapterID string, pages []*models.Image) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var groupID int64
	err = tx.QueryRow(`
		SELECT c.group_id FROM chapters c
		JOIN chapter_groups g ON c.group_id = g.id
		WHERE g.manga_id = ? AND g.plugin_id = ? AND c.id = ?
	`, ref.MangaID, ref.PluginID, chapterID).Scan(&groupID)
	if err == sql.ErrNoRows {
		return models.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to locate chapter %q: %w", chapterID, err)
	}

	if _, err := tx.Exec("DELETE FROM images WHERE chapter_group_id = ? AND chapter_id = ?", groupID, chapterID); err != nil {
		return fmt.Errorf("failed to clear pages: %w", err)
	}
	for pi, page := range pages {
		_, err := tx.Exec(`
			INSERT INTO images (path, width, height, position, chapter_group_id, chapter_id)
			VALUES (?, ?, ?, ?, ?, ?)
		`, page.Path, page.Width, page.Height, pi, groupID, chapterID)
		if err != nil {
			return fmt.Errorf("failed to insert page %d: %w", pi, err)
		}
	}

	return tx.Commit()
}

// DeleteManga removes the cached tree for one source ref. The cascade rules
// take the chapter groups, chapters, images, reading record and saved entry
// with it, and nothing keyed under a different plugin id.
func (s *Store) DeleteManga(ref models.SourceRef) error {
	_, err := s.db.Exec("DELETE FROM manga WHERE id = ? AND plugin_id = ?", ref.MangaID, ref.PluginID)
	if err != nil {
		return fmt.Errorf("failed to delete manga %s/%s: %w", ref.PluginID, ref.MangaID, err)
	}
	return nil
}
