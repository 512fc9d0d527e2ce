package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
)

func refFromRequest(r *http.Request) models.SourceRef {
	return models.SourceRef{
		PluginID: chi.URLParam(r, "pluginID"),
		MangaID:  chi.URLParam(r, "mangaID"),
	}
}

// handleGetManga serves the cached tree when it is fresh, otherwise asks
// the plugin for a new one. A stale cache still beats a dead source, so
// fetch failures fall back to whatever is cached.
func (s *Server) handleGetManga(w http.ResponseWriter, r *http.Request) {
	ref := refFromRequest(r)
	forceRefresh := r.URL.Query().Get("refresh") != ""

	cached, cacheErr := s.store.FetchManga(ref)
	if cacheErr != nil && !errors.Is(cacheErr, models.ErrNotFound) {
		RespondWithError(w, http.StatusInternalServerError, "Failed to read cache")
		return
	}

	if cached != nil && !forceRefresh && s.cacheFresh(cached.CachedAt) {
		RespondWithJSON(w, http.StatusOK, cached)
		return
	}

	adapter, err := s.reg.Adapter(ref.PluginID)
	if err != nil {
		if cached != nil {
			RespondWithJSON(w, http.StatusOK, cached)
			return
		}
		RespondWithError(w, http.StatusBadGateway, err.Error())
		return
	}

	m, err := adapter.FetchDetail(r.Context(), ref.MangaID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "Manga not found")
			return
		}
		if cached != nil {
			log.Printf("[%s] detail fetch failed, serving cache: %v", ref.PluginID, err)
			RespondWithJSON(w, http.StatusOK, cached)
			return
		}
		RespondWithError(w, http.StatusBadGateway, err.Error())
		return
	}

	if err := s.store.UpsertMangaTree(m); err != nil {
		log.Printf("[%s] failed to cache manga %s: %v", ref.PluginID, ref.MangaID, err)
	}
	RespondWithJSON(w, http.StatusOK, m)
}

func (s *Server) cacheFresh(cachedAt *time.Time) bool {
	if cachedAt == nil {
		return false
	}
	ttl := s.app.Config().CacheTTLDuration()
	if ttl == 0 {
		return true
	}
	return time.Since(*cachedAt) < ttl
}

func (s *Server) handleDeleteManga(w http.ResponseWriter, r *http.Request) {
	ref := refFromRequest(r)
	if err := s.store.DeleteManga(ref); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to delete manga")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Manga deleted"})
}

func (s *Server) handleGetChapterPages(w http.ResponseWriter, r *http.Request) {
	ref := refFromRequest(r)
	chapterID := chi.URLParam(r, "chapterID")

	pages, err := s.store.FetchChapterPages(ref, chapterID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		RespondWithError(w, http.StatusInternalServerError, "Failed to read cache")
		return
	}
	if len(pages) > 0 {
		RespondWithJSON(w, http.StatusOK, pages)
		return
	}

	adapter, err := s.reg.Adapter(ref.PluginID)
	if err != nil {
		RespondWithError(w, http.StatusBadGateway, err.Error())
		return
	}
	pages, err = adapter.FetchChapterPages(r.Context(), ref.MangaID, chapterID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "Chapter not found")
			return
		}
		RespondWithError(w, http.StatusBadGateway, err.Error())
		return
	}

	if err := s.store.UpsertChapterPages(ref, chapterID, pages); err != nil {
		log.Printf("[%s] failed to cache pages for %s/%s: %v", ref.PluginID, ref.MangaID, chapterID, err)
	}
	RespondWithJSON(w, http.StatusOK, pages)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	ref := refFromRequest(r)
	record, err := s.store.GetReadingRecord(ref)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "No reading record")
			return
		}
		RespondWithError(w, http.StatusInternalServerError, "Failed to get reading record")
		return
	}
	RespondWithJSON(w, http.StatusOK, record)
}

func (s *Server) handleUpdateProgress(w http.ResponseWriter, r *http.Request) {
	ref := refFromRequest(r)
	var req struct {
		Page         int     `json:"page"`
		ChapterID    *string `json:"chapter_id,omitempty"`
		ChapterTitle *string `json:"chapter_title,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record := &models.ReadingRecord{
		MangaID:      ref.MangaID,
		PluginID:     ref.PluginID,
		Datetime:     time.Now(),
		Page:         req.Page,
		ChapterID:    req.ChapterID,
		ChapterTitle: req.ChapterTitle,
	}
	if err := s.store.UpsertReadingRecord(record); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to save reading record")
		return
	}
	RespondWithJSON(w, http.StatusOK, record)
}
