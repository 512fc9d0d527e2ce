package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/chapterstate"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
)

func (s *Server) handleListSaved(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListSavedEntries()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to list saved entries")
		return
	}
	RespondWithJSON(w, http.StatusOK, entries)
}

// handleSaveEntry adds a manga to the saved library. The current newest
// chapter is snapshotted so the sync engine has a baseline to compare
// against; saving an unknown manga caches its tree first.
func (s *Server) handleSaveEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PluginID string `json:"plugin_id"`
		MangaID  string `json:"manga_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.PluginID == "" || req.MangaID == "" {
		RespondWithError(w, http.StatusBadRequest, "plugin_id and manga_id are required")
		return
	}
	ref := models.SourceRef{PluginID: req.PluginID, MangaID: req.MangaID}

	m, err := s.store.FetchManga(ref)
	if errors.Is(err, models.ErrNotFound) {
		adapter, aerr := s.reg.Adapter(ref.PluginID)
		if aerr != nil {
			RespondWithError(w, http.StatusBadGateway, aerr.Error())
			return
		}
		m, err = adapter.FetchDetail(r.Context(), ref.MangaID)
		if err == nil {
			err = s.store.UpsertMangaTree(m)
		}
	}
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "Manga not found")
			return
		}
		RespondWithError(w, http.StatusBadGateway, err.Error())
		return
	}

	snapshot := ""
	latest := m.LatestChapter()
	if latest == nil {
		latest = newestChapter(m)
	}
	if latest != nil {
		snapshot = chapterstate.Encode(chapterstate.Snapshot{ID: latest.ID, Title: latest.Title})
	}

	entry := &models.SavedEntry{
		MangaID:       ref.MangaID,
		PluginID:      ref.PluginID,
		Datetime:      time.Now(),
		LatestChapter: snapshot,
	}
	if err := s.store.UpsertSavedEntry(entry); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to save entry")
		return
	}
	RespondWithJSON(w, http.StatusCreated, entry)
}

// handleUnsaveEntry removes the library entry. The cached manga tree is
// kept; reading history survives unsaving.
func (s *Server) handleUnsaveEntry(w http.ResponseWriter, r *http.Request) {
	ref := refFromRequest(r)
	if err := s.store.DeleteSavedEntry(ref); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to remove saved entry")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Entry removed"})
}

func (s *Server) handleClearUpdates(w http.ResponseWriter, r *http.Request) {
	ref := refFromRequest(r)
	if err := s.store.ClearSavedEntryUpdates(ref); err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to clear updates flag")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Updates cleared"})
}

// newestChapter falls back to the last chapter of the last group when the
// source does not point out the latest one.
func newestChapter(m *models.Manga) *models.Chapter {
	for i := len(m.Groups) - 1; i >= 0; i-- {
		if n := len(m.Groups[i].Chapters); n > 0 {
			return m.Groups[i].Chapters[n-1]
		}
	}
	return nil
}
