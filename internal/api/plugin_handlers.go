package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
)

type installPluginRequest struct {
	ID   string            `json:"id"`
	Kind models.PluginKind `json:"kind"`
	Meta *models.PluginMeta `json:"meta,omitempty"`

	// Filesystem.
	RootPath string `json:"root_path,omitempty"`

	// HTTP.
	BaseURL string `json:"base_url,omitempty"`

	// Script.
	Script string `json:"script,omitempty"`

	ConfigValues map[string]string `json:"config_values,omitempty"`
}

func (s *Server) handleListPlugins(w http.ResponseWriter, r *http.Request) {
	plugins, err := s.reg.List()
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to list plugins")
		return
	}
	RespondWithJSON(w, http.StatusOK, plugins)
}

func (s *Server) handleGetPlugin(w http.ResponseWriter, r *http.Request) {
	d, err := s.reg.Get(chi.URLParam(r, "pluginID"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "Plugin not found")
			return
		}
		RespondWithError(w, http.StatusInternalServerError, "Failed to get plugin")
		return
	}
	RespondWithJSON(w, http.StatusOK, d)
}

func (s *Server) handleInstallPlugin(w http.ResponseWriter, r *http.Request) {
	var req installPluginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var (
		d   *models.PluginDescriptor
		err error
	)
	switch req.Kind {
	case models.KindFilesystem:
		d, err = s.reg.InstallFilesystem(req.ID, req.RootPath)
	case models.KindHTTP:
		d, err = s.reg.InstallHTTP(req.ID, req.BaseURL, req.Meta, req.ConfigValues)
	case models.KindScript:
		d, err = s.reg.InstallScript(req.ID, req.Meta, req.ConfigValues, req.Script)
	default:
		RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("Unknown plugin kind %q", req.Kind))
		return
	}
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusCreated, d)
}

func (s *Server) handleUninstallPlugin(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginID")

	// Abandon any in-flight refresh before the cascade removes its rows.
	s.engine.CancelPlugin(pluginID)

	if err := s.reg.Uninstall(pluginID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "Plugin not found")
			return
		}
		RespondWithError(w, http.StatusInternalServerError, "Failed to uninstall plugin")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Plugin uninstalled"})
}

func (s *Server) handleSetPluginEnabled(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginID")
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !req.Enabled {
		s.engine.CancelPlugin(pluginID)
	}
	if err := s.reg.SetEnabled(pluginID, req.Enabled); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "Plugin not found")
			return
		}
		RespondWithError(w, http.StatusInternalServerError, "Failed to update plugin")
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}

func (s *Server) handleReauthorizePlugin(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginID")
	var req struct {
		RootPath     string            `json:"root_path,omitempty"`
		ConfigValues map[string]string `json:"config_values,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	d, err := s.reg.Get(pluginID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			RespondWithError(w, http.StatusNotFound, "Plugin not found")
			return
		}
		RespondWithError(w, http.StatusInternalServerError, "Failed to get plugin")
		return
	}

	if d.Kind == models.KindFilesystem {
		err = s.reg.ReauthorizeFilesystem(pluginID, req.RootPath)
	} else {
		err = s.reg.UpdateConfig(pluginID, req.ConfigValues)
	}
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{"message": "Plugin re-authorized"})
}

// handleListLibrary returns the source's own catalog, summaries only.
func (s *Server) handleListLibrary(w http.ResponseWriter, r *http.Request) {
	pluginID := chi.URLParam(r, "pluginID")
	adapter, err := s.reg.Adapter(pluginID)
	if err != nil {
		RespondWithError(w, http.StatusBadGateway, err.Error())
		return
	}
	mangas, err := adapter.ListLibrary(r.Context())
	if err != nil {
		RespondWithError(w, http.StatusBadGateway, err.Error())
		return
	}
	RespondWithJSON(w, http.StatusOK, mangas)
}
