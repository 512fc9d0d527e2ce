// The API server exposes the plugin host over HTTP: plugin management,
// cached manga queries, reading progress, the saved library and the
// sync trigger.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/core"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/registry"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/store"
	syncengine "github.com/nohackjustnoobb/Mankai-sub001/internal/sync"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/websocket"
)

// Server holds the dependencies for the API.
type Server struct {
	app    *core.App
	store  *store.Store
	reg    *registry.Registry
	engine *syncengine.Engine
	hub    *websocket.Hub
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{
		app:    app,
		store:  app.Store(),
		reg:    app.Registry(),
		engine: app.Engine(),
		hub:    app.Hub(),
	}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/config", s.handleGetConfig)

	r.Route("/api", func(r chi.Router) {
		r.Route("/plugins", func(r chi.Router) {
			r.Get("/", s.handleListPlugins)
			r.Post("/", s.handleInstallPlugin)
			r.Route("/{pluginID}", func(r chi.Router) {
				r.Get("/", s.handleGetPlugin)
				r.Delete("/", s.handleUninstallPlugin)
				r.Post("/enabled", s.handleSetPluginEnabled)
				r.Post("/reauthorize", s.handleReauthorizePlugin)
				r.Get("/library", s.handleListLibrary)
			})
		})

		r.Route("/manga/{pluginID}/{mangaID}", func(r chi.Router) {
			r.Get("/", s.handleGetManga)
			r.Delete("/", s.handleDeleteManga)
			r.Get("/chapters/{chapterID}/pages", s.handleGetChapterPages)
			r.Get("/progress", s.handleGetProgress)
			r.Post("/progress", s.handleUpdateProgress)
		})

		r.Route("/saved", func(r chi.Router) {
			r.Get("/", s.handleListSaved)
			r.Post("/", s.handleSaveEntry)
			r.Delete("/{pluginID}/{mangaID}", s.handleUnsaveEntry)
			r.Post("/{pluginID}/{mangaID}/read", s.handleClearUpdates)
		})

		r.Post("/sync", s.handleTriggerSync)
	})

	r.Get("/api/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})

	return r
}

// handleGetConfig exposes the read-only settings snapshot collaborating
// features consume.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.app.Config()
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"cache_ttl":            cfg.CacheTTL,
		"grouping_sensitivity": cfg.GroupingSensitivity,
		"sync_interval":        cfg.Sync.Interval,
		"sync_min_interval":    cfg.Sync.MinInterval,
	})
}

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	started := s.engine.Trigger()
	RespondWithJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}
