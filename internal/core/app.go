package core

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/capability"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/config"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/db"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/registry"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/store"
	syncengine "github.com/nohackjustnoobb/Mankai-sub001/internal/sync"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/websocket"
)

// App wires the shared components: configuration, database, plugin
// registry and the sync engine.
type App struct {
	cfg      *config.Config
	database *sql.DB
	st       *store.Store
	registry *registry.Registry
	engine   *syncengine.Engine
	hub      *websocket.Hub
}

// New loads configuration, opens the database, applies migrations and
// builds the component graph.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := db.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	app, err := NewFromComponents(cfg, database)
	if err != nil {
		database.Close()
		return nil, err
	}
	log.Println("Core application setup complete.")
	return app, nil
}

// NewFromComponents wires an App around an already opened, migrated
// database. Tests use it with an in-memory database.
func NewFromComponents(cfg *config.Config, database *sql.DB) (*App, error) {
	keeper, err := capability.LoadKeeper(cfg.Data.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load capability keeper: %w", err)
	}

	st := store.New(database)
	reg := registry.New(st, keeper)
	hub := websocket.NewHub()
	engine := syncengine.New(st, reg, cfg, hub)

	return &App{
		cfg:      cfg,
		database: database,
		st:       st,
		registry: reg,
		engine:   engine,
		hub:      hub,
	}, nil
}

func (a *App) Config() *config.Config       { return a.cfg }
func (a *App) DB() *sql.DB                  { return a.database }
func (a *App) Store() *store.Store          { return a.st }
func (a *App) Registry() *registry.Registry { return a.registry }
func (a *App) Engine() *syncengine.Engine   { return a.engine }
func (a *App) Hub() *websocket.Hub          { return a.hub }

// Close releases adapters, the scheduler and the database.
func (a *App) Close() {
	if a.engine != nil {
		a.engine.Stop()
	}
	if a.registry != nil {
		a.registry.Close()
	}
	if a.database != nil {
		a.database.Close()
	}
}
