package testutil

import (
	"testing"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/config"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/core"
)

// SetupTestApp wires a full application around an in-memory database and a
// throwaway data directory. The sync scheduler is not started.
func SetupTestApp(t *testing.T) *core.App {
	t.Helper()

	database := SetupTestDB(t)

	cfg := &config.Config{}
	cfg.Port = 0
	cfg.Data.Path = t.TempDir()
	cfg.CacheTTL = 60
	cfg.GroupingSensitivity = 0.5
	cfg.Sync.Interval = 0
	cfg.Sync.MinInterval = 5

	app, err := core.NewFromComponents(cfg, database)
	if err != nil {
		t.Fatalf("Failed to build test app: %v", err)
	}

	go app.Hub().Run()
	t.Cleanup(func() {
		app.Engine().Stop()
		app.Registry().Close()
	})

	return app
}
