package store_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/store"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/testutil"
)

func TestPluginVariants(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	require.NoError(t, s.CreateFilesystemPlugin("fs-1", true, []byte{1, 2, 3}))
	require.NoError(t, s.CreateHTTPPlugin("http-1", "https://api.example.com",
		&models.PluginMeta{Name: "Example", Version: "1.0.0"},
		map[string]string{"token": "secret"}))
	require.NoError(t, s.CreateScriptPlugin("js-1",
		&models.PluginMeta{Name: "Scripted", Version: "0.2.0", APIVersion: "1.0"},
		nil, "exports.listLibrary = function() { return []; };"))

	t.Run("filesystem descriptor", func(t *testing.T) {
		d, err := s.GetPlugin("fs-1")
		require.NoError(t, err)
		assert.Equal(t, models.KindFilesystem, d.Kind)
		assert.True(t, d.IsWriteable)
		assert.True(t, d.Enabled)
		assert.Equal(t, "fs-1", d.DisplayName())

		token, err := s.GetFilesystemToken("fs-1")
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, token)
	})

	t.Run("http descriptor", func(t *testing.T) {
		d, err := s.GetPlugin("http-1")
		require.NoError(t, err)
		assert.Equal(t, models.KindHTTP, d.Kind)
		assert.Equal(t, "https://api.example.com", d.BaseURL)
		require.NotNil(t, d.Meta)
		assert.Equal(t, "Example", d.Meta.Name)
		assert.Equal(t, "secret", d.ConfigValues["token"])
		assert.Equal(t, "Example", d.DisplayName())
	})

	t.Run("script descriptor", func(t *testing.T) {
		d, err := s.GetPlugin("js-1")
		require.NoError(t, err)
		assert.Equal(t, models.KindScript, d.Kind)

		script, err := s.GetScript("js-1")
		require.NoError(t, err)
		assert.Contains(t, script, "listLibrary")
	})

	t.Run("unknown plugin", func(t *testing.T) {
		_, err := s.GetPlugin("ghost")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestPluginIDIsGloballyUnique(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	require.NoError(t, s.CreateFilesystemPlugin("dup", false, []byte{9}))

	// The same id must be rejected for every kind, not just the same one.
	if err := s.CreateHTTPPlugin("dup", "https://x", nil, nil); err == nil {
		t.Error("expected duplicate id across kinds to fail")
	}
	if err := s.CreateScriptPlugin("dup", nil, nil, ""); err == nil {
		t.Error("expected duplicate id across kinds to fail")
	}

	exists, err := s.PluginExists("dup")
	require.NoError(t, err)
	assert.True(t, exists)

	// Failed installs must not leave variant rows behind.
	var rows int
	db.QueryRow("SELECT COUNT(*) FROM http_plugins").Scan(&rows)
	assert.Zero(t, rows)
}

func TestEnableDisable(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	require.NoError(t, s.CreateHTTPPlugin("a", "https://a", nil, nil))
	require.NoError(t, s.CreateHTTPPlugin("b", "https://b", nil, nil))
	require.NoError(t, s.SetPluginEnabled("b", false))

	enabled, err := s.ListEnabledPlugins()
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "a", enabled[0].ID)

	all, err := s.ListPlugins()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, s.SetPluginEnabled("ghost", true), models.ErrNotFound)
}

func TestUninstallCascades(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	require.NoError(t, s.CreateScriptPlugin("js-1", nil, nil, "exports = {}"))
	require.NoError(t, s.SetValue("js-1", "cursor", "42"))
	require.NoError(t, s.UpsertMangaTree(sampleTree("m1", "js-1")))
	require.NoError(t, s.UpsertSavedEntry(&models.SavedEntry{MangaID: "m1", PluginID: "js-1"}))

	require.NoError(t, s.DeletePlugin("js-1"))

	_, err := s.GetPlugin("js-1")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, ok, err := s.GetValue("js-1", "cursor")
	require.NoError(t, err)
	assert.False(t, ok, "key-value namespace should be wiped on uninstall")

	_, err = s.FetchManga(models.SourceRef{MangaID: "m1", PluginID: "js-1"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, s.DeletePlugin("js-1"), models.ErrNotFound)
}

func TestPluginStorageIsolation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	require.NoError(t, s.CreateScriptPlugin("a", nil, nil, ""))
	require.NoError(t, s.CreateScriptPlugin("b", nil, nil, ""))

	require.NoError(t, s.SetValue("a", "shared-key", "from a"))
	require.NoError(t, s.SetValue("b", "shared-key", "from b"))

	va, ok, err := s.GetValue("a", "shared-key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from a", va)

	vb, ok, err := s.GetValue("b", "shared-key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from b", vb)

	require.NoError(t, s.RemoveValue("a", "shared-key"))
	_, ok, err = s.GetValue("a", "shared-key")
	require.NoError(t, err)
	assert.False(t, ok)

	// Plugin b still reads its own value.
	vb, ok, err = s.GetValue("b", "shared-key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "from b", vb)

	// Removing a missing key is fine.
	require.NoError(t, s.RemoveValue("a", "never-set"))
}

func TestUpdateConfigAndToken(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	require.NoError(t, s.CreateHTTPPlugin("h", "https://h", nil, map[string]string{"lang": "en"}))
	require.NoError(t, s.UpdatePluginConfigValues("h", map[string]string{"lang": "ja"}))

	d, err := s.GetPlugin("h")
	require.NoError(t, err)
	assert.Equal(t, "ja", d.ConfigValues["lang"])

	require.NoError(t, s.CreateFilesystemPlugin("f", false, []byte{1}))
	require.NoError(t, s.UpdateFilesystemToken("f", []byte{2, 2}, true))
	token, err := s.GetFilesystemToken("f")
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 2}, token)

	d, err = s.GetPlugin("f")
	require.NoError(t, err)
	assert.True(t, d.IsWriteable)

	if err := s.UpdatePluginConfigValues("f", nil); err == nil {
		t.Error("filesystem plugins have no config values; expected error")
	}

	require.NoError(t, s.SetPluginNeedsAttention("f", true))
	d, err = s.GetPlugin("f")
	require.NoError(t, err)
	assert.True(t, d.NeedsAttention)
}

func TestSavedEntryLifecycle(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)
	installTestPlugin(t, s, "p1")
	require.NoError(t, s.UpsertMangaTree(sampleTree("m1", "p1")))

	ref := models.SourceRef{MangaID: "m1", PluginID: "p1"}
	require.NoError(t, s.UpsertSavedEntry(&models.SavedEntry{MangaID: "m1", PluginID: "p1", LatestChapter: "c2||"}))

	require.NoError(t, s.MarkSavedEntryChecked(ref, true, "c3||"))
	e, err := s.GetSavedEntry(ref)
	require.NoError(t, err)
	assert.True(t, e.Updates)
	assert.Equal(t, "c3||", e.LatestChapter)

	require.NoError(t, s.ClearSavedEntryUpdates(ref))
	e, err = s.GetSavedEntry(ref)
	require.NoError(t, err)
	assert.False(t, e.Updates)

	entries, err := s.ListSavedEntriesForPlugin("p1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, s.DeleteSavedEntry(ref))
	_, err = s.GetSavedEntry(ref)
	assert.ErrorIs(t, err, models.ErrNotFound)

	// The cache tree is untouched by unsaving.
	if _, err := s.FetchManga(ref); err != nil {
		t.Errorf("cache tree should survive unsave: %v", err)
	}

	if err := s.MarkSavedEntryChecked(ref, false, ""); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
