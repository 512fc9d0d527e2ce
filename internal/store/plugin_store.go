package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
)

// CreateFilesystemPlugin inserts the registry rows for a filesystem plugin.
// The base row and the variant row land in one transaction; the primary key
// on plugins.id is what enforces global uniqueness across all three kinds.
func (s *Store) CreateFilesystemPlugin(id string, isWriteable bool, rootToken []byte) error {
	return s.createPlugin(id, models.KindFilesystem, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO filesystem_plugins (plugin_id, is_writeable, root_token)
			VALUES (?, ?, ?)
		`, id, isWriteable, rootToken)
		return err
	})
}

// CreateHTTPPlugin inserts the registry rows for an HTTP plugin.
func (s *Store) CreateHTTPPlugin(id, baseURL string, meta *models.PluginMeta, configValues map[string]string) error {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	configJSON, err := models.EncodeConfigValues(configValues)
	if err != nil {
		return err
	}
	return s.createPlugin(id, models.KindHTTP, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO http_plugins (plugin_id, base_url, meta, config_values)
			VALUES (?, ?, ?, ?)
		`, id, baseURL, metaJSON, configJSON)
		return err
	})
}

// CreateScriptPlugin inserts the registry rows for a script plugin,
// including the script source itself.
func (s *Store) CreateScriptPlugin(id string, meta *models.PluginMeta, configValues map[string]string, script string) error {
	metaJSON, err := encodeMeta(meta)
	if err != nil {
		return err
	}
	configJSON, err := models.EncodeConfigValues(configValues)
	if err != nil {
		return err
	}
	return s.createPlugin(id, models.KindScript, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO script_plugins (plugin_id, meta, config_values, script)
			VALUES (?, ?, ?, ?)
		`, id, metaJSON, configJSON, script)
		return err
	})
}

func (s *Store) createPlugin(id string, kind models.PluginKind, insertVariant func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT INTO plugins (id, kind) VALUES (?, ?)", id, string(kind)); err != nil {
		return fmt.Errorf("failed to insert plugin %q: %w", id, err)
	}
	if err := insertVariant(tx); err != nil {
		return fmt.Errorf("failed to insert %s variant for %q: %w", kind, id, err)
	}
	return tx.Commit()
}

// DeletePlugin removes the base row of a plugin. The foreign keys cascade
// through the variant row, the key-value namespace and every cached manga
// tree (and thus reading records and saved entries) keyed by the id.
func (s *Store) DeletePlugin(id string) error {
	res, err := s.db.Exec("DELETE FROM plugins WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete plugin %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// PluginExists reports whether any plugin, of any kind, holds the id.
func (s *Store) PluginExists(id string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM plugins WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetPlugin assembles the descriptor of one plugin from its base and
// variant rows. Returns models.ErrNotFound for unknown ids.
func (s *Store) GetPlugin(id string) (*models.PluginDescriptor, error) {
	d := &models.PluginDescriptor{ID: id}
	var kind string
	err := s.db.QueryRow(`
		SELECT kind, enabled, needs_attention FROM plugins WHERE id = ?
	`, id).Scan(&kind, &d.Enabled, &d.NeedsAttention)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plugin %q: %w", id, err)
	}
	d.Kind = models.PluginKind(kind)

	switch d.Kind {
	case models.KindFilesystem:
		err = s.db.QueryRow("SELECT is_writeable FROM filesystem_plugins WHERE plugin_id = ?", id).
			Scan(&d.IsWriteable)
	case models.KindHTTP:
		var metaJSON, configJSON string
		err = s.db.QueryRow("SELECT base_url, meta, config_values FROM http_plugins WHERE plugin_id = ?", id).
			Scan(&d.BaseURL, &metaJSON, &configJSON)
		if err == nil {
			err = decodeVariant(d, metaJSON, configJSON)
		}
	case models.KindScript:
		var metaJSON, configJSON string
		err = s.db.QueryRow("SELECT meta, config_values FROM script_plugins WHERE plugin_id = ?", id).
			Scan(&metaJSON, &configJSON)
		if err == nil {
			err = decodeVariant(d, metaJSON, configJSON)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s variant of %q: %w", d.Kind, id, err)
	}
	return d, nil
}

func decodeVariant(d *models.PluginDescriptor, metaJSON, configJSON string) error {
	meta, err := decodeMeta(metaJSON)
	if err != nil {
		return err
	}
	values, err := models.DecodeConfigValues(configJSON)
	if err != nil {
		return err
	}
	d.Meta = meta
	d.ConfigValues = values
	return nil
}

// ListPlugins returns descriptors for every installed plugin.
func (s *Store) ListPlugins() ([]*models.PluginDescriptor, error) {
	return s.listPlugins("SELECT id FROM plugins ORDER BY created_at")
}

// ListEnabledPlugins returns descriptors for the plugins included in sync.
func (s *Store) ListEnabledPlugins() ([]*models.PluginDescriptor, error) {
	return s.listPlugins("SELECT id FROM plugins WHERE enabled = 1 ORDER BY created_at")
}

func (s *Store) listPlugins(query string) ([]*models.PluginDescriptor, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	descriptors := make([]*models.PluginDescriptor, 0, len(ids))
	for _, id := range ids {
		d, err := s.GetPlugin(id)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, nil
}

// SetPluginEnabled toggles a plugin in or out of sync. Cached data is kept
// either way.
func (s *Store) SetPluginEnabled(id string, enabled bool) error {
	res, err := s.db.Exec(`
		UPDATE plugins SET enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to toggle plugin %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// SetPluginNeedsAttention flags a plugin whose credentials or capability
// token expired. Flagged plugins are skipped by the sync engine until the
// user re-authorizes them.
func (s *Store) SetPluginNeedsAttention(id string, needsAttention bool) error {
	_, err := s.db.Exec(`
		UPDATE plugins SET needs_attention = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, needsAttention, id)
	return err
}

// GetFilesystemToken returns the persisted capability token of a
// filesystem plugin. Never log the returned blob.
func (s *Store) GetFilesystemToken(id string) ([]byte, error) {
	var token []byte
	err := s.db.QueryRow("SELECT root_token FROM filesystem_plugins WHERE plugin_id = ?", id).Scan(&token)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token of %q: %w", id, err)
	}
	return token, nil
}

// UpdateFilesystemToken replaces the capability token after the user
// re-authorizes the plugin's root directory.
func (s *Store) UpdateFilesystemToken(id string, token []byte, isWriteable bool) error {
	res, err := s.db.Exec(`
		UPDATE filesystem_plugins SET root_token = ?, is_writeable = ? WHERE plugin_id = ?
	`, token, isWriteable, id)
	if err != nil {
		return fmt.Errorf("failed to update token of %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// GetScript returns the stored script source of a script plugin.
func (s *Store) GetScript(id string) (string, error) {
	var script string
	err := s.db.QueryRow("SELECT script FROM script_plugins WHERE plugin_id = ?", id).Scan(&script)
	if err == sql.ErrNoRows {
		return "", models.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get script of %q: %w", id, err)
	}
	return script, nil
}

// UpdatePluginConfigValues rewrites the settings of an HTTP or script plugin.
func (s *Store) UpdatePluginConfigValues(id string, values map[string]string) error {
	configJSON, err := models.EncodeConfigValues(values)
	if err != nil {
		return err
	}
	d, err := s.GetPlugin(id)
	if err != nil {
		return err
	}
	switch d.Kind {
	case models.KindHTTP:
		_, err = s.db.Exec("UPDATE http_plugins SET config_values = ? WHERE plugin_id = ?", configJSON, id)
	case models.KindScript:
		_, err = s.db.Exec("UPDATE script_plugins SET config_values = ? WHERE plugin_id = ?", configJSON, id)
	default:
		return fmt.Errorf("plugin %q has no config values", id)
	}
	return err
}

func encodeMeta(meta *models.PluginMeta) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("failed to encode plugin meta: %w", err)
	}
	return string(data), nil
}

func decodeMeta(raw string) (*models.PluginMeta, error) {
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	meta := &models.PluginMeta{}
	if err := json.Unmarshal([]byte(raw), meta); err != nil {
		return nil, fmt.Errorf("failed to decode plugin meta: %w", err)
	}
	return meta, nil
}

// kvLock returns the mutex serializing key-value operations of one plugin.
func (s *Store) kvLock(pluginID string) *sync.Mutex {
	s.kvMu.Lock()
	defer s.kvMu.Unlock()
	mu, ok := s.kvLocks[pluginID]
	if !ok {
		mu = &sync.Mutex{}
		s.kvLocks[pluginID] = mu
	}
	return mu
}

// GetValue reads from a plugin's private key-value namespace. The empty
// string and "not found" are distinguished by the bool result.
func (s *Store) GetValue(pluginID, key string) (string, bool, error) {
	mu := s.kvLock(pluginID)
	mu.Lock()
	defer mu.Unlock()

	var value string
	err := s.db.QueryRow("SELECT value FROM plugin_storage WHERE plugin_id = ? AND key = ?", pluginID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get value %q of %q: %w", key, pluginID, err)
	}
	return value, true, nil
}

// SetValue writes into a plugin's private key-value namespace.
func (s *Store) SetValue(pluginID, key, value string) error {
	mu := s.kvLock(pluginID)
	mu.Lock()
	defer mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO plugin_storage (plugin_id, key, value) VALUES (?, ?, ?)
		ON CONFLICT(plugin_id, key) DO UPDATE SET value = excluded.value;
	`, pluginID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set value %q of %q: %w", key, pluginID, err)
	}
	return nil
}

// RemoveValue deletes one key from a plugin's namespace. Removing a missing
// key is not an error.
func (s *Store) RemoveValue(pluginID, key string) error {
	mu := s.kvLock(pluginID)
	mu.Lock()
	defer mu.Unlock()

	_, err := s.db.Exec("DELETE FROM plugin_storage WHERE plugin_id = ? AND key = ?", pluginID, key)
	return err
}
