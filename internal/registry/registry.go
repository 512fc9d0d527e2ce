// Package registry manages installed plugins: validation at install
// time, the live adapter per plugin, and teardown on uninstall.
package registry

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/dop251/goja"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/capability"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/sandbox"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source/filesystem"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source/httpsource"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source/script"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/store"
)

// HostAPIVersion is the script API this host implements. A script
// declaring a different major version is rejected at install time.
const HostAPIVersion = "1.0"

// Registry owns the plugin table and the live adapters built from it.
type Registry struct {
	st     *store.Store
	keeper *capability.Keeper

	mu       sync.Mutex
	adapters map[string]source.Adapter
	onChange func(pluginID string)
}

// New builds a registry over the store and the capability keeper.
func New(st *store.Store, keeper *capability.Keeper) *Registry {
	return &Registry{
		st:       st,
		keeper:   keeper,
		adapters: make(map[string]source.Adapter),
	}
}

// SetChangeNotifier registers the callback invoked when a plugin's
// content changed out of band (currently filesystem watcher events).
func (r *Registry) SetChangeNotifier(fn func(pluginID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

func (r *Registry) notify(pluginID string) {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn(pluginID)
	}
}

func (r *Registry) checkNewID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("plugin id cannot be empty")
	}
	exists, err := r.st.PluginExists(id)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("plugin %q is already installed", id)
	}
	return nil
}

// InstallFilesystem seals the root directory into a capability token
// and registers the plugin. The token is persisted and never logged.
func (r *Registry) InstallFilesystem(id, rootPath string) (*models.PluginDescriptor, error) {
	if err := r.checkNewID(id); err != nil {
		return nil, err
	}
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("root path is not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path %q is not a directory", rootPath)
	}

	token, err := r.keeper.Seal(rootPath)
	if err != nil {
		return nil, err
	}
	writeable := r.keeper.Writeable(token)

	if err := r.st.CreateFilesystemPlugin(id, writeable, token); err != nil {
		return nil, err
	}
	log.Printf("[%s] installed filesystem plugin", id)
	return r.st.GetPlugin(id)
}

// InstallHTTP registers a remote-server plugin.
func (r *Registry) InstallHTTP(id, baseURL string, meta *models.PluginMeta, config map[string]string) (*models.PluginDescriptor, error) {
	if err := r.checkNewID(id); err != nil {
		return nil, err
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", baseURL)
	}

	if err := r.st.CreateHTTPPlugin(id, strings.TrimRight(baseURL, "/"), meta, config); err != nil {
		return nil, err
	}
	log.Printf("[%s] installed http plugin", id)
	return r.st.GetPlugin(id)
}

// InstallScript validates the manifest and compiles the script before
// registering it. The script runs only on first use.
func (r *Registry) InstallScript(id string, meta *models.PluginMeta, config map[string]string, scriptSource string) (*models.PluginDescriptor, error) {
	if err := r.checkNewID(id); err != nil {
		return nil, err
	}
	if err := validateScriptMeta(meta); err != nil {
		return nil, err
	}
	if _, err := goja.Compile(id+".js", scriptSource, true); err != nil {
		return nil, fmt.Errorf("script does not compile: %w", err)
	}

	if err := r.st.CreateScriptPlugin(id, meta, config, scriptSource); err != nil {
		return nil, err
	}
	log.Printf("[%s] installed script plugin", id)
	return r.st.GetPlugin(id)
}

// validateScriptMeta enforces a parsable version and a compatible API
// major version.
func validateScriptMeta(meta *models.PluginMeta) error {
	if meta == nil {
		return fmt.Errorf("script plugins require a manifest")
	}
	if meta.Name == "" {
		return fmt.Errorf("manifest missing name")
	}
	v := strings.TrimPrefix(meta.Version, "v")
	if _, err := semver.NewVersion(v); err != nil {
		return fmt.Errorf("invalid manifest version %q: %w", meta.Version, err)
	}
	apiVersion, err := semver.NewVersion(strings.TrimPrefix(meta.APIVersion, "v"))
	if err != nil {
		return fmt.Errorf("invalid api version %q: %w", meta.APIVersion, err)
	}
	host := semver.MustParse(HostAPIVersion)
	if apiVersion.Major() != host.Major() {
		return fmt.Errorf("plugin requires api version %s, host provides %s", meta.APIVersion, HostAPIVersion)
	}
	return nil
}

// Uninstall tears down the live adapter and removes the plugin with all
// its cached content, storage and bookmarks.
func (r *Registry) Uninstall(id string) error {
	r.closeAdapter(id)
	if err := r.st.DeletePlugin(id); err != nil {
		return err
	}
	log.Printf("[%s] uninstalled", id)
	return nil
}

// Get returns the stored descriptor for one plugin.
func (r *Registry) Get(id string) (*models.PluginDescriptor, error) {
	return r.st.GetPlugin(id)
}

// List returns every installed plugin.
func (r *Registry) List() ([]*models.PluginDescriptor, error) {
	return r.st.ListPlugins()
}

// ListEnabled returns plugins eligible for sync and browsing.
func (r *Registry) ListEnabled() ([]*models.PluginDescriptor, error) {
	return r.st.ListEnabledPlugins()
}

// SetEnabled flips a plugin's enabled switch. Disabling retires its
// adapter so in-flight work is abandoned.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	if err := r.st.SetPluginEnabled(id, enabled); err != nil {
		return err
	}
	if !enabled {
		r.closeAdapter(id)
	}
	return nil
}

// MarkNeedsAttention flags a plugin for user re-authorization and
// retires its adapter.
func (r *Registry) MarkNeedsAttention(id string) error {
	if err := r.st.SetPluginNeedsAttention(id, true); err != nil {
		return err
	}
	r.closeAdapter(id)
	return nil
}

// ReauthorizeFilesystem replaces a filesystem plugin's capability token
// with one sealed over rootPath and clears the attention flag.
func (r *Registry) ReauthorizeFilesystem(id, rootPath string) error {
	d, err := r.st.GetPlugin(id)
	if err != nil {
		return err
	}
	if d.Kind != models.KindFilesystem {
		return fmt.Errorf("plugin %q is not a filesystem plugin", id)
	}
	info, err := os.Stat(rootPath)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("root path %q is not a directory", rootPath)
	}

	token, err := r.keeper.Seal(rootPath)
	if err != nil {
		return err
	}
	if err := r.st.UpdateFilesystemToken(id, token, r.keeper.Writeable(token)); err != nil {
		return err
	}
	if err := r.st.SetPluginNeedsAttention(id, false); err != nil {
		return err
	}
	r.closeAdapter(id)
	return nil
}

// UpdateConfig rewrites an HTTP or script plugin's settings and clears
// the attention flag, retiring any live adapter so the new values take
// effect.
func (r *Registry) UpdateConfig(id string, values map[string]string) error {
	if err := r.st.UpdatePluginConfigValues(id, values); err != nil {
		return err
	}
	if err := r.st.SetPluginNeedsAttention(id, false); err != nil {
		return err
	}
	r.closeAdapter(id)
	return nil
}

// Adapter returns the live adapter for one enabled plugin, building it
// on first use.
func (r *Registry) Adapter(id string) (source.Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.adapters[id]; ok {
		return a, nil
	}

	d, err := r.st.GetPlugin(id)
	if err != nil {
		return nil, err
	}
	if !d.Enabled {
		return nil, fmt.Errorf("plugin %q is disabled", id)
	}

	a, err := r.buildAdapter(d)
	if err != nil {
		return nil, err
	}
	r.adapters[id] = a
	return a, nil
}

func (r *Registry) buildAdapter(d *models.PluginDescriptor) (source.Adapter, error) {
	switch d.Kind {
	case models.KindFilesystem:
		token, err := r.st.GetFilesystemToken(d.ID)
		if err != nil {
			return nil, err
		}
		root, err := r.keeper.Resolve(token)
		if err != nil {
			// A revoked token means the plugin needs the user, not a retry.
			r.st.SetPluginNeedsAttention(d.ID, true)
			return nil, source.NewError(d.ID, "resolve root", source.KindAuthExpired, "capability token revoked", err)
		}
		a := filesystem.New(d, root)
		if err := a.StartWatcher(func() { r.notify(d.ID) }); err != nil {
			log.Printf("[%s] could not start watcher: %v", d.ID, err)
		}
		return a, nil

	case models.KindHTTP:
		return httpsource.New(d), nil

	case models.KindScript:
		src, err := r.st.GetScript(d.ID)
		if err != nil {
			return nil, err
		}
		box := sandbox.New(d.ID, src, d.ConfigValues, r.st)
		return script.New(d, box), nil
	}
	return nil, fmt.Errorf("unknown plugin kind %q", d.Kind)
}

func (r *Registry) closeAdapter(id string) {
	r.mu.Lock()
	a, ok := r.adapters[id]
	delete(r.adapters, id)
	r.mu.Unlock()
	if ok {
		if err := a.Close(); err != nil {
			log.Printf("[%s] adapter close: %v", id, err)
		}
	}
}

// Close retires every live adapter.
func (r *Registry) Close() {
	r.mu.Lock()
	adapters := r.adapters
	r.adapters = make(map[string]source.Adapter)
	r.mu.Unlock()

	for id, a := range adapters {
		if err := a.Close(); err != nil {
			log.Printf("[%s] adapter close: %v", id, err)
		}
	}
}
