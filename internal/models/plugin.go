package models

import (
	"encoding/json"
	"fmt"
)

// PluginKind discriminates the three plugin variants.
type PluginKind string

const (
	KindFilesystem PluginKind = "filesystem"
	KindHTTP       PluginKind = "http"
	KindScript     PluginKind = "script"
)

// Valid reports whether k is one of the three known kinds.
func (k PluginKind) Valid() bool {
	switch k {
	case KindFilesystem, KindHTTP, KindScript:
		return true
	}
	return false
}

// PluginMeta is the display manifest of an HTTP or script plugin.
type PluginMeta struct {
	Name       string `json:"name"`
	Icon       string `json:"icon,omitempty"`
	Version    string `json:"version"`
	APIVersion string `json:"api_version,omitempty"`
}

// PluginDescriptor is the registry's public view of one installed plugin,
// whatever its kind. Variant-specific payloads are populated for the
// matching kind only. The filesystem root token is deliberately absent: it
// is persisted but never leaves the registry.
type PluginDescriptor struct {
	ID             string            `json:"id"`
	Kind           PluginKind        `json:"kind"`
	Enabled        bool              `json:"enabled"`
	NeedsAttention bool              `json:"needs_attention"`
	Meta           *PluginMeta       `json:"meta,omitempty"`
	ConfigValues   map[string]string `json:"config_values,omitempty"`

	// Filesystem variant.
	IsWriteable bool `json:"is_writeable,omitempty"`

	// HTTP variant.
	BaseURL string `json:"base_url,omitempty"`
}

// DisplayName returns the manifest name when present, the id otherwise.
func (d *PluginDescriptor) DisplayName() string {
	if d.Meta != nil && d.Meta.Name != "" {
		return d.Meta.Name
	}
	return d.ID
}

// EncodeConfigValues serializes a config map for storage.
func EncodeConfigValues(values map[string]string) (string, error) {
	if values == nil {
		values = map[string]string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode config values: %w", err)
	}
	return string(data), nil
}

// DecodeConfigValues parses a stored config map.
func DecodeConfigValues(raw string) (map[string]string, error) {
	values := make(map[string]string)
	if raw == "" {
		return values, nil
	}
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode config values: %w", err)
	}
	return values, nil
}
