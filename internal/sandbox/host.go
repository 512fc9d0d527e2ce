package sandbox

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/transliterate"
)

// Storage is the persisted per-plugin key-value namespace. The plugin id
// comes from the owning bridge, never from the script, so one plugin can
// never address another's keys.
type Storage interface {
	GetValue(pluginID, key string) (string, bool, error)
	SetValue(pluginID, key, value string) error
	RemoveValue(pluginID, key string) error
}

// Host implements the capability side of the bridge.
type Host struct {
	pluginID string
	storage  Storage
	client   *http.Client
}

// NewHost builds the capability set for one plugin.
func NewHost(pluginID string, storage Storage) *Host {
	return &Host{
		pluginID: pluginID,
		storage:  storage,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// handle dispatches one validated request. Result must be JSON-encodable.
func (h *Host) handle(ctx context.Context, req *request) (any, error) {
	switch req.method {
	case methodLog:
		h.logMessage(req.log)
		return nil, nil
	case methodFetch:
		return h.fetch(ctx, req.fetch)
	case methodGetValue:
		value, ok, err := h.storage.GetValue(h.pluginID, req.kv.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return value, nil
	case methodSetValue:
		return nil, h.storage.SetValue(h.pluginID, req.kv.Key, req.kv.Value)
	case methodRemoveValue:
		return nil, h.storage.RemoveValue(h.pluginID, req.kv.Key)
	case methodS2T:
		return transliterate.SimplifiedToTraditional(req.convert.Text), nil
	case methodT2S:
		return transliterate.TraditionalToSimplified(req.convert.Text), nil
	}
	return nil, fmt.Errorf("unknown bridge method %q", req.method)
}

// logMessage writes a script log line tagged with the declared origin.
// The from label is trusted for diagnostics only.
func (h *Host) logMessage(p *logParams) {
	if p.From != "" {
		log.Printf("[%s] %s: %s", h.pluginID, p.From, p.Message)
		return
	}
	log.Printf("[%s] %s", h.pluginID, p.Message)
}

// fetch performs the real network call on behalf of the script. The
// response body crosses the boundary as base64 text regardless of
// content type.
func (h *Host) fetch(ctx context.Context, p *fetchParams) (*fetchResult, error) {
	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if p.Body != "" {
		body = strings.NewReader(p.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.URL, body)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: failed to read body: %w", err)
	}

	return &fetchResult{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    resp.Header,
		URL:        resp.Request.URL.String(),
		Data:       base64.StdEncoding.EncodeToString(data),
	}, nil
}

// encodeResult renders a handler result for delivery into the VM.
func encodeResult(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode bridge result: %w", err)
	}
	return string(data), nil
}
