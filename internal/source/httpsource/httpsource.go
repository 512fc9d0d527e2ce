// Package httpsource talks to remote manga servers over a small JSON
// contract: GET {base}/library, GET {base}/manga/{id} and
// GET {base}/chapters/{id}/pages, all returning the normalized model.
package httpsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source"
)

// Adapter proxies one remote server. The plugin's config values ride
// along as query parameters on every request, except "token" which is
// sent as a bearer credential instead.
type Adapter struct {
	desc    *models.PluginDescriptor
	baseURL string
	client  *http.Client
}

// New builds an adapter for the descriptor's base URL.
func New(desc *models.PluginDescriptor) *Adapter {
	return &Adapter{
		desc:    desc,
		baseURL: desc.BaseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (a *Adapter) Info() *models.PluginDescriptor {
	return a.desc
}

// Close releases idle connections.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	return nil
}

func (a *Adapter) ListLibrary(ctx context.Context) ([]*models.Manga, error) {
	var mangas []*models.Manga
	if err := a.getJSON(ctx, "list library", "/library", &mangas); err != nil {
		return nil, err
	}
	for _, m := range mangas {
		m.PluginID = a.desc.ID
	}
	return mangas, nil
}

func (a *Adapter) FetchDetail(ctx context.Context, mangaID string) (*models.Manga, error) {
	var m models.Manga
	if err := a.getJSON(ctx, "fetch detail", "/manga/"+url.PathEscape(mangaID), &m); err != nil {
		return nil, err
	}
	if m.ID == "" {
		m.ID = mangaID
	}
	m.PluginID = a.desc.ID
	return &m, nil
}

func (a *Adapter) FetchChapterPages(ctx context.Context, mangaID, chapterID string) ([]*models.Image, error) {
	var pages []*models.Image
	err := a.getJSON(ctx, "fetch pages", "/chapters/"+url.PathEscape(chapterID)+"/pages", &pages)
	if err != nil {
		return nil, err
	}
	return pages, nil
}

// getJSON performs one contract request and decodes the response body
// into out. Failures are classified so callers can tell a flaky server
// from a revoked credential.
func (a *Adapter) getJSON(ctx context.Context, operation, path string, out any) error {
	u, err := url.Parse(a.baseURL + path)
	if err != nil {
		return source.NewError(a.desc.ID, operation, source.KindMalformed, "bad base url", err)
	}

	q := u.Query()
	for k, v := range a.desc.ConfigValues {
		if k == "token" {
			continue
		}
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return source.NewError(a.desc.ID, operation, source.KindMalformed, "bad request", err)
	}
	req.Header.Set("Accept", "application/json")
	if token, ok := a.desc.ConfigValues["token"]; ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return source.NewError(a.desc.ID, operation, source.KindUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return source.NewError(a.desc.ID, operation, source.KindAuthExpired,
			fmt.Sprintf("server returned status %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", operation, models.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return source.NewError(a.desc.ID, operation, source.KindUnavailable,
			fmt.Sprintf("server returned status %d", resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return source.NewError(a.desc.ID, operation, source.KindUnavailable, "failed to read response", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return source.NewError(a.desc.ID, operation, source.KindMalformed, "failed to parse response", err)
	}
	return nil
}
