package httpsource_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source/httpsource"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc, config map[string]string) *httpsource.Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a := httpsource.New(&models.PluginDescriptor{
		ID:           "remote",
		Kind:         models.KindHTTP,
		BaseURL:      server.URL,
		ConfigValues: config,
	})
	t.Cleanup(func() { a.Close() })
	return a
}

func TestListLibrary(t *testing.T) {
	title := "One"
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/library" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]*models.Manga{{ID: "m1", Title: &title}})
	}, nil)

	mangas, err := a.ListLibrary(context.Background())
	if err != nil {
		t.Fatalf("ListLibrary failed: %v", err)
	}
	if len(mangas) != 1 || mangas[0].ID != "m1" {
		t.Fatalf("unexpected result: %+v", mangas)
	}
	// The remote never knows its local plugin id; the adapter stamps it.
	if mangas[0].PluginID != "remote" {
		t.Errorf("plugin id = %q, want remote", mangas[0].PluginID)
	}
}

func TestConfigValuesAndToken(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("lang"); got != "ja" {
			t.Errorf("lang query = %q, want ja", got)
		}
		if got := r.URL.Query().Get("token"); got != "" {
			t.Error("token must not leak into the query string")
		}
		if got := r.Header.Get("Authorization"); got != "Bearer s3cret" {
			t.Errorf("authorization = %q", got)
		}
		json.NewEncoder(w).Encode(&models.Manga{ID: "m1"})
	}, map[string]string{"lang": "ja", "token": "s3cret"})

	if _, err := a.FetchDetail(context.Background(), "m1"); err != nil {
		t.Fatalf("FetchDetail failed: %v", err)
	}
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		kind   source.ErrorKind
	}{
		{"unauthorized", http.StatusUnauthorized, source.KindAuthExpired},
		{"forbidden", http.StatusForbidden, source.KindAuthExpired},
		{"server error", http.StatusInternalServerError, source.KindUnavailable},
		{"bad gateway", http.StatusBadGateway, source.KindUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			}, nil)
			_, err := a.FetchDetail(context.Background(), "m1")
			var se *source.Error
			if !errors.As(err, &se) {
				t.Fatalf("expected a source error, got %v", err)
			}
			if se.Kind != tc.kind {
				t.Errorf("kind = %v, want %v", se.Kind, tc.kind)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, nil)
	_, err := a.FetchDetail(context.Background(), "ghost")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMalformedBody(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}, nil)
	_, err := a.ListLibrary(context.Background())
	var se *source.Error
	if !errors.As(err, &se) || se.Kind != source.KindMalformed {
		t.Errorf("expected a malformed source error, got %v", err)
	}
}

func TestChapterPagesPath(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chapters/c1/pages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]*models.Image{{Path: "https://cdn/p1.jpg", Width: 800, Height: 1200}})
	}, nil)

	pages, err := a.FetchChapterPages(context.Background(), "m1", "c1")
	if err != nil {
		t.Fatalf("FetchChapterPages failed: %v", err)
	}
	if len(pages) != 1 || pages[0].Width != 800 {
		t.Fatalf("unexpected pages: %+v", pages)
	}
}

func TestContextCancellation(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.ListLibrary(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
