// Package script adapts a sandboxed plugin to the source contract. It
// invokes the script's exported entry points and converts the structured
// results back into the normalized model.
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/sandbox"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source"
)

// Adapter proxies adapter calls into one sandbox.
type Adapter struct {
	desc *models.PluginDescriptor
	box  *sandbox.Sandbox
}

// New wraps an existing sandbox.
func New(desc *models.PluginDescriptor, box *sandbox.Sandbox) *Adapter {
	return &Adapter{desc: desc, box: box}
}

func (a *Adapter) Info() *models.PluginDescriptor {
	return a.desc
}

// Sandbox exposes the underlying instance handle, used by the registry
// for teardown.
func (a *Adapter) Sandbox() *sandbox.Sandbox {
	return a.box
}

func (a *Adapter) Close() error {
	return a.box.Close()
}

func (a *Adapter) ListLibrary(ctx context.Context) ([]*models.Manga, error) {
	val, err := a.box.Invoke(ctx, "listLibrary")
	if err != nil {
		return nil, a.classify("list library", err)
	}
	var mangas []*models.Manga
	if err := convert(val, &mangas); err != nil {
		return nil, source.NewError(a.desc.ID, "list library", source.KindMalformed, "bad script result", err)
	}
	for _, m := range mangas {
		m.PluginID = a.desc.ID
	}
	return mangas, nil
}

func (a *Adapter) FetchDetail(ctx context.Context, mangaID string) (*models.Manga, error) {
	val, err := a.box.Invoke(ctx, "fetchDetail", mangaID)
	if err != nil {
		return nil, a.classify("fetch detail", err)
	}
	if val == nil {
		return nil, fmt.Errorf("manga %q: %w", mangaID, models.ErrNotFound)
	}
	var m models.Manga
	if err := convert(val, &m); err != nil {
		return nil, source.NewError(a.desc.ID, "fetch detail", source.KindMalformed, "bad script result", err)
	}
	if m.ID == "" {
		m.ID = mangaID
	}
	m.PluginID = a.desc.ID
	return &m, nil
}

func (a *Adapter) FetchChapterPages(ctx context.Context, mangaID, chapterID string) ([]*models.Image, error) {
	val, err := a.box.Invoke(ctx, "fetchChapterPages", mangaID, chapterID)
	if err != nil {
		return nil, a.classify("fetch pages", err)
	}
	var pages []*models.Image
	if err := convert(val, &pages); err != nil {
		return nil, source.NewError(a.desc.ID, "fetch pages", source.KindMalformed, "bad script result", err)
	}
	return pages, nil
}

// convert round-trips an exported script value through JSON into a
// typed model, tolerating whatever object shape the script produced.
func convert(val any, out any) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("unencodable script value: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("script value does not match the expected shape: %w", err)
	}
	return nil
}

// classify maps sandbox failures onto the adapter error taxonomy.
func (a *Adapter) classify(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var se *sandbox.Error
	if errors.As(err, &se) {
		switch {
		case se.IsTimeout:
			return source.NewError(a.desc.ID, operation, source.KindTimeout, "script timed out", err)
		case se.IsCrash:
			return source.NewError(a.desc.ID, operation, source.KindUnavailable, "script instance crashed", err)
		}
	}
	return source.NewError(a.desc.ID, operation, source.KindUnavailable, "script call failed", err)
}
