// Package source defines the adapter contract every plugin kind fulfills.
// The rest of the application talks to sources exclusively through this
// interface; whether entries come from a directory walk, a remote JSON API
// or a sandboxed script is invisible past this point.
package source

import (
	"context"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
)

// Adapter is the uniform surface of one installed plugin.
//
// ListLibrary and FetchDetail return normalized manga records; FetchDetail
// includes the full chapter tree while ListLibrary may return summaries
// only. FetchChapterPages resolves the ordered page list of one chapter.
// All blocking calls honor ctx cancellation.
type Adapter interface {
	// Info returns the descriptor the adapter was built from.
	Info() *models.PluginDescriptor

	ListLibrary(ctx context.Context) ([]*models.Manga, error)
	FetchDetail(ctx context.Context, mangaID string) (*models.Manga, error)
	FetchChapterPages(ctx context.Context, mangaID, chapterID string) ([]*models.Image, error)

	// Close releases adapter resources: watchers, script runtimes,
	// idle connections. Safe to call more than once.
	Close() error
}
