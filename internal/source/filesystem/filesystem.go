// Package filesystem serves manga straight from a directory tree. The
// layout is root/<manga>/<chapter> or root/<manga>/<group>/<chapter>,
// where a chapter is either a directory of images or a .cbz archive.
package filesystem

import (
	"context"
	"fmt"
	"image"
	"os"
	"path"
	"path/filepath"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/util"
)

// Adapter reads a plugin's root directory. The root comes pre-resolved
// from the plugin's capability token; the adapter itself never touches
// anything outside it.
type Adapter struct {
	desc    *models.PluginDescriptor
	root    string
	watcher *watcher
}

// New builds an adapter over a resolved root directory.
func New(desc *models.PluginDescriptor, root string) *Adapter {
	return &Adapter{desc: desc, root: root}
}

func (a *Adapter) Info() *models.PluginDescriptor {
	return a.desc
}

// Root returns the resolved root directory of this adapter.
func (a *Adapter) Root() string {
	return a.root
}

// Close stops the change watcher if one was started.
func (a *Adapter) Close() error {
	if a.watcher != nil {
		return a.watcher.stop()
	}
	return nil
}

func isImageFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jpg" || ext == ".jpeg" || ext == ".png" || ext == ".gif" || ext == ".webp"
}

func isArchiveFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".cbz")
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// ListLibrary returns one summary per manga directory under the root.
func (a *Adapter) ListLibrary(ctx context.Context) ([]*models.Manga, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		return nil, source.NewError(a.desc.ID, "list library", source.KindUnavailable, "cannot read root", err)
	}

	var mangas []*models.Manga
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || isHidden(e.Name()) {
			continue
		}
		m, err := a.scanManga(ctx, e.Name(), false)
		if err != nil {
			return nil, err
		}
		mangas = append(mangas, m)
	}
	util.SortNaturalFunc(mangas, func(m *models.Manga) string { return m.ID })
	return mangas, nil
}

// FetchDetail scans one manga directory into a full chapter tree. Pages
// are left unloaded; FetchChapterPages resolves them per chapter.
func (a *Adapter) FetchDetail(ctx context.Context, mangaID string) (*models.Manga, error) {
	if err := validSegment(mangaID); err != nil {
		return nil, source.NewError(a.desc.ID, "fetch detail", source.KindMalformed, "bad manga id", err)
	}
	return a.scanManga(ctx, mangaID, true)
}

// scanManga builds a manga record from its directory. With groups=false
// only the summary fields and the cover are filled in.
func (a *Adapter) scanManga(ctx context.Context, mangaID string, withGroups bool) (*models.Manga, error) {
	dir := filepath.Join(a.root, mangaID)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("manga %q: %w", mangaID, models.ErrNotFound)
		}
		return nil, source.NewError(a.desc.ID, "scan manga", source.KindUnavailable, mangaID, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("manga %q: %w", mangaID, models.ErrNotFound)
	}

	groups, err := a.scanGroups(ctx, mangaID, dir)
	if err != nil {
		return nil, err
	}

	title := mangaID
	m := &models.Manga{
		ID:       mangaID,
		PluginID: a.desc.ID,
		Title:    &title,
		Status:   models.StatusUnknown,
	}

	if latest := lastChapter(groups); latest != nil {
		id := latest.ID
		m.LatestChapterID = &id
		if mod := info.ModTime(); !mod.IsZero() {
			m.UpdatedAt = &mod
		}
	}
	if cover, err := a.coverFor(groups, mangaID); err == nil && cover != nil {
		m.Cover = cover
	}
	if withGroups {
		m.Groups = groups
	}
	return m, nil
}

// scanGroups classifies the children of a manga directory. An entry that
// is itself a chapter (an archive, or a directory holding images) lands
// in the implicit unnamed group; a directory holding further chapters
// becomes a named group. Mixed layouts work.
func (a *Adapter) scanGroups(ctx context.Context, mangaID, dir string) ([]*models.ChapterGroup, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, source.NewError(a.desc.ID, "scan manga", source.KindUnavailable, mangaID, err)
	}

	implicit := &models.ChapterGroup{Title: ""}
	var named []*models.ChapterGroup

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if isHidden(name) {
			continue
		}
		switch {
		case !e.IsDir() && isArchiveFile(name):
			implicit.Chapters = append(implicit.Chapters, chapterFor(name, name))
		case e.IsDir():
			sub := filepath.Join(dir, name)
			if hasDirectImages(sub) {
				implicit.Chapters = append(implicit.Chapters, chapterFor(name, name))
				continue
			}
			g, err := a.scanGroupDir(ctx, name, sub)
			if err != nil {
				return nil, err
			}
			if len(g.Chapters) > 0 {
				named = append(named, g)
			}
		}
	}

	sortChapters(implicit.Chapters)
	util.SortNaturalFunc(named, func(g *models.ChapterGroup) string { return g.Title })

	var groups []*models.ChapterGroup
	if len(implicit.Chapters) > 0 {
		groups = append(groups, implicit)
	}
	return append(groups, named...), nil
}

func (a *Adapter) scanGroupDir(ctx context.Context, title, dir string) (*models.ChapterGroup, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, source.NewError(a.desc.ID, "scan group", source.KindUnavailable, title, err)
	}
	g := &models.ChapterGroup{Title: title}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := e.Name()
		if isHidden(name) {
			continue
		}
		if e.IsDir() || isArchiveFile(name) {
			g.Chapters = append(g.Chapters, chapterFor(path.Join(title, name), name))
		}
	}
	sortChapters(g.Chapters)
	return g, nil
}

// chapterFor builds a chapter record. The id is the slash path relative
// to the manga directory so it can be resolved again on page fetch.
func chapterFor(id, fileName string) *models.Chapter {
	display := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if !isArchiveFile(fileName) {
		display = fileName
	}
	title := display
	return &models.Chapter{ID: id, Title: &title, Order: display}
}

func sortChapters(chapters []*models.Chapter) {
	util.SortNaturalFunc(chapters, func(c *models.Chapter) string { return c.Order })
}

// lastChapter returns the final chapter of the final group, which under
// natural ordering is the newest one.
func lastChapter(groups []*models.ChapterGroup) *models.Chapter {
	for i := len(groups) - 1; i >= 0; i-- {
		if n := len(groups[i].Chapters); n > 0 {
			return groups[i].Chapters[n-1]
		}
	}
	return nil
}

// hasDirectImages reports whether dir directly contains at least one
// image file, which makes it a chapter rather than a group.
func hasDirectImages(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && isImageFile(e.Name()) {
			return true
		}
	}
	return false
}

// FetchChapterPages lists the ordered pages of one chapter with their
// decoded dimensions.
func (a *Adapter) FetchChapterPages(ctx context.Context, mangaID, chapterID string) ([]*models.Image, error) {
	if err := validSegment(mangaID); err != nil {
		return nil, source.NewError(a.desc.ID, "fetch pages", source.KindMalformed, "bad manga id", err)
	}
	if err := validSegment(chapterID); err != nil {
		return nil, source.NewError(a.desc.ID, "fetch pages", source.KindMalformed, "bad chapter id", err)
	}

	chapterPath := filepath.Join(a.root, mangaID, filepath.FromSlash(chapterID))
	info, err := os.Stat(chapterPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("chapter %q: %w", chapterID, models.ErrNotFound)
		}
		return nil, source.NewError(a.desc.ID, "fetch pages", source.KindUnavailable, chapterID, err)
	}

	if !info.IsDir() && isArchiveFile(chapterPath) {
		return a.archivePages(ctx, mangaID, chapterID, chapterPath)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("chapter %q: %w", chapterID, models.ErrNotFound)
	}

	entries, err := os.ReadDir(chapterPath)
	if err != nil {
		return nil, source.NewError(a.desc.ID, "fetch pages", source.KindUnavailable, chapterID, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && isImageFile(e.Name()) && !isHidden(e.Name()) {
			names = append(names, e.Name())
		}
	}
	util.SortNatural(names)

	pages := make([]*models.Image, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img := &models.Image{Path: path.Join(mangaID, chapterID, name)}
		if w, h, err := imageDims(filepath.Join(chapterPath, name)); err == nil {
			img.Width, img.Height = w, h
		}
		pages = append(pages, img)
	}
	return pages, nil
}

func imageDims(filePath string) (int, int, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// coverFor generates a thumbnail from the first page of the first
// chapter. Failure to produce a cover is not fatal to the scan.
func (a *Adapter) coverFor(groups []*models.ChapterGroup, mangaID string) (*models.Image, error) {
	for _, g := range groups {
		for _, ch := range g.Chapters {
			data, err := a.firstPageData(mangaID, ch.ID)
			if err != nil {
				continue
			}
			return generateCover(data)
		}
	}
	return nil, nil
}

// firstPageData reads the raw bytes of the first page of a chapter.
func (a *Adapter) firstPageData(mangaID, chapterID string) ([]byte, error) {
	chapterPath := filepath.Join(a.root, mangaID, filepath.FromSlash(chapterID))
	if isArchiveFile(chapterPath) {
		return firstArchivePage(chapterPath)
	}
	entries, err := os.ReadDir(chapterPath)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isImageFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no pages in %s", chapterID)
	}
	util.SortNatural(names)
	return os.ReadFile(filepath.Join(chapterPath, names[0]))
}

// validSegment rejects ids that could escape the root directory.
func validSegment(id string) error {
	if id == "" {
		return fmt.Errorf("empty path segment")
	}
	if strings.Contains(id, "..") {
		return fmt.Errorf("path traversal in %q", id)
	}
	if path.IsAbs(id) || filepath.IsAbs(id) {
		return fmt.Errorf("absolute path %q", id)
	}
	return nil
}
