package filesystem_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source/filesystem"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/testutil"
)

func newTestAdapter(t *testing.T) (*filesystem.Adapter, string) {
	t.Helper()
	root := t.TempDir()
	desc := &models.PluginDescriptor{ID: "fs-test", Kind: models.KindFilesystem, Enabled: true}
	a := filesystem.New(desc, root)
	t.Cleanup(func() { a.Close() })
	return a, root
}

func mkChapterDir(t *testing.T, root string, segments ...string) string {
	t.Helper()
	dir := filepath.Join(append([]string{root}, segments...)...)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create chapter dir: %v", err)
	}
	testutil.WriteTestPage(t, dir, "01.png")
	return dir
}

func TestListLibrary(t *testing.T) {
	a, root := newTestAdapter(t)
	mkChapterDir(t, root, "Series B", "ch1")
	mkChapterDir(t, root, "Series A", "ch1")
	// Stray files at the root are not manga.
	os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644)

	mangas, err := a.ListLibrary(context.Background())
	if err != nil {
		t.Fatalf("ListLibrary failed: %v", err)
	}
	if len(mangas) != 2 {
		t.Fatalf("expected 2 manga, got %d", len(mangas))
	}
	if mangas[0].ID != "Series A" || mangas[1].ID != "Series B" {
		t.Errorf("unexpected order: %q, %q", mangas[0].ID, mangas[1].ID)
	}
	if mangas[0].Cover == nil || !strings.HasPrefix(mangas[0].Cover.Path, "data:image/jpeg;base64,") {
		t.Error("expected a data-URI cover on summaries")
	}
	if mangas[0].Groups != nil {
		t.Error("summaries should not carry the chapter tree")
	}
}

func TestFetchDetailFlatLayout(t *testing.T) {
	a, root := newTestAdapter(t)
	// Chapters 1, 2 and 10 as plain dirs: natural order must hold.
	mkChapterDir(t, root, "Solo", "ch 1")
	mkChapterDir(t, root, "Solo", "ch 10")
	mkChapterDir(t, root, "Solo", "ch 2")

	m, err := a.FetchDetail(context.Background(), "Solo")
	if err != nil {
		t.Fatalf("FetchDetail failed: %v", err)
	}
	if len(m.Groups) != 1 || m.Groups[0].Title != "" {
		t.Fatalf("expected one implicit group, got %+v", m.Groups)
	}
	got := make([]string, 0, 3)
	for _, ch := range m.Groups[0].Chapters {
		got = append(got, ch.ID)
	}
	want := []string{"ch 1", "ch 2", "ch 10"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chapter order = %v, want %v", got, want)
		}
	}
	if m.LatestChapterID == nil || *m.LatestChapterID != "ch 10" {
		t.Errorf("latest chapter should be ch 10, got %v", m.LatestChapterID)
	}
}

func TestFetchDetailGroupedAndMixed(t *testing.T) {
	a, root := newTestAdapter(t)
	mkChapterDir(t, root, "Mixed", "Vol 1", "ch 1")
	mkChapterDir(t, root, "Mixed", "Vol 1", "ch 2")
	mkChapterDir(t, root, "Mixed", "oneshot") // image dir directly under the manga
	testutil.CreateTestCBZ(t, filepath.Join(root, "Mixed"), "extra.cbz", []string{"p1.png"})

	m, err := a.FetchDetail(context.Background(), "Mixed")
	if err != nil {
		t.Fatalf("FetchDetail failed: %v", err)
	}
	// Implicit group first, then the named one.
	if len(m.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(m.Groups))
	}
	if m.Groups[0].Title != "" || m.Groups[1].Title != "Vol 1" {
		t.Fatalf("unexpected group titles: %q, %q", m.Groups[0].Title, m.Groups[1].Title)
	}
	if len(m.Groups[0].Chapters) != 2 {
		t.Fatalf("implicit group should hold the oneshot and the archive, got %d", len(m.Groups[0].Chapters))
	}
	// Archive chapters drop the extension from their display title.
	for _, ch := range m.Groups[0].Chapters {
		if ch.ID == "extra.cbz" && (ch.Title == nil || *ch.Title != "extra") {
			t.Errorf("archive chapter title = %v, want extra", ch.Title)
		}
	}
	if m.Groups[1].Chapters[0].ID != "Vol 1/ch 1" {
		t.Errorf("grouped chapter id = %q, want Vol 1/ch 1", m.Groups[1].Chapters[0].ID)
	}
}

func TestFetchDetailNotFound(t *testing.T) {
	a, _ := newTestAdapter(t)
	_, err := a.FetchDetail(context.Background(), "ghost")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFetchChapterPagesFromDir(t *testing.T) {
	a, root := newTestAdapter(t)
	dir := mkChapterDir(t, root, "Solo", "ch 1")
	testutil.WriteTestPage(t, dir, "10.png")
	testutil.WriteTestPage(t, dir, "2.png")

	pages, err := a.FetchChapterPages(context.Background(), "Solo", "ch 1")
	if err != nil {
		t.Fatalf("FetchChapterPages failed: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if pages[0].Path != "Solo/ch 1/01.png" || pages[1].Path != "Solo/ch 1/2.png" || pages[2].Path != "Solo/ch 1/10.png" {
		t.Errorf("unexpected page order: %v, %v, %v", pages[0].Path, pages[1].Path, pages[2].Path)
	}
	if pages[0].Width != 4 || pages[0].Height != 6 {
		t.Errorf("expected decoded dimensions 4x6, got %dx%d", pages[0].Width, pages[0].Height)
	}
}

func TestFetchChapterPagesFromArchive(t *testing.T) {
	a, root := newTestAdapter(t)
	mangaDir := filepath.Join(root, "Solo")
	os.MkdirAll(mangaDir, 0o755)
	testutil.CreateTestCBZ(t, mangaDir, "ch 1.cbz", []string{"2.png", "10.png", "1.png"})

	pages, err := a.FetchChapterPages(context.Background(), "Solo", "ch 1.cbz")
	if err != nil {
		t.Fatalf("FetchChapterPages failed: %v", err)
	}
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if pages[0].Path != "Solo/ch 1.cbz!1.png" {
		t.Errorf("unexpected first page path: %q", pages[0].Path)
	}
	if pages[2].Path != "Solo/ch 1.cbz!10.png" {
		t.Errorf("unexpected last page path: %q", pages[2].Path)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	a, _ := newTestAdapter(t)
	for _, bad := range []string{"../outside", "/etc", "a/../../b"} {
		if _, err := a.FetchChapterPages(context.Background(), bad, "ch 1"); err == nil {
			t.Errorf("manga id %q should be rejected", bad)
		}
		if _, err := a.FetchChapterPages(context.Background(), "Solo", bad); err == nil {
			t.Errorf("chapter id %q should be rejected", bad)
		}
	}

	var se *source.Error
	_, err := a.FetchDetail(context.Background(), "../outside")
	if !errors.As(err, &se) || se.Kind != source.KindMalformed {
		t.Errorf("expected a malformed source error, got %v", err)
	}
}

func TestWatcherFiresOnChange(t *testing.T) {
	a, root := newTestAdapter(t)
	mkChapterDir(t, root, "Solo", "ch 1")

	fired := make(chan struct{}, 1)
	if err := a.StartWatcher(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("StartWatcher failed: %v", err)
	}

	mkChapterDir(t, root, "Solo", "ch 2")

	select {
	case <-fired:
	case <-time.After(10 * time.Second):
		t.Fatal("watcher did not fire after a new chapter appeared")
	}
}

func TestCancelledContext(t *testing.T) {
	a, root := newTestAdapter(t)
	mkChapterDir(t, root, "Solo", "ch 1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.ListLibrary(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
