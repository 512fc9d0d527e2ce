package filesystem

import (
	"archive/zip"
	"context"
	"fmt"
	"image"
	"io"
	"path"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/source"
	"github.com/nohackjustnoobb/Mankai-sub001/internal/util"
)

// archivePages lists the image entries of a .cbz chapter in natural
// order. Page paths embed the entry name after the archive path so they
// can be resolved again when the image is served.
func (a *Adapter) archivePages(ctx context.Context, mangaID, chapterID, archivePath string) ([]*models.Image, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, source.NewError(a.desc.ID, "fetch pages", source.KindMalformed, "cannot open archive", err)
	}
	defer r.Close()

	files := imageEntries(&r.Reader)

	pages := make([]*models.Image, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img := &models.Image{Path: path.Join(mangaID, chapterID) + "!" + f.Name}
		if w, h, err := zipEntryDims(f); err == nil {
			img.Width, img.Height = w, h
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// firstArchivePage reads the raw bytes of the first image entry.
func firstArchivePage(archivePath string) ([]byte, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	files := imageEntries(&r.Reader)
	if len(files) == 0 {
		return nil, fmt.Errorf("no pages in %s", archivePath)
	}
	rc, err := files[0].Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func imageEntries(r *zip.Reader) []*zip.File {
	var files []*zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !isImageFile(f.Name) {
			continue
		}
		files = append(files, f)
	}
	util.SortNaturalFunc(files, func(f *zip.File) string { return f.Name })
	return files
}

func zipEntryDims(f *zip.File) (int, int, error) {
	rc, err := f.Open()
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()
	cfg, _, err := image.DecodeConfig(rc)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
