package testutil

import (
	"archive/zip"
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// TestImagePNG returns an encoded PNG of the given size, for building
// fixture directories the image decoders can actually read.
func TestImagePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("Failed to encode test png: %v", err)
	}
	return buf.Bytes()
}

// WriteTestPage writes a small real PNG page into dir.
func WriteTestPage(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, TestImagePNG(t, 4, 6), 0o644); err != nil {
		t.Fatalf("Failed to write test page %s: %v", name, err)
	}
	return p
}

// CreateTestCBZ writes a zip archive with one real PNG per page name.
func CreateTestCBZ(t *testing.T, dir, name string, pages []string) string {
	t.Helper()
	filePath := filepath.Join(dir, name)
	file, err := os.Create(filePath)
	if err != nil {
		t.Fatalf("Failed to create temp cbz file: %v", err)
	}
	defer file.Close()

	zipWriter := zip.NewWriter(file)
	defer zipWriter.Close()

	data := TestImagePNG(t, 4, 6)
	for _, page := range pages {
		w, err := zipWriter.Create(page)
		if err != nil {
			t.Fatalf("Failed to create entry '%s' in zip: %v", page, err)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("Failed to write entry '%s': %v", page, err)
		}
	}
	return filePath
}
