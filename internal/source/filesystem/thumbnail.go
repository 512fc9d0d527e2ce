package filesystem

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/nfnt/resize"

	"github.com/nohackjustnoobb/Mankai-sub001/internal/models"
)

const coverWidth uint = 200
const coverHeight uint = 300

// generateCover resizes raw page data into a small cover and returns it
// as a data URI image, so covers render without another disk read.
func generateCover(pageData []byte) (*models.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(pageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover source: %w", err)
	}

	var resized image.Image
	if img.Bounds().Dy() > img.Bounds().Dx() {
		resized = resize.Resize(coverWidth, 0, img, resize.Lanczos3)
	} else {
		resized = resize.Resize(0, coverHeight, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("failed to encode cover: %w", err)
	}

	return &models.Image{
		Path:   "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:  resized.Bounds().Dx(),
		Height: resized.Bounds().Dy(),
	}, nil
}
