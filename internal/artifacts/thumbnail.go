package artifacts

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
)

const (
	DefaultThumbnailWidth   = 800
	DefaultThumbnailQuality = 85

	// fallbackEstimateRatio approximates a thumbnail as 15% of the original file.
	fallbackEstimateRatio = 0.15
)

// Thumbnail decodes the image at path, scales it down to at most maxWidth
// pixels wide (keeping the aspect ratio) and re-encodes it as JPEG.
func Thumbnail(path string, maxWidth, quality int) ([]byte, error) {
	if maxWidth <= 0 {
		maxWidth = DefaultThumbnailWidth
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultThumbnailQuality
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: open %s: %w", path, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("thumbnail: decode %s: %w", path, err)
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("thumbnail: %s has no pixels", path)
	}
	if width > maxWidth {
		height = height * maxWidth / width
		if height < 1 {
			height = 1
		}
		width = maxWidth
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("thumbnail: encode %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// EstimateSize is the thumbnail length when one exists, else 15% of the
// original file size.
func EstimateSize(thumbnail []byte, fileSize int64) int64 {
	if len(thumbnail) > 0 {
		return int64(len(thumbnail))
	}
	return int64(float64(fileSize) * fallbackEstimateRatio)
}
