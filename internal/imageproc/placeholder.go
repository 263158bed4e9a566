package imageproc

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// Tiny placeholder defaults.
const (
	PlaceholderWidth = 32
	PlaceholderBlur  = 5
)

// Placeholder returns a JPEG of src scaled to width pixels and blurred by
// blur (0-100, same scale as the blur manipulation).
func Placeholder(src string, width int, blur float64) ([]byte, error) {
	img, err := LoadImageConstrained(src, MaxImageDimension, MaxImagePixels)
	if err != nil {
		return nil, fmt.Errorf("load placeholder source: %w", err)
	}

	img = imaging.Resize(img, width, 0, imaging.Lanczos)
	if blur > 0 {
		img = imaging.Blur(img, blurSigma(blur))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(DefaultQuality)); err != nil {
		return nil, fmt.Errorf("encode placeholder: %w", err)
	}
	return buf.Bytes(), nil
}
