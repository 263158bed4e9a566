package generator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"golang.org/x/image/webp"

	"media-conversions/internal/conversion"
)

// Webp decodes WebP sources and writes them as PNG next to the source.
type Webp struct{}

func (Webp) Type() string { return "webp" }

func (Webp) SupportedExtensions() []string { return []string{"webp"} }

func (Webp) SupportedMimeTypes() []string { return []string{"image/webp"} }

func (Webp) RequirementsInstalled() bool { return true }

func (Webp) Convert(ctx context.Context, sourcePath string, _ *conversion.Conversion) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(sourcePath)
	if err != nil {
		return "", fmt.Errorf("open webp source: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := webp.Decode(f)
	if err != nil {
		return "", fmt.Errorf("decode webp: %w", err)
	}

	out := strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + ".png"
	if err := imaging.Save(img, out); err != nil {
		return "", fmt.Errorf("write png: %w", err)
	}
	return out, nil
}
