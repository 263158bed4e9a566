package generator

import (
	"context"

	"media-conversions/internal/conversion"
)

// Image handles raster formats the image processor decodes directly.
type Image struct{}

func (Image) Type() string { return "image" }

func (Image) SupportedExtensions() []string {
	return []string{"png", "jpg", "jpeg", "gif"}
}

func (Image) SupportedMimeTypes() []string {
	return []string{"image/jpeg", "image/gif", "image/png"}
}

func (Image) RequirementsInstalled() bool { return true }

// Convert returns sourcePath unchanged.
func (Image) Convert(_ context.Context, sourcePath string, _ *conversion.Conversion) (string, error) {
	return sourcePath, nil
}
