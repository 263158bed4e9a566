package responsive

import (
	"fmt"
	"math"
	"os"

	"media-conversions/internal/imageproc"
)

// WidthCalculator derives the rendition widths for a base image. Widths are
// strictly decreasing.
type WidthCalculator interface {
	WidthsFor(fileSize int64, width, height int) []int
}

// FileSizeOptimized predicts each step at 70% of the previous file size,
// assuming a constant byte cost per pixel. The original width comes first.
// Calculation stops once the prediction drops below MinFileSize or the
// width below MinWidth.
type FileSizeOptimized struct {
	Factor      float64
	MinFileSize int64
	MinWidth    int
}

// NewFileSizeOptimized returns the calculator with its usual thresholds.
func NewFileSizeOptimized() FileSizeOptimized {
	return FileSizeOptimized{Factor: 0.7, MinFileSize: 10 * 1024, MinWidth: 20}
}

func (c FileSizeOptimized) WidthsFor(fileSize int64, width, height int) []int {
	if width <= 0 || height <= 0 || fileSize <= 0 {
		return nil
	}

	widths := []int{width}
	ratio := float64(height) / float64(width)
	pixelPrice := float64(fileSize) / float64(width*height)
	predicted := float64(fileSize)

	for {
		predicted *= c.Factor
		newWidth := int(math.Floor(math.Sqrt((predicted / pixelPrice) / ratio)))
		if newWidth < c.MinWidth || int64(predicted) < c.MinFileSize {
			return widths
		}
		if newWidth >= widths[len(widths)-1] {
			return widths
		}
		widths = append(widths, newWidth)
	}
}

// WidthsFromFile runs calc on the file at path.
func WidthsFromFile(calc WidthCalculator, path string) ([]int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	dims, err := imageproc.GetImageDimensions(path)
	if err != nil {
		return nil, fmt.Errorf("read dimensions: %w", err)
	}
	return calc.WidthsFor(info.Size(), dims.Width, dims.Height), nil
}

// FixedWidths always returns the same widths, largest first.
type FixedWidths []int

func (f FixedWidths) WidthsFor(int64, int, int) []int {
	return append([]int(nil), f...)
}
