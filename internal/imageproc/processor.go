package imageproc

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"strconv"
	"strings"

	"media-conversions/internal/logging"
	"media-conversions/internal/manipulations"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP format support
)

const (
	// MaxImageDimension is the maximum width or height we'll process
	// Images larger than this will be downscaled first
	MaxImageDimension = 8192

	// MaxImagePixels is the maximum total pixels (width * height) we'll process
	MaxImagePixels = 40_000_000

	// DefaultQuality is used for lossy output when no quality is set.
	DefaultQuality = 90
)

// Drivers
const (
	DriverImaging = "imaging"
	DriverVips    = "vips"
)

var (
	// ErrUnsupportedFormat is returned when a processor cannot encode the
	// requested output format.
	ErrUnsupportedFormat = errors.New("unsupported output format")

	// ErrInvalidManipulation is returned for operation values that cannot
	// be parsed.
	ErrInvalidManipulation = errors.New("invalid manipulation")
)

// Processor applies a manipulation set to a raster file.
type Processor interface {
	// Driver names the backend.
	Driver() string
	// Apply reads src, applies every group of set left to right and writes
	// the result to dst. The output format is the set's format operation,
	// or dst's extension when the set has none.
	Apply(ctx context.Context, src string, set *manipulations.Set, dst string) error
}

// New returns the processor for driver.
func New(driver string) (Processor, error) {
	switch strings.ToLower(driver) {
	case "", DriverImaging:
		return Imaging{}, nil
	case DriverVips:
		if err := InitVips(); err != nil {
			return nil, err
		}
		return &Vips{}, nil
	default:
		return nil, fmt.Errorf("unknown image driver %q", driver)
	}
}

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}

	return &ImageDimensions{
		Width:  config.Width,
		Height: config.Height,
	}, nil
}

// LoadImageConstrained loads an image, downscaling if it exceeds size limits
func LoadImageConstrained(path string, maxDimension, maxPixels int) (image.Image, error) {
	dimensions, err := GetImageDimensions(path)
	if err != nil {
		logging.Debug("Could not get image dimensions for %s: %v, loading unconstrained", path, err)
		return imaging.Open(path, imaging.AutoOrientation(true))
	}

	width, height := dimensions.Width, dimensions.Height
	if width <= maxDimension && height <= maxDimension && width*height <= maxPixels {
		return imaging.Open(path, imaging.AutoOrientation(true))
	}

	targetWidth, targetHeight := constrain(width, height, maxDimension, maxPixels)
	logging.Info("Constraining large image %s from %dx%d to %dx%d", path, width, height, targetWidth, targetHeight)

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	return imaging.Resize(img, targetWidth, targetHeight, imaging.Lanczos), nil
}

func constrain(width, height, maxDimension, maxPixels int) (int, int) {
	targetWidth, targetHeight := width, height

	if width > maxDimension || height > maxDimension {
		if width > height {
			targetWidth = maxDimension
			targetHeight = height * maxDimension / width
		} else {
			targetHeight = maxDimension
			targetWidth = width * maxDimension / height
		}
	}

	if pixels := targetWidth * targetHeight; pixels > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(pixels))
		targetWidth = int(float64(targetWidth) * scale)
		targetHeight = int(float64(targetHeight) * scale)
	}
	return targetWidth, targetHeight
}

// outputFormat returns the normalized output format for set and dst.
func outputFormat(set *manipulations.Set, dst string) string {
	format, ok := set.Get(manipulations.Format)
	if !ok || format == "" {
		format = strings.TrimPrefix(strings.ToLower(extOf(dst)), ".")
	}
	return normalizeFormat(format)
}

func normalizeFormat(format string) string {
	switch format = strings.ToLower(format); format {
	case "jpeg", "pjpg":
		return "jpg"
	case "tif":
		return "tiff"
	}
	return format
}

var encodable = map[string]map[string]bool{
	DriverImaging: {"jpg": true, "png": true, "gif": true, "tiff": true, "bmp": true},
	DriverVips:    {"jpg": true, "png": true, "gif": true, "tiff": true, "bmp": true, "webp": true},
}

// Encodes reports whether driver can write format. Aliases such as jpeg
// and tif are accepted.
func Encodes(driver, format string) bool {
	return encodable[driver][normalizeFormat(format)]
}

func outputQuality(set *manipulations.Set) int {
	q, ok := set.Get(manipulations.Quality)
	if !ok {
		return DefaultQuality
	}
	n, err := strconv.Atoi(q)
	if err != nil || n < 1 || n > 100 {
		return DefaultQuality
	}
	return n
}

func extOf(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 && !strings.ContainsRune(path[i:], '/') {
		return path[i:]
	}
	return ""
}

// geometry describes the resize requested by one group.
type geometry struct {
	width, height int
	fit           string
	anchor        imaging.Anchor
}

func parseGeometry(g manipulations.Group) (geometry, error) {
	geo := geometry{fit: "contain", anchor: imaging.Center}
	var err error
	if v, ok := g[manipulations.Width]; ok {
		if geo.width, err = parsePositive(manipulations.Width, v); err != nil {
			return geo, err
		}
	}
	if v, ok := g[manipulations.Height]; ok {
		if geo.height, err = parsePositive(manipulations.Height, v); err != nil {
			return geo, err
		}
	}
	if v, ok := g[manipulations.Fit]; ok && v != "" {
		geo.fit = strings.ToLower(v)
		switch geo.fit {
		case "contain", "max", "fill", "stretch", "crop":
		default:
			return geo, fmt.Errorf("%w: fit %q", ErrInvalidManipulation, v)
		}
	}
	if v, ok := g[manipulations.Crop]; ok && v != "" {
		anchor, err := parseAnchor(v)
		if err != nil {
			return geo, err
		}
		geo.fit = "crop"
		geo.anchor = anchor
	}
	return geo, nil
}

func (geo geometry) isZero() bool {
	return geo.width == 0 && geo.height == 0
}

// targetSize returns the size an image of srcW x srcH is scaled to before
// any crop or padding.
func (geo geometry) targetSize(srcW, srcH int) (int, int) {
	w, h := geo.width, geo.height
	if srcW == 0 || srcH == 0 {
		return srcW, srcH
	}
	if geo.fit == "stretch" && w > 0 && h > 0 {
		return w, h
	}

	sw := float64(w) / float64(srcW)
	sh := float64(h) / float64(srcH)
	var scale float64
	switch {
	case w == 0:
		scale = sh
	case h == 0:
		scale = sw
	case geo.fit == "crop":
		scale = math.Max(sw, sh)
	default:
		scale = math.Min(sw, sh)
	}
	if geo.fit == "max" && scale > 1 {
		scale = 1
	}

	tw := int(math.Round(float64(srcW) * scale))
	th := int(math.Round(float64(srcH) * scale))
	return max(tw, 1), max(th, 1)
}

// cropOffset returns the top-left corner of a w x h window anchored inside
// an imgW x imgH image.
func cropOffset(imgW, imgH, w, h int, anchor imaging.Anchor) (int, int) {
	dx, dy := imgW-w, imgH-h
	switch anchor {
	case imaging.TopLeft:
		return 0, 0
	case imaging.Top:
		return dx / 2, 0
	case imaging.TopRight:
		return dx, 0
	case imaging.Left:
		return 0, dy / 2
	case imaging.Right:
		return dx, dy / 2
	case imaging.BottomLeft:
		return 0, dy
	case imaging.Bottom:
		return dx / 2, dy
	case imaging.BottomRight:
		return dx, dy
	default:
		return dx / 2, dy / 2
	}
}

var anchors = map[string]imaging.Anchor{
	"top-left":     imaging.TopLeft,
	"top":          imaging.Top,
	"top-right":    imaging.TopRight,
	"left":         imaging.Left,
	"center":       imaging.Center,
	"right":        imaging.Right,
	"bottom-left":  imaging.BottomLeft,
	"bottom":       imaging.Bottom,
	"bottom-right": imaging.BottomRight,
}

func parseAnchor(v string) (imaging.Anchor, error) {
	key := strings.TrimPrefix(strings.ToLower(v), "crop-")
	if key == "crop" {
		key = "center"
	}
	a, ok := anchors[key]
	if !ok {
		return imaging.Center, fmt.Errorf("%w: crop position %q", ErrInvalidManipulation, v)
	}
	return a, nil
}

type manualCrop struct {
	width, height, x, y int
}

func parseManualCrop(v string) (manualCrop, error) {
	parts := strings.Split(v, ",")
	if len(parts) != 4 {
		return manualCrop{}, fmt.Errorf("%w: manualCrop %q wants width,height,x,y", ErrInvalidManipulation, v)
	}
	var n [4]int
	for i, p := range parts {
		val, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || val < 0 {
			return manualCrop{}, fmt.Errorf("%w: manualCrop %q", ErrInvalidManipulation, v)
		}
		n[i] = val
	}
	return manualCrop{width: n[0], height: n[1], x: n[2], y: n[3]}, nil
}

func parsePositive(op, v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidManipulation, op, v)
	}
	return n, nil
}

func parseRange(op, v string, lo, hi float64) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < lo || f > hi {
		return 0, fmt.Errorf("%w: %s %q not in [%g, %g]", ErrInvalidManipulation, op, v, lo, hi)
	}
	return f, nil
}

// blurSigma maps a 0-100 blur amount to a Gaussian sigma.
func blurSigma(amount float64) float64 {
	return amount / 2
}

// sharpenSigma maps a 0-100 sharpen amount to a sigma.
func sharpenSigma(amount float64) float64 {
	return amount / 20
}

func parseHexColor(v string) (r, g, b uint8, err error) {
	s := strings.TrimPrefix(strings.TrimSpace(v), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return 0, 0, 0, fmt.Errorf("%w: background %q", ErrInvalidManipulation, v)
	}
	n, perr := strconv.ParseUint(s, 16, 32)
	if perr != nil {
		return 0, 0, 0, fmt.Errorf("%w: background %q", ErrInvalidManipulation, v)
	}
	return uint8(n >> 16), uint8(n >> 8), uint8(n), nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("image processing cancelled: %w", err)
	}
	return nil
}
