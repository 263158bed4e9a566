package responsive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"media-conversions/internal/conversion"
	"media-conversions/internal/filesystem"
	"media-conversions/internal/imageproc"
	"media-conversions/internal/logging"
	"media-conversions/internal/manipulations"
	"media-conversions/internal/media"
	"media-conversions/internal/mediatypes"
	"media-conversions/internal/metrics"
)

// fallbackFormat is used for renditions when the processor cannot write the
// base image's own format.
const fallbackFormat = "jpg"

// ErrNotAnImage is returned when the base of a ladder is not a raster image.
var ErrNotAnImage = fmt.Errorf("%w: responsive images need an image base", conversion.ErrConfiguration)

// Options configure a Generator.
type Options struct {
	// Widths defaults to NewFileSizeOptimized().
	Widths WidthCalculator
	// TinyPlaceholders enables the blurred SVG placeholder.
	TinyPlaceholders bool
	// TempDir is the parent of per-run scratch directories. Empty means
	// os.TempDir().
	TempDir string
}

// Generator writes responsive renditions and registers them on the record.
type Generator struct {
	fs        *filesystem.Filesystem
	store     media.Store
	processor imageproc.Processor
	opts      Options
}

// NewGenerator returns a Generator.
func NewGenerator(fs *filesystem.Filesystem, store media.Store, processor imageproc.Processor, opts Options) *Generator {
	if opts.Widths == nil {
		opts.Widths = NewFileSizeOptimized()
	}
	return &Generator{fs: fs, store: store, processor: processor, opts: opts}
}

// TinyPlaceholders reports whether placeholders are generated.
func (g *Generator) TinyPlaceholders() bool { return g.opts.TinyPlaceholders }

// GenerateForOriginal builds the ladder for the original file of m.
func (g *Generator) GenerateForOriginal(ctx context.Context, m *media.Media) error {
	if m.Type() != mediatypes.FileTypeImage {
		return fmt.Errorf("%w: %s is %s", ErrNotAnImage, m.FileName, m.Type())
	}
	work, err := os.MkdirTemp(g.opts.TempDir, "responsive-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer removeWorkDir(work)

	base := filepath.Join(work, uuid.NewString()+"."+m.Extension())
	if _, err := g.fs.CopyFromMediaLibrary(ctx, m, base); err != nil {
		return err
	}
	return g.generate(ctx, m, base, media.OriginalResponsiveKey, work)
}

// GenerateForConversion builds the ladder for conversionName from its
// local output file baseImage.
func (g *Generator) GenerateForConversion(ctx context.Context, m *media.Media, conversionName, baseImage string) error {
	work, err := os.MkdirTemp(g.opts.TempDir, "responsive-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer removeWorkDir(work)

	return g.generate(ctx, m, baseImage, Key(conversionName), work)
}

func (g *Generator) generate(ctx context.Context, m *media.Media, baseImage, key, work string) error {
	if !isImage(baseImage) {
		return fmt.Errorf("%w: %s", ErrNotAnImage, filepath.Base(baseImage))
	}
	current, err := g.store.Get(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("load media %d: %w", m.ID, err)
	}
	previous, _ := current.ResponsiveSetFor(key)

	widths, err := WidthsFromFile(g.opts.Widths, baseImage)
	if err != nil {
		return fmt.Errorf("calculate widths for %s: %w", key, err)
	}
	ext := g.renditionFormat(baseImage)

	// Everything is rendered locally first so a failure leaves the stored
	// ladder as it was.
	names := make([]string, 0, len(widths))
	for _, w := range widths {
		name, err := g.render(ctx, m, baseImage, key, ext, w, work)
		if err != nil {
			return err
		}
		names = append(names, name)
	}
	var svg string
	if g.opts.TinyPlaceholders {
		if svg, err = placeholder(baseImage); err != nil {
			return err
		}
	}

	for i, name := range names {
		if err := g.fs.CopyToMediaLibrary(ctx, filepath.Join(work, name), m, filesystem.KindResponsive, name); err != nil {
			g.discard(ctx, m, names[:i], previous.URLs)
			return err
		}
	}

	var replaced []string
	if err := g.update(ctx, m, func(rec *media.Media) {
		if old, ok := rec.ResponsiveSetFor(key); ok {
			replaced = old.URLs
		}
		rec.ReplaceResponsiveImages(key, media.ResponsiveSet{URLs: names, Base64SVG: svg})
	}); err != nil {
		g.discard(ctx, m, names, previous.URLs)
		return err
	}
	g.discard(ctx, m, replaced, names)

	metrics.ResponsiveImagesGenerated.WithLabelValues("rendition").Add(float64(len(names)))
	if svg != "" {
		metrics.ResponsiveImagesGenerated.WithLabelValues("placeholder").Inc()
	}
	logging.Debug("Generated %d responsive images %s for media %d", len(names), key, m.ID)
	return nil
}

// renditionFormat keeps the base image's format when the processor can
// write it and falls back to jpg otherwise.
func (g *Generator) renditionFormat(baseImage string) string {
	ext := mediatypes.Extension(baseImage)
	if imageproc.Encodes(g.processor.Driver(), ext) {
		return ext
	}
	logging.Debug("%s cannot encode %s, responsive images use jpg", g.processor.Driver(), ext)
	return fallbackFormat
}

// render writes one rendition into work and returns its encoded name.
func (g *Generator) render(ctx context.Context, m *media.Media, baseImage, key, ext string, width int, work string) (string, error) {
	tmp := filepath.Join(work, uuid.NewString()+"."+ext)
	set := manipulations.New(manipulations.Group{
		manipulations.Optimize: "",
		manipulations.Width:    strconv.Itoa(width),
		manipulations.Format:   ext,
	})
	if err := g.processor.Apply(ctx, baseImage, set, tmp); err != nil {
		return "", fmt.Errorf("render %s at %dpx: %w", key, width, err)
	}

	dims, err := imageproc.GetImageDimensions(tmp)
	if err != nil {
		return "", fmt.Errorf("read rendition dimensions: %w", err)
	}
	name := Encode(m.Stem(), key, width, dims.Height, ext)
	if err := os.Rename(tmp, filepath.Join(work, name)); err != nil {
		return "", fmt.Errorf("rename rendition: %w", err)
	}
	return name, nil
}

func placeholder(baseImage string) (string, error) {
	tiny, err := imageproc.Placeholder(baseImage, imageproc.PlaceholderWidth, imageproc.PlaceholderBlur)
	if err != nil {
		return "", fmt.Errorf("tiny placeholder: %w", err)
	}
	dims, err := imageproc.GetImageDimensions(baseImage)
	if err != nil {
		return "", fmt.Errorf("read base dimensions: %w", err)
	}
	return PlaceholderSVG(tiny, dims.Width, dims.Height), nil
}

// discard removes stored renditions, skipping any name listed in keep.
func (g *Generator) discard(ctx context.Context, m *media.Media, names, keep []string) {
	for _, name := range names {
		if slices.Contains(keep, name) {
			continue
		}
		if err := g.fs.RemoveFile(ctx, m, filesystem.KindResponsive, name); err != nil {
			logging.Warn("Failed to remove responsive image %s: %v", name, err)
		}
	}
}

func isImage(path string) bool {
	return mediatypes.GetFileType("."+mediatypes.Extension(path)) == mediatypes.FileTypeImage
}

// update persists fn through the store and copies the result onto m.
func (g *Generator) update(ctx context.Context, m *media.Media, fn func(*media.Media)) error {
	updated, err := g.store.Update(ctx, m.ID, func(rec *media.Media) error {
		fn(rec)
		return nil
	})
	if err != nil {
		return fmt.Errorf("update media %d: %w", m.ID, err)
	}
	m.CopyDerivedStateFrom(updated)
	return nil
}

func removeWorkDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		logging.Warn("Failed to remove work dir %s: %v", dir, err)
	}
}
