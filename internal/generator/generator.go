package generator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"media-conversions/internal/conversion"
	"media-conversions/internal/logging"
	"media-conversions/internal/media"
	"media-conversions/internal/metrics"
)

// ErrUnsupportedSource is returned when no registered generator can
// convert a media item.
var ErrUnsupportedSource = fmt.Errorf("%w: unsupported source type", conversion.ErrConfiguration)

// Generator turns one family of source files into a raster image the
// image processor can manipulate.
type Generator interface {
	// Type names the generator in logs and metrics.
	Type() string
	// SupportedExtensions returns lowercase extensions without a dot.
	SupportedExtensions() []string
	// SupportedMimeTypes returns lowercase MIME types.
	SupportedMimeTypes() []string
	// RequirementsInstalled reports whether the binaries or libraries the
	// generator needs are available.
	RequirementsInstalled() bool
	// Convert returns the path of a raster file derived from sourcePath.
	// It may return sourcePath itself.
	Convert(ctx context.Context, sourcePath string, conv *conversion.Conversion) (string, error)
}

// CanConvert reports whether g accepts m: its requirements are installed
// and either m's extension or its MIME type is supported.
func CanConvert(g Generator, m *media.Media) bool {
	if !g.RequirementsInstalled() {
		return false
	}
	if ext := m.Extension(); ext != "" && slices.Contains(g.SupportedExtensions(), ext) {
		return true
	}
	mime := strings.ToLower(strings.TrimSpace(m.MimeType))
	return mime != "" && slices.Contains(g.SupportedMimeTypes(), mime)
}

// Registry is an ordered list of generators. The first one that can
// convert a media item wins.
type Registry struct {
	generators []Generator
}

// NewRegistry returns a Registry trying generators in the given order.
func NewRegistry(generators ...Generator) *Registry {
	return &Registry{generators: append([]Generator(nil), generators...)}
}

// Generators returns the registered generators in dispatch order.
func (r *Registry) Generators() []Generator {
	return append([]Generator(nil), r.generators...)
}

// Types returns the generator type names in dispatch order.
func (r *Registry) Types() []string {
	types := make([]string, len(r.generators))
	for i, g := range r.generators {
		types[i] = g.Type()
	}
	return types
}

// For returns the first generator that can convert m.
func (r *Registry) For(m *media.Media) (Generator, error) {
	for _, g := range r.generators {
		if CanConvert(g, m) {
			logging.Debug("Selected %s generator for media %d (%s)", g.Type(), m.ID, m.FileName)
			metrics.GeneratorSelections.WithLabelValues(g.Type()).Inc()
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedSource, m.FileName, m.MimeType)
}
