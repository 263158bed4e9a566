// Package urlgen builds public and temporary URLs for media files.
package urlgen

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"media-conversions/internal/conversion"
	"media-conversions/internal/media"
	"media-conversions/internal/pathgen"
)

// ErrTemporaryURLUnsupported is returned by disks that cannot sign URLs.
var ErrTemporaryURLUnsupported = fmt.Errorf("%w: temporary URLs are not supported", conversion.ErrConfiguration)

// Generator builds URLs for the files of one media item. An empty
// conversion name refers to the original file.
type Generator interface {
	URLFor(m *media.Media, conversionName string) (string, error)
	TemporaryURLFor(ctx context.Context, m *media.Media, conversionName string, expiry time.Duration, options map[string]string) (string, error)
	ResponsiveImagesDirectoryURL(m *media.Media) string
	PathFor(m *media.Media, conversionName string) (string, error)
}

// ConversionLookup resolves the conversions declared for a media item.
type ConversionLookup interface {
	ForMedia(m *media.Media) (*conversion.Collection, error)
}

// base holds what every driver shares: the disk-relative path layout.
type base struct {
	paths       pathgen.Generator
	conversions ConversionLookup
}

// PathFor returns the disk path of the original or of a conversion file.
func (b base) PathFor(m *media.Media, conversionName string) (string, error) {
	if conversionName == "" {
		return pathgen.OriginalPath(b.paths, m), nil
	}
	if b.conversions == nil {
		return "", fmt.Errorf("%w %q", conversion.ErrUnknownConversion, conversionName)
	}
	convs, err := b.conversions.ForMedia(m)
	if err != nil {
		return "", err
	}
	conv, err := convs.GetByName(conversionName)
	if err != nil {
		return "", err
	}
	return pathgen.ConversionPath(b.paths, m, conv.ConversionFileName(m.FileName)), nil
}

// encodePath escapes each segment of a slash-separated path.
func encodePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func joinURL(prefix, p string) string {
	return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(p, "/")
}
