// Package pathgen decides where a media item's files live on a disk.
package pathgen

import (
	"path"
	"strconv"
	"strings"

	"media-conversions/internal/media"
)

// Generator returns the directories of a media item's original,
// conversions and responsive renditions. Every path ends with a slash.
type Generator interface {
	PathFor(m *media.Media) string
	PathForConversions(m *media.Media) string
	PathForResponsiveImages(m *media.Media) string
}

// Default stores everything under the media ID.
type Default struct{}

func (Default) PathFor(m *media.Media) string {
	return strconv.FormatInt(m.ID, 10) + "/"
}

func (d Default) PathForConversions(m *media.Media) string {
	return d.PathFor(m) + "conversions/"
}

func (d Default) PathForResponsiveImages(m *media.Media) string {
	return d.PathFor(m) + "responsive-images/"
}

// Prefixed places the layout of Base below a fixed prefix.
type Prefixed struct {
	Prefix string
	Base   Generator
}

// NewPrefixed returns a Prefixed generator over Default.
func NewPrefixed(prefix string) Prefixed {
	return Prefixed{Prefix: prefix, Base: Default{}}
}

func (p Prefixed) PathFor(m *media.Media) string {
	return p.join(p.base().PathFor(m))
}

func (p Prefixed) PathForConversions(m *media.Media) string {
	return p.join(p.base().PathForConversions(m))
}

func (p Prefixed) PathForResponsiveImages(m *media.Media) string {
	return p.join(p.base().PathForResponsiveImages(m))
}

func (p Prefixed) base() Generator {
	if p.Base == nil {
		return Default{}
	}
	return p.Base
}

func (p Prefixed) join(rel string) string {
	prefix := strings.Trim(p.Prefix, "/")
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel) + "/"
}

// OriginalPath is the full disk path of the original file.
func OriginalPath(g Generator, m *media.Media) string {
	return g.PathFor(m) + m.FileName
}

// ConversionPath is the full disk path of a conversion file.
func ConversionPath(g Generator, m *media.Media, fileName string) string {
	return g.PathForConversions(m) + fileName
}

// ResponsivePath is the full disk path of a responsive rendition.
func ResponsivePath(g Generator, m *media.Media, fileName string) string {
	return g.PathForResponsiveImages(m) + fileName
}
