package responsive

import (
	"net/url"

	"media-conversions/internal/logging"
	"media-conversions/internal/media"
)

// DirectoryURLer returns the public URL of a media item's responsive
// images directory. urlgen generators implement it.
type DirectoryURLer interface {
	ResponsiveImagesDirectoryURL(m *media.Media) string
}

// Image is one stored rendition. Its properties are decoded from the file
// name on demand.
type Image struct {
	FileName string
	Media    *media.Media
}

func (i Image) properties() Properties {
	p, err := Decode(i.FileName)
	if err != nil {
		logging.Debug("Responsive image %s: %v", i.FileName, err)
	}
	return p
}

// GeneratedFor returns the conversion name the rendition belongs to.
func (i Image) GeneratedFor() string { return i.properties().ConversionName }

func (i Image) Width() int  { return i.properties().Width }
func (i Image) Height() int { return i.properties().Height }

// URL returns the public URL of the rendition.
func (i Image) URL(urls DirectoryURLer) string {
	return urls.ResponsiveImagesDirectoryURL(i.Media) + url.PathEscape(i.FileName)
}
