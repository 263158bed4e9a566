package media

import (
	"fmt"
	"time"

	"media-conversions/internal/manipulations"
	"media-conversions/internal/mediatypes"
)

// OriginalResponsiveKey is the responsive-images key used for renditions of
// the original file rather than of a named conversion.
const OriginalResponsiveKey = "medialibrary_original"

// ResponsiveSet is the stored state of one responsive ladder.
type ResponsiveSet struct {
	URLs      []string `json:"urls"`
	Base64SVG string   `json:"base64svg,omitempty"`
}

// Media is the record of one stored original file. Persistence is handled
// by a Store; this type only carries state.
type Media struct {
	ID              int64  `json:"id"`
	UUID            string `json:"uuid"`
	ModelType       string `json:"model_type"`
	ModelID         int64  `json:"model_id"`
	CollectionName  string `json:"collection_name"`
	Name            string `json:"name"`
	FileName        string `json:"file_name"`
	MimeType        string `json:"mime_type"`
	Disk            string `json:"disk"`
	ConversionsDisk string `json:"conversions_disk,omitempty"`
	Size            int64  `json:"size"`

	// Manipulations holds per-item overrides keyed by conversion name, or
	// "*" for every conversion.
	Manipulations        map[string]manipulations.Group `json:"manipulations"`
	CustomProperties     map[string]any                 `json:"custom_properties"`
	GeneratedConversions map[string]bool                `json:"generated_conversions"`
	ResponsiveImages     map[string]ResponsiveSet       `json:"responsive_images"`

	OrderColumn int        `json:"order_column"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Extension returns the lowercase extension of the original file.
func (m *Media) Extension() string {
	return mediatypes.Extension(m.FileName)
}

// Stem returns the original file name without extension.
func (m *Media) Stem() string {
	return mediatypes.Stem(m.FileName)
}

// Type classifies the original by extension first, then by MIME type.
func (m *Media) Type() mediatypes.FileType {
	if t := mediatypes.GetFileType("." + m.Extension()); t != mediatypes.FileTypeOther {
		return t
	}
	return mediatypes.TypeFromMime(m.MimeType)
}

// ConversionsDiskName returns the disk conversions are written to.
func (m *Media) ConversionsDiskName() string {
	if m.ConversionsDisk != "" {
		return m.ConversionsDisk
	}
	return m.Disk
}

// IsTrashed reports whether the record has been soft deleted.
func (m *Media) IsTrashed() bool {
	return m.DeletedAt != nil
}

// HasGeneratedConversion reports whether name has been marked generated.
func (m *Media) HasGeneratedConversion(name string) bool {
	return m.GeneratedConversions[name]
}

// MarkAsConversionGenerated records the generation state of name.
func (m *Media) MarkAsConversionGenerated(name string, generated bool) {
	if m.GeneratedConversions == nil {
		m.GeneratedConversions = make(map[string]bool)
	}
	m.GeneratedConversions[name] = generated
}

// ResponsiveSetFor returns a copy of the stored ladder for key.
func (m *Media) ResponsiveSetFor(key string) (ResponsiveSet, bool) {
	set, ok := m.ResponsiveImages[key]
	if !ok {
		return ResponsiveSet{}, false
	}
	set.URLs = append([]string(nil), set.URLs...)
	return set, true
}

// AppendResponsiveURL appends fileName to the ladder stored under key.
func (m *Media) AppendResponsiveURL(key, fileName string) {
	if m.ResponsiveImages == nil {
		m.ResponsiveImages = make(map[string]ResponsiveSet)
	}
	set := m.ResponsiveImages[key]
	set.URLs = append(set.URLs, fileName)
	m.ResponsiveImages[key] = set
}

// SetResponsivePlaceholder stores the base64 SVG placeholder under key.
func (m *Media) SetResponsivePlaceholder(key, base64SVG string) {
	if m.ResponsiveImages == nil {
		m.ResponsiveImages = make(map[string]ResponsiveSet)
	}
	set := m.ResponsiveImages[key]
	set.Base64SVG = base64SVG
	m.ResponsiveImages[key] = set
}

// ReplaceResponsiveImages stores set under key in place of any previous
// ladder.
func (m *Media) ReplaceResponsiveImages(key string, set ResponsiveSet) {
	if m.ResponsiveImages == nil {
		m.ResponsiveImages = make(map[string]ResponsiveSet)
	}
	set.URLs = append([]string(nil), set.URLs...)
	m.ResponsiveImages[key] = set
}

// ForgetResponsiveImages removes key from the responsive-images map.
func (m *Media) ForgetResponsiveImages(key string) {
	delete(m.ResponsiveImages, key)
}

// HumanReadableSize formats Size with binary units, e.g. "1.5 MB".
func (m *Media) HumanReadableSize() string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(m.Size)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", m.Size)
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}

// Clone returns a deep copy of m.
func (m *Media) Clone() *Media {
	c := *m

	if m.Manipulations != nil {
		c.Manipulations = make(map[string]manipulations.Group, len(m.Manipulations))
		for k, g := range m.Manipulations {
			c.Manipulations[k] = g.Clone()
		}
	}
	if m.CustomProperties != nil {
		c.CustomProperties = deepCopyMap(m.CustomProperties)
	}
	if m.GeneratedConversions != nil {
		c.GeneratedConversions = make(map[string]bool, len(m.GeneratedConversions))
		for k, v := range m.GeneratedConversions {
			c.GeneratedConversions[k] = v
		}
	}
	if m.ResponsiveImages != nil {
		c.ResponsiveImages = make(map[string]ResponsiveSet, len(m.ResponsiveImages))
		for k, v := range m.ResponsiveImages {
			v.URLs = append([]string(nil), v.URLs...)
			c.ResponsiveImages[k] = v
		}
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// CopyDerivedStateFrom replaces the generated-conversions, responsive-images
// and custom-properties maps of m with copies of those on src.
func (m *Media) CopyDerivedStateFrom(src *Media) {
	fresh := src.Clone()
	m.GeneratedConversions = fresh.GeneratedConversions
	m.ResponsiveImages = fresh.ResponsiveImages
	m.CustomProperties = fresh.CustomProperties
	m.UpdatedAt = fresh.UpdatedAt
}
