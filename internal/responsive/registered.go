package responsive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"media-conversions/internal/filesystem"
	"media-conversions/internal/logging"
	"media-conversions/internal/media"
)

// Key maps a conversion name to its responsive-images key. The empty name
// is the original file.
func Key(conversionName string) string {
	if conversionName == "" {
		return media.OriginalResponsiveKey
	}
	return conversionName
}

// Registered is the set of renditions stored for one conversion of one
// media item. Names that decode to another conversion are left out.
type Registered struct {
	media  *media.Media
	key    string
	files  []Image
	stray  []string
	svg    string
	urlGen DirectoryURLer
}

// NewRegistered loads the renditions of conversionName from m.
func NewRegistered(m *media.Media, conversionName string, urls DirectoryURLer) *Registered {
	key := Key(conversionName)
	r := &Registered{media: m, key: key, urlGen: urls}

	set, ok := m.ResponsiveSetFor(key)
	if !ok {
		return r
	}
	r.svg = set.Base64SVG
	for _, name := range set.URLs {
		img := Image{FileName: name, Media: m}
		if img.GeneratedFor() != key {
			logging.Debug("Skipping responsive image %s: not generated for %s", name, key)
			r.stray = append(r.stray, name)
			continue
		}
		r.files = append(r.files, img)
	}
	return r
}

// Key returns the responsive-images key of the set.
func (r *Registered) Key() string { return r.key }

// Files returns the renditions in registration order.
func (r *Registered) Files() []Image { return r.files }

// IsEmpty reports whether no rendition is registered.
func (r *Registered) IsEmpty() bool { return len(r.files) == 0 }

// URLs returns the public URL of every rendition in registration order.
func (r *Registered) URLs() []string {
	urls := make([]string, 0, len(r.files))
	for _, f := range r.files {
		urls = append(urls, f.URL(r.urlGen))
	}
	return urls
}

// Srcset returns the HTML srcset value. With withPlaceholder set, the tiny
// SVG is appended last with a 32w descriptor when one is stored.
func (r *Registered) Srcset(withPlaceholder bool) string {
	parts := make([]string, 0, len(r.files)+1)
	for _, f := range r.files {
		parts = append(parts, fmt.Sprintf("%s %dw", f.URL(r.urlGen), f.Width()))
	}
	if withPlaceholder && r.svg != "" {
		parts = append(parts, r.svg+" 32w")
	}
	return strings.Join(parts, ", ")
}

// PlaceholderSVG returns the stored base64 SVG data URI, or "".
func (r *Registered) PlaceholderSVG() string { return r.svg }

// Delete removes every file stored under the key from storage, including
// names left out by the conversion filter, then drops the key from the
// record and persists it. m is updated in place. When a file cannot be
// removed the record is left untouched.
func (r *Registered) Delete(ctx context.Context, fs *filesystem.Filesystem, store media.Store) error {
	var errs []error
	for _, f := range r.files {
		if err := fs.RemoveFile(ctx, r.media, filesystem.KindResponsive, f.FileName); err != nil {
			errs = append(errs, err)
		}
	}
	for _, name := range r.stray {
		logging.Warn("Removing responsive image %s stored under %s for media %d", name, r.key, r.media.ID)
		if err := fs.RemoveFile(ctx, r.media, filesystem.KindResponsive, name); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	updated, err := store.Update(ctx, r.media.ID, func(m *media.Media) error {
		m.ForgetResponsiveImages(r.key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("forget responsive images %s: %w", r.key, err)
	}
	r.media.CopyDerivedStateFrom(updated)
	r.files, r.stray, r.svg = nil, nil, ""
	logging.Info("Deleted responsive images %s of media %d", r.key, r.media.ID)
	return nil
}
