package conversion

import (
	"strconv"
	"strings"

	"media-conversions/internal/manipulations"
	"media-conversions/internal/mediatypes"
)

// AllCollections is the collection filter that matches every collection.
const AllCollections = "*"

// keepableFormats are the original extensions KeepOriginalImageFormat
// preserves. Anything else falls back to the format manipulation.
var keepableFormats = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"pjpg": true,
	"png":  true,
	"gif":  true,
}

// Conversion is one named derived-rendition recipe.
//
// Conversions are built fresh for every resolution and are only mutated
// while the resolver prepends per-item manipulations.
type Conversion struct {
	name                      string
	manipulations             *manipulations.Set
	collections               []string
	queued                    bool
	extractVideoFrameAtSecond float64
	keepOriginalImageFormat   bool
	generateResponsiveImages  bool
}

// New returns a queued conversion whose chain starts with the default
// group {optimize, format: jpg}.
func New(name string) *Conversion {
	return &Conversion{
		name: name,
		manipulations: manipulations.New(manipulations.Group{
			manipulations.Optimize: "",
			manipulations.Format:   "jpg",
		}),
		queued: true,
	}
}

// Name returns the conversion name.
func (c *Conversion) Name() string {
	return c.name
}

// Manipulations returns the conversion's chain. The set is owned by c;
// callers that need an independent copy must Clone it.
func (c *Conversion) Manipulations() *manipulations.Set {
	return c.manipulations
}

// Add sets op on the last group of the chain.
func (c *Conversion) Add(op, value string) *Conversion {
	c.manipulations.Add(op, value)
	return c
}

// NextGroup starts a new manipulation group.
func (c *Conversion) NextGroup() *Conversion {
	c.manipulations.NextGroup()
	return c
}

// SetManipulations appends every group of set to the chain.
func (c *Conversion) SetManipulations(set *manipulations.Set) *Conversion {
	c.manipulations.NextGroup()
	c.manipulations.Merge(set)
	return c
}

func (c *Conversion) Width(w int) *Conversion {
	return c.Add(manipulations.Width, strconv.Itoa(w))
}

func (c *Conversion) Height(h int) *Conversion {
	return c.Add(manipulations.Height, strconv.Itoa(h))
}

// Fit resizes into a w x h box using the given fit mode (contain, max,
// fill, stretch or crop).
func (c *Conversion) Fit(mode string, w, h int) *Conversion {
	c.Add(manipulations.Fit, mode)
	c.Add(manipulations.Width, strconv.Itoa(w))
	return c.Add(manipulations.Height, strconv.Itoa(h))
}

func (c *Conversion) Format(format string) *Conversion {
	return c.Add(manipulations.Format, strings.ToLower(format))
}

func (c *Conversion) Quality(q int) *Conversion {
	return c.Add(manipulations.Quality, strconv.Itoa(q))
}

// NonOptimized drops the optimize operation from the chain.
func (c *Conversion) NonOptimized() *Conversion {
	c.manipulations.Remove(manipulations.Optimize)
	return c
}

// AddAsFirstManipulations prepends a copy of set to the chain.
func (c *Conversion) AddAsFirstManipulations(set *manipulations.Set) *Conversion {
	c.manipulations.AddAsFirstManipulations(set)
	return c
}

// PerformOnCollections limits the conversion to the named collections.
// No names, "" or "*" mean every collection.
func (c *Conversion) PerformOnCollections(names ...string) *Conversion {
	c.collections = append(c.collections, names...)
	return c
}

// Collections returns the collection filter.
func (c *Conversion) Collections() []string {
	return append([]string(nil), c.collections...)
}

// ShouldBePerformedOn reports whether the conversion applies to media in
// the given collection.
func (c *Conversion) ShouldBePerformedOn(collection string) bool {
	if len(c.collections) == 0 {
		return true
	}
	for _, name := range c.collections {
		if name == "" || name == AllCollections || name == collection {
			return true
		}
	}
	return false
}

// Queued marks the conversion as deferrable.
func (c *Conversion) Queued() *Conversion {
	c.queued = true
	return c
}

// NonQueued marks the conversion as immediate.
func (c *Conversion) NonQueued() *Conversion {
	c.queued = false
	return c
}

// ShouldBeQueued reports whether the conversion may run asynchronously.
func (c *Conversion) ShouldBeQueued() bool {
	return c.queued
}

// ExtractVideoFrameAtSecond sets the timecode used for video sources.
// Negative values are stored as 0.
func (c *Conversion) ExtractVideoFrameAtSecond(sec float64) *Conversion {
	if sec < 0 {
		sec = 0
	}
	c.extractVideoFrameAtSecond = sec
	return c
}

// FrameSecond returns the timecode used for video sources.
func (c *Conversion) FrameSecond() float64 {
	return c.extractVideoFrameAtSecond
}

// KeepOriginalImageFormat keeps jpg, png and gif originals in their own
// format instead of the chain's format.
func (c *Conversion) KeepOriginalImageFormat() *Conversion {
	c.keepOriginalImageFormat = true
	return c
}

func (c *Conversion) KeepsOriginalImageFormat() bool {
	return c.keepOriginalImageFormat
}

// WithResponsiveImages makes the conversion's output the base of a
// responsive-image ladder.
func (c *Conversion) WithResponsiveImages() *Conversion {
	c.generateResponsiveImages = true
	return c
}

func (c *Conversion) GeneratesResponsiveImages() bool {
	return c.generateResponsiveImages
}

// ResultExtension returns the extension of the derived file for an
// original with extension originalExt.
func (c *Conversion) ResultExtension(originalExt string) string {
	originalExt = strings.ToLower(strings.TrimPrefix(originalExt, "."))
	if c.keepOriginalImageFormat && keepableFormats[originalExt] {
		return originalExt
	}
	if format, ok := c.manipulations.Get(manipulations.Format); ok && format != "" {
		return strings.ToLower(format)
	}
	return originalExt
}

// ConversionFileName returns the derived file name for an original:
// "{stem}-{conversion}.{ext}".
func (c *Conversion) ConversionFileName(originalFileName string) string {
	ext := c.ResultExtension(mediatypes.Extension(originalFileName))
	return mediatypes.Stem(originalFileName) + "-" + c.name + "." + ext
}

// EffectiveManipulations returns a copy of the chain with the output format
// pinned to ResultExtension(originalExt).
func (c *Conversion) EffectiveManipulations(originalExt string) *manipulations.Set {
	set := c.manipulations.Clone()
	ext := c.ResultExtension(originalExt)
	if current, ok := set.Get(manipulations.Format); ok && current == ext {
		return set
	}
	if ext == "" {
		return set
	}
	return set.NextGroup().Add(manipulations.Format, ext)
}

// Clone returns an independent copy of c.
func (c *Conversion) Clone() *Conversion {
	cp := *c
	cp.manipulations = c.manipulations.Clone()
	cp.collections = append([]string(nil), c.collections...)
	return &cp
}
