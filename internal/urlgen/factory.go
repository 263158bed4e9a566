package urlgen

import (
	"fmt"

	"media-conversions/internal/filesystem"
	"media-conversions/internal/media"
	"media-conversions/internal/pathgen"
)

// Factory picks the Generator matching the driver of a media item's disk.
type Factory struct {
	disks *filesystem.Manager
	base  base
}

// NewFactory returns a Factory. conversions may be nil when only
// original URLs are needed.
func NewFactory(disks *filesystem.Manager, paths pathgen.Generator, conversions ConversionLookup) *Factory {
	if paths == nil {
		paths = pathgen.Default{}
	}
	return &Factory{disks: disks, base: base{paths: paths, conversions: conversions}}
}

// ForMedia returns the generator for the disk that holds conversionName:
// the media disk for the original, the conversions disk otherwise.
func (f *Factory) ForMedia(m *media.Media, conversionName string) (Generator, error) {
	name := m.Disk
	if conversionName != "" {
		name = m.ConversionsDiskName()
	}
	return f.forDisk(name)
}

// ForResponsiveImages returns the generator for the conversions disk.
func (f *Factory) ForResponsiveImages(m *media.Media) (Generator, error) {
	return f.forDisk(m.ConversionsDiskName())
}

func (f *Factory) forDisk(name string) (Generator, error) {
	d, err := f.disks.Disk(name)
	if err != nil {
		return nil, err
	}
	cfg := d.Config()
	switch d.Driver() {
	case filesystem.DriverLocal:
		return &Local{base: f.base, disk: d}, nil
	case filesystem.DriverS3:
		return &S3{object{base: f.base, disk: d, domain: s3Domain(cfg)}}, nil
	case filesystem.DriverGCS:
		return &GCS{object{base: f.base, disk: d, domain: gcsDomain(cfg)}}, nil
	default:
		return nil, fmt.Errorf("no url generator for driver %q", d.Driver())
	}
}
