package urlgen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"media-conversions/internal/filesystem"
	"media-conversions/internal/media"
)

// Local builds URLs below the disk's public URL.
type Local struct {
	base
	disk filesystem.Disk
}

func (g *Local) URLFor(m *media.Media, conversionName string) (string, error) {
	p, err := g.PathFor(m, conversionName)
	if err != nil {
		return "", err
	}
	return joinURL(g.disk.Config().URL, encodePath(p)), nil
}

// TemporaryURLFor always fails; local disks have no signing mechanism.
func (g *Local) TemporaryURLFor(context.Context, *media.Media, string, time.Duration, map[string]string) (string, error) {
	return "", fmt.Errorf("%w on %s disk %s", ErrTemporaryURLUnsupported, filesystem.DriverLocal, g.disk.Name())
}

func (g *Local) ResponsiveImagesDirectoryURL(m *media.Media) string {
	return joinURL(g.disk.Config().URL, encodePath(g.paths.PathForResponsiveImages(m)))
}

// object serves both S3 and GCS: a public base URL plus signed temporary URLs.
type object struct {
	base
	disk   filesystem.Disk
	domain string
}

func (g *object) URLFor(m *media.Media, conversionName string) (string, error) {
	p, err := g.PathFor(m, conversionName)
	if err != nil {
		return "", err
	}
	return joinURL(g.domain, encodePath(g.rooted(p))), nil
}

func (g *object) TemporaryURLFor(ctx context.Context, m *media.Media, conversionName string, expiry time.Duration, options map[string]string) (string, error) {
	signer, ok := g.disk.(filesystem.TemporaryURLer)
	if !ok {
		return "", fmt.Errorf("%w on disk %s", ErrTemporaryURLUnsupported, g.disk.Name())
	}
	p, err := g.PathFor(m, conversionName)
	if err != nil {
		return "", err
	}
	return signer.TemporaryURL(ctx, p, expiry, options)
}

func (g *object) ResponsiveImagesDirectoryURL(m *media.Media) string {
	return joinURL(g.domain, encodePath(g.rooted(g.paths.PathForResponsiveImages(m))))
}

func (g *object) rooted(p string) string {
	root := strings.Trim(g.disk.Config().Root, "/")
	if root == "" {
		return p
	}
	return root + "/" + p
}

// S3 builds URLs on the bucket endpoint, or on the configured domain.
type S3 struct{ object }

// GCS builds URLs on storage.googleapis.com, or on the configured domain.
type GCS struct{ object }

func s3Domain(cfg filesystem.DiskConfig) string {
	switch {
	case cfg.URL != "":
		return cfg.URL
	case cfg.Endpoint != "":
		return joinURL(cfg.Endpoint, cfg.Bucket)
	case cfg.Region != "":
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	default:
		return fmt.Sprintf("https://%s.s3.amazonaws.com", cfg.Bucket)
	}
}

func gcsDomain(cfg filesystem.DiskConfig) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return "https://storage.googleapis.com/" + cfg.Bucket
}
