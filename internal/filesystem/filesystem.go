package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"media-conversions/internal/logging"
	"media-conversions/internal/media"
	"media-conversions/internal/pathgen"
)

// Kind selects which directory of a media item a file belongs to.
type Kind int

const (
	KindOriginal Kind = iota
	KindConversion
	KindResponsive
)

func (k Kind) String() string {
	switch k {
	case KindOriginal:
		return "original"
	case KindConversion:
		return "conversion"
	case KindResponsive:
		return "responsive"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// mover is implemented by disks that can rename without copying.
type mover interface {
	Move(ctx context.Context, from, to string) error
}

// Filesystem moves media files between local scratch space and disks.
type Filesystem struct {
	disks *Manager
	paths pathgen.Generator
}

// New returns a Filesystem over disks, laid out by paths.
func New(disks *Manager, paths pathgen.Generator) *Filesystem {
	if paths == nil {
		paths = pathgen.Default{}
	}
	return &Filesystem{disks: disks, paths: paths}
}

// Disks returns the disk manager.
func (f *Filesystem) Disks() *Manager { return f.disks }

// Paths returns the path generator.
func (f *Filesystem) Paths() pathgen.Generator { return f.paths }

// DiskFor returns the disk holding files of kind for m. Originals live on
// the media disk, everything derived on the conversions disk.
func (f *Filesystem) DiskFor(m *media.Media, kind Kind) (Disk, error) {
	name := m.Disk
	if kind != KindOriginal {
		name = m.ConversionsDiskName()
	}
	d, err := f.disks.Disk(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return d, nil
}

// PathFor returns the disk path of fileName of the given kind.
func (f *Filesystem) PathFor(m *media.Media, kind Kind, fileName string) string {
	switch kind {
	case KindConversion:
		return pathgen.ConversionPath(f.paths, m, fileName)
	case KindResponsive:
		return pathgen.ResponsivePath(f.paths, m, fileName)
	default:
		return f.paths.PathFor(m) + fileName
	}
}

// CopyToMediaLibrary uploads the local file at localPath as fileName.
func (f *Filesystem) CopyToMediaLibrary(ctx context.Context, localPath string, m *media.Media, kind Kind, fileName string) error {
	d, err := f.DiskFor(m, kind)
	if err != nil {
		return err
	}
	src, err := OpenWithRetry(localPath, "scratch", DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrStorage, localPath, err)
	}
	defer func() { _ = src.Close() }()

	dest := f.PathFor(m, kind, fileName)
	if err := d.Put(ctx, dest, src); err != nil {
		return err
	}
	logging.Debug("Stored %s %s on disk %s", kind, dest, d.Name())
	return nil
}

// CopyFromMediaLibrary downloads the original of m to localPath and
// returns localPath.
func (f *Filesystem) CopyFromMediaLibrary(ctx context.Context, m *media.Media, localPath string) (string, error) {
	return f.Download(ctx, m, KindOriginal, m.FileName, localPath)
}

// Download copies one stored file to localPath and returns localPath.
func (f *Filesystem) Download(ctx context.Context, m *media.Media, kind Kind, fileName, localPath string) (string, error) {
	rc, err := f.Open(ctx, m, kind, fileName)
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("%w: download %s: %v", ErrStorage, fileName, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return localPath, nil
}

// Open streams one stored file.
func (f *Filesystem) Open(ctx context.Context, m *media.Media, kind Kind, fileName string) (io.ReadCloser, error) {
	d, err := f.DiskFor(m, kind)
	if err != nil {
		return nil, err
	}
	return d.Open(ctx, f.PathFor(m, kind, fileName))
}

// Exists reports whether a stored file is present.
func (f *Filesystem) Exists(ctx context.Context, m *media.Media, kind Kind, fileName string) (bool, error) {
	d, err := f.DiskFor(m, kind)
	if err != nil {
		return false, err
	}
	return d.Exists(ctx, f.PathFor(m, kind, fileName))
}

// RemoveFile deletes one stored file.
func (f *Filesystem) RemoveFile(ctx context.Context, m *media.Media, kind Kind, fileName string) error {
	d, err := f.DiskFor(m, kind)
	if err != nil {
		return err
	}
	return d.Delete(ctx, f.PathFor(m, kind, fileName))
}

// RemoveAllFiles deletes the original, every conversion and every
// responsive rendition of m. All directories are attempted.
func (f *Filesystem) RemoveAllFiles(ctx context.Context, m *media.Media) error {
	var errs []error

	if d, err := f.DiskFor(m, KindOriginal); err != nil {
		errs = append(errs, err)
	} else if err := d.DeleteDirectory(ctx, f.paths.PathFor(m)); err != nil {
		errs = append(errs, err)
	}

	if d, err := f.DiskFor(m, KindConversion); err != nil {
		errs = append(errs, err)
	} else {
		for _, dir := range []string{f.paths.PathForConversions(m), f.paths.PathForResponsiveImages(m)} {
			if err := d.DeleteDirectory(ctx, dir); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	logging.Info("Removed all files of media %d", m.ID)
	return nil
}

// Move renames a stored file of the given kind. Disks that cannot rename
// natively get a copy followed by a delete.
func (f *Filesystem) Move(ctx context.Context, m *media.Media, kind Kind, from, to string) error {
	if from == to {
		return nil
	}
	d, err := f.DiskFor(m, kind)
	if err != nil {
		return err
	}
	src, dst := f.PathFor(m, kind, from), f.PathFor(m, kind, to)

	if mv, ok := d.(mover); ok {
		return mv.Move(ctx, src, dst)
	}

	rc, err := d.Open(ctx, src)
	if err != nil {
		return err
	}
	err = d.Put(ctx, dst, rc)
	_ = rc.Close()
	if err != nil {
		return err
	}
	return d.Delete(ctx, src)
}
