package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/facette/natsort"
)

// Local is a disk rooted in a local directory.
type Local struct {
	cfg   DiskConfig
	root  string
	retry RetryConfig
}

// NewLocal creates the root directory if needed and returns the disk.
func NewLocal(cfg DiskConfig) (*Local, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("local disk %s has no root", cfg.Name)
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create disk root: %w", err)
	}
	cfg.Driver = DriverLocal
	return &Local{cfg: cfg, root: root, retry: DefaultRetryConfig()}, nil
}

func (l *Local) Name() string       { return l.cfg.Name }
func (l *Local) Driver() string     { return DriverLocal }
func (l *Local) Config() DiskConfig { return l.cfg }

// Root returns the absolute root directory.
func (l *Local) Root() string { return l.root }

// FullPath resolves a disk path, refusing paths that escape the root.
func (l *Local) FullPath(path string) (string, error) {
	full := filepath.Join(l.root, filepath.FromSlash(cleanKey(path)))
	if full != l.root && !strings.HasPrefix(full, l.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes disk root", ErrStorage, path)
	}
	return full, nil
}

// Put writes r to a temporary file and renames it into place so readers
// never see a partial file.
func (l *Local) Put(_ context.Context, path string, r io.Reader) error {
	err := timed(DriverLocal, "put", func() error {
		full, err := l.FullPath(path)
		if err != nil {
			return err
		}
		dir := filepath.Dir(full)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}

		tmp, err := os.CreateTemp(dir, ".upload-*")
		if err != nil {
			return err
		}
		tmpName := tmp.Name()
		defer func() { _ = os.Remove(tmpName) }()

		if _, err := io.Copy(tmp, r); err != nil {
			_ = tmp.Close()
			return err
		}
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			return err
		}
		if err := tmp.Close(); err != nil {
			return err
		}
		if err := os.Chmod(tmpName, 0o644); err != nil {
			return err
		}
		return RenameWithRetry(tmpName, full, l.cfg.Name, l.retry)
	})
	return storageError("put", l.cfg.Name, path, err)
}

func (l *Local) Open(_ context.Context, path string) (io.ReadCloser, error) {
	var f *os.File
	err := timed(DriverLocal, "open", func() error {
		full, err := l.FullPath(path)
		if err != nil {
			return err
		}
		f, err = OpenWithRetry(full, l.cfg.Name, l.retry)
		if errors.Is(err, fs.ErrNotExist) {
			return ErrFileNotFound
		}
		return err
	})
	if err != nil {
		return nil, storageError("open", l.cfg.Name, path, err)
	}
	return f, nil
}

// Delete removes one file. Missing files are not an error.
func (l *Local) Delete(_ context.Context, path string) error {
	err := timed(DriverLocal, "delete", func() error {
		full, err := l.FullPath(path)
		if err != nil {
			return err
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
	return storageError("delete", l.cfg.Name, path, err)
}

// DeleteDirectory removes dir and everything below it.
func (l *Local) DeleteDirectory(_ context.Context, dir string) error {
	err := timed(DriverLocal, "delete_directory", func() error {
		full, err := l.FullPath(dir)
		if err != nil {
			return err
		}
		if full == l.root {
			return fmt.Errorf("refusing to delete disk root")
		}
		return os.RemoveAll(full)
	})
	return storageError("delete_directory", l.cfg.Name, dir, err)
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	exists := false
	err := timed(DriverLocal, "exists", func() error {
		full, err := l.FullPath(path)
		if err != nil {
			return err
		}
		info, err := StatWithRetry(full, l.cfg.Name, l.retry)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = !info.IsDir()
		return nil
	})
	return exists, storageError("exists", l.cfg.Name, path, err)
}

func (l *Local) List(_ context.Context, dir string) ([]string, error) {
	var files []string
	err := timed(DriverLocal, "list", func() error {
		full, err := l.FullPath(dir)
		if err != nil {
			return err
		}
		err = filepath.WalkDir(full, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
				return nil
			}
			rel, err := filepath.Rel(l.root, p)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
			return nil
		})
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, storageError("list", l.cfg.Name, dir, err)
	}
	sortNatural(files)
	return files, nil
}

func sortNatural(files []string) {
	natsort.Sort(files)
}

// Move renames a file within the disk.
func (l *Local) Move(_ context.Context, from, to string) error {
	err := timed(DriverLocal, "move", func() error {
		src, err := l.FullPath(from)
		if err != nil {
			return err
		}
		dst, err := l.FullPath(to)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		err = RenameWithRetry(src, dst, l.cfg.Name, l.retry)
		if errors.Is(err, fs.ErrNotExist) {
			return ErrFileNotFound
		}
		return err
	})
	return storageError("move", l.cfg.Name, from, err)
}
