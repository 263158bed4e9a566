package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrStorage wraps every failure of a disk or the Filesystem service.
	ErrStorage = errors.New("storage failure")

	// ErrFileNotFound is returned by Open when the path does not exist.
	// It wraps ErrStorage.
	ErrFileNotFound = fmt.Errorf("%w: file not found", ErrStorage)

	// ErrUnknownDisk is returned when no disk is registered under a name.
	ErrUnknownDisk = errors.New("unknown disk")
)

// Drivers
const (
	DriverLocal = "local"
	DriverS3    = "s3"
	DriverGCS   = "gcs"
)

// DiskConfig describes one named disk.
type DiskConfig struct {
	Name   string
	Driver string

	// Root is the local directory for local disks and the key prefix for
	// object stores.
	Root string

	// URL is the public base URL of a local disk. For object stores it is
	// the optional domain that replaces the bucket endpoint in URLs.
	URL string

	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string

	// CredentialsFile is a GCS service-account JSON key.
	CredentialsFile string
}

// Disk stores files under slash-separated paths relative to its root.
type Disk interface {
	Name() string
	Driver() string
	Config() DiskConfig
	Put(ctx context.Context, path string, r io.Reader) error
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	DeleteDirectory(ctx context.Context, dir string) error
	Exists(ctx context.Context, path string) (bool, error)
	// List returns the paths of every file below dir in natural order.
	List(ctx context.Context, dir string) ([]string, error)
}

// Temporary URL options understood by the object-store drivers.
const (
	OptionContentType        = "ResponseContentType"
	OptionContentDisposition = "ResponseContentDisposition"
)

// TemporaryURLer is implemented by disks that can sign time-limited URLs.
// options may carry OptionContentType and OptionContentDisposition.
type TemporaryURLer interface {
	TemporaryURL(ctx context.Context, path string, expiry time.Duration, options map[string]string) (string, error)
}

// timed records one disk operation with the package observer.
func timed(driver, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	observe().ObserveOperation(driver, operation, time.Since(start).Seconds(), err)
	return err
}

// storageError wraps err with ErrStorage unless it already is one.
func storageError(op, disk, path string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) {
		return fmt.Errorf("%s %s:%s: %w", op, disk, path, err)
	}
	return fmt.Errorf("%w: %s %s:%s: %v", ErrStorage, op, disk, path, err)
}

// cleanKey normalizes a disk-relative path.
func cleanKey(path string) string {
	return strings.TrimPrefix(strings.ReplaceAll(path, "\\", "/"), "/")
}

// Manager resolves disks by name.
type Manager struct {
	mu    sync.RWMutex
	disks map[string]Disk
}

// NewManager returns a Manager holding disks.
func NewManager(disks ...Disk) *Manager {
	m := &Manager{disks: make(map[string]Disk)}
	for _, d := range disks {
		m.disks[d.Name()] = d
	}
	return m
}

// OpenDisks builds a Manager from configs, creating a driver per disk.
func OpenDisks(ctx context.Context, configs []DiskConfig) (*Manager, error) {
	m := NewManager()
	for _, cfg := range configs {
		var (
			d   Disk
			err error
		)
		switch cfg.Driver {
		case DriverLocal, "":
			d, err = NewLocal(cfg)
		case DriverS3:
			d, err = NewS3(ctx, cfg)
		case DriverGCS:
			d, err = NewGCS(ctx, cfg)
		default:
			err = fmt.Errorf("unknown driver %q", cfg.Driver)
		}
		if err != nil {
			return nil, fmt.Errorf("disk %s: %w", cfg.Name, err)
		}
		m.Register(d)
	}
	return m, nil
}

// Register adds or replaces a disk.
func (m *Manager) Register(d Disk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disks[d.Name()] = d
}

// Disk returns the disk registered under name.
func (m *Manager) Disk(name string) (Disk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.disks[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownDisk, name)
	}
	return d, nil
}

// Names returns the registered disk names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.disks))
	for n := range m.disks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Drivers returns the distinct drivers in use, sorted.
func (m *Manager) Drivers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]bool{}
	var drivers []string
	for _, d := range m.disks {
		if !seen[d.Driver()] {
			seen[d.Driver()] = true
			drivers = append(drivers, d.Driver())
		}
	}
	sort.Strings(drivers)
	return drivers
}

var (
	_ Disk           = (*Local)(nil)
	_ Disk           = (*S3)(nil)
	_ Disk           = (*GCS)(nil)
	_ TemporaryURLer = (*S3)(nil)
	_ TemporaryURLer = (*GCS)(nil)
)
