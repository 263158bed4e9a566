package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"media-conversions/internal/logging"
	"media-conversions/internal/mediatypes"
)

// GCS is a disk stored in a Google Cloud Storage bucket.
type GCS struct {
	cfg    DiskConfig
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCS builds the client from cfg. Without a credentials file the
// application default credentials are used.
func NewGCS(ctx context.Context, cfg DiskConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs disk %s has no bucket", cfg.Name)
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		credentialsJSON, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read gcs credentials: %w", err)
		}
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	cfg.Driver = DriverGCS

	logging.Info("GCS disk %s using bucket %s", cfg.Name, cfg.Bucket)
	return &GCS{cfg: cfg, client: client, bucket: client.Bucket(cfg.Bucket)}, nil
}

func (d *GCS) Name() string       { return d.cfg.Name }
func (d *GCS) Driver() string     { return DriverGCS }
func (d *GCS) Config() DiskConfig { return d.cfg }

// Close releases the client.
func (d *GCS) Close() error {
	return d.client.Close()
}

func (d *GCS) object(p string) *storage.ObjectHandle {
	return d.bucket.Object(objectKey(d.cfg.Root, p))
}

func (d *GCS) Put(ctx context.Context, p string, r io.Reader) error {
	err := timed(DriverGCS, "put", func() error {
		wc := d.object(p).NewWriter(ctx)
		wc.ContentType = mediatypes.GetMimeType(path.Ext(p))
		if _, err := io.Copy(wc, r); err != nil {
			_ = wc.Close()
			return fmt.Errorf("io.Copy: %w", err)
		}
		if err := wc.Close(); err != nil {
			return fmt.Errorf("Writer.Close: %w", err)
		}
		return nil
	})
	return storageError("put", d.cfg.Name, p, err)
}

func (d *GCS) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := timed(DriverGCS, "open", func() error {
		r, err := d.object(p).NewReader(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ErrFileNotFound
		}
		if err != nil {
			return err
		}
		rc = r
		return nil
	})
	if err != nil {
		return nil, storageError("open", d.cfg.Name, p, err)
	}
	return rc, nil
}

func (d *GCS) Delete(ctx context.Context, p string) error {
	err := timed(DriverGCS, "delete", func() error {
		err := d.object(p).Delete(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		return err
	})
	return storageError("delete", d.cfg.Name, p, err)
}

func (d *GCS) DeleteDirectory(ctx context.Context, dir string) error {
	err := timed(DriverGCS, "delete_directory", func() error {
		keys, err := d.listKeys(ctx, dir)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := d.bucket.Object(k).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
				return err
			}
		}
		return nil
	})
	return storageError("delete_directory", d.cfg.Name, dir, err)
}

func (d *GCS) Exists(ctx context.Context, p string) (bool, error) {
	exists := false
	err := timed(DriverGCS, "exists", func() error {
		_, err := d.object(p).Attrs(ctx)
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, storageError("exists", d.cfg.Name, p, err)
}

func (d *GCS) List(ctx context.Context, dir string) ([]string, error) {
	var files []string
	err := timed(DriverGCS, "list", func() error {
		keys, err := d.listKeys(ctx, dir)
		if err != nil {
			return err
		}
		files = stripRoot(d.cfg.Root, keys)
		return nil
	})
	if err != nil {
		return nil, storageError("list", d.cfg.Name, dir, err)
	}
	return files, nil
}

func (d *GCS) listKeys(ctx context.Context, dir string) ([]string, error) {
	it := d.bucket.Objects(ctx, &storage.Query{Prefix: dirPrefix(objectKey(d.cfg.Root, dir))})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return keys, nil
		}
		if err != nil {
			return nil, err
		}
		keys = append(keys, attrs.Name)
	}
}

// TemporaryURL returns a V4 signed GET URL for p.
func (d *GCS) TemporaryURL(_ context.Context, p string, expiry time.Duration, options map[string]string) (string, error) {
	query := url.Values{}
	if v := options[OptionContentType]; v != "" {
		query.Set("response-content-type", v)
	}
	if v := options[OptionContentDisposition]; v != "" {
		query.Set("response-content-disposition", v)
	}
	u, err := d.bucket.SignedURL(objectKey(d.cfg.Root, p), &storage.SignedURLOptions{
		Method:          "GET",
		Expires:         time.Now().Add(expiry),
		Scheme:          storage.SigningSchemeV4,
		QueryParameters: query,
	})
	if err != nil {
		return "", storageError("sign", d.cfg.Name, p, err)
	}
	return u, nil
}
