package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"media-conversions/internal/logging"
	"media-conversions/internal/mediatypes"
)

// S3 is a disk stored in an S3 (or S3-compatible) bucket.
type S3 struct {
	cfg      DiskConfig
	client   *s3.Client
	uploader *manager.Uploader
	presign  *s3.PresignClient
}

// NewS3 builds the client from cfg. Static keys are used when set,
// otherwise the default AWS credential chain applies. A custom endpoint
// switches to path-style addressing for S3-compatible servers.
func NewS3(ctx context.Context, cfg DiskConfig) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 disk %s has no bucket", cfg.Name)
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	cfg.Driver = DriverS3

	logging.Info("S3 disk %s using bucket %s (region %s)", cfg.Name, cfg.Bucket, cfg.Region)
	return &S3{
		cfg:      cfg,
		client:   client,
		uploader: manager.NewUploader(client),
		presign:  s3.NewPresignClient(client),
	}, nil
}

func (d *S3) Name() string       { return d.cfg.Name }
func (d *S3) Driver() string     { return DriverS3 }
func (d *S3) Config() DiskConfig { return d.cfg }

// key maps a disk path to an object key under the configured root.
func (d *S3) key(p string) string {
	return objectKey(d.cfg.Root, p)
}

func objectKey(root, p string) string {
	root = strings.Trim(root, "/")
	p = cleanKey(p)
	if root == "" {
		return p
	}
	return path.Join(root, p)
}

func (d *S3) Put(ctx context.Context, p string, r io.Reader) error {
	err := timed(DriverS3, "put", func() error {
		_, err := d.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(d.cfg.Bucket),
			Key:         aws.String(d.key(p)),
			Body:        r,
			ContentType: aws.String(mediatypes.GetMimeType(path.Ext(p))),
		})
		return err
	})
	return storageError("put", d.cfg.Name, p, err)
}

func (d *S3) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	var body io.ReadCloser
	err := timed(DriverS3, "open", func() error {
		out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(d.cfg.Bucket),
			Key:    aws.String(d.key(p)),
		})
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return ErrFileNotFound
		}
		if err != nil {
			return err
		}
		body = out.Body
		return nil
	})
	if err != nil {
		return nil, storageError("open", d.cfg.Name, p, err)
	}
	return body, nil
}

func (d *S3) Delete(ctx context.Context, p string) error {
	err := timed(DriverS3, "delete", func() error {
		_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(d.cfg.Bucket),
			Key:    aws.String(d.key(p)),
		})
		return err
	})
	return storageError("delete", d.cfg.Name, p, err)
}

// DeleteDirectory deletes every object under the dir prefix.
func (d *S3) DeleteDirectory(ctx context.Context, dir string) error {
	err := timed(DriverS3, "delete_directory", func() error {
		keys, err := d.listKeys(ctx, dir)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(d.cfg.Bucket),
				Key:    aws.String(k),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return storageError("delete_directory", d.cfg.Name, dir, err)
}

func (d *S3) Exists(ctx context.Context, p string) (bool, error) {
	exists := false
	err := timed(DriverS3, "exists", func() error {
		_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(d.cfg.Bucket),
			Key:    aws.String(d.key(p)),
		})
		var nf *types.NotFound
		if errors.As(err, &nf) {
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

func (d *S3) List(ctx context.Context, dir string) ([]string, error) {
	var files []string
	err := timed(DriverS3, "list", func() error {
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

func (d *S3) listKeys(ctx context.Context, dir string) ([]string, error) {
	prefix := dirPrefix(d.key(dir))
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.cfg.Bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// TemporaryURL presigns a GET for the object at p.
func (d *S3) TemporaryURL(ctx context.Context, p string, expiry time.Duration, options map[string]string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.key(p)),
	}
	if v := options[OptionContentType]; v != "" {
		input.ResponseContentType = aws.String(v)
	}
	if v := options[OptionContentDisposition]; v != "" {
		input.ResponseContentDisposition = aws.String(v)
	}
	req, err := d.presign.PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", storageError("presign", d.cfg.Name, p, err)
	}
	return req.URL, nil
}

// dirPrefix returns key with a trailing slash, or "" for the bucket root.
func dirPrefix(key string) string {
	key = strings.Trim(key, "/")
	if key == "" || key == "." {
		return ""
	}
	return key + "/"
}

// stripRoot turns object keys into disk paths in natural order.
func stripRoot(root string, keys []string) []string {
	prefix := dirPrefix(root)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	sortNatural(out)
	return out
}
