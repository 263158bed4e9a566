/*
Package filesystem stores media files on named disks.

# Disks

A Disk stores files under slash-separated paths. Three drivers exist:

  - Local: a directory on the host. Writes go to a temporary file that is
    renamed into place, so readers never observe partial files. Stat, open
    and rename retry on NFS stale file handle errors (ESTALE) with
    exponential backoff.
  - S3: an S3 or S3-compatible bucket (aws-sdk-go-v2). Uploads use the
    multipart manager and temporary URLs are presigned.
  - GCS: a Google Cloud Storage bucket. Temporary URLs are V4 signed.

Disks are opened from DiskConfig values by OpenDisks and looked up by name
through a Manager.

# Filesystem

Filesystem places the files of a media item according to a
pathgen.Generator. Originals live on the media disk; conversions and
responsive renditions live on the conversions disk:

	fs := filesystem.New(manager, pathgen.Default{})
	local, err := fs.CopyFromMediaLibrary(ctx, m, filepath.Join(tmp, m.FileName))
	...
	err = fs.CopyToMediaLibrary(ctx, out, m, filesystem.KindConversion, "photo-thumb.jpg")

Every failure wraps ErrStorage. A missing file is ErrFileNotFound.

# Metrics

Operation counts, durations and retry behaviour are reported to the
Observer installed with SetObserver. The metrics package provides the
Prometheus implementation.
*/
package filesystem
