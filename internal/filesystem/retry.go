package filesystem

import (
	"errors"
	"os"
	"syscall"
	"time"

	"media-conversions/internal/logging"
)

// RetryConfig configures retry behavior for local filesystem operations
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig returns sensible defaults for NFS retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

// isNFSStaleError checks if an error is an NFS stale file handle error
func isNFSStaleError(err error) bool {
	if err == nil {
		return false
	}

	// ESTALE is errno 116 on Linux
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESTALE
	}

	return false
}

// withRetry runs fn, retrying with exponential backoff while it fails with
// ESTALE. Any other error is returned immediately.
func withRetry[T any](op, volume, path string, config RetryConfig, fn func() (T, error)) (T, error) {
	start := time.Now()
	o := observe()
	backoff := config.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		v, err := fn()
		if err == nil {
			if attempt > 0 {
				logging.Info("NFS %s succeeded on retry %d for %s", op, attempt, path)
				o.ObserveRetrySuccess(op, volume)
			}
			o.ObserveRetryDuration(op, volume, time.Since(start).Seconds())
			return v, nil
		}
		lastErr = err

		if !isNFSStaleError(err) {
			o.ObserveRetryDuration(op, volume, time.Since(start).Seconds())
			var zero T
			return zero, err
		}
		o.ObserveStaleError(op, volume)

		// Don't sleep after the last attempt
		if attempt < config.MaxRetries {
			o.ObserveRetryAttempt(op, volume)
			logging.Debug("NFS %s stale file handle for %s, retrying in %v (attempt %d/%d)",
				op, path, backoff, attempt+1, config.MaxRetries)
			time.Sleep(backoff)

			backoff *= 2
			if backoff > config.MaxBackoff {
				backoff = config.MaxBackoff
			}
		}
	}

	logging.Warn("NFS %s failed after %d retries for %s: %v", op, config.MaxRetries, path, lastErr)
	o.ObserveRetryFailure(op, volume)
	o.ObserveRetryDuration(op, volume, time.Since(start).Seconds())
	var zero T
	return zero, lastErr
}

// StatWithRetry performs os.Stat with retry logic for NFS stale file handle errors
func StatWithRetry(path, volume string, config RetryConfig) (os.FileInfo, error) {
	return withRetry("stat", volume, path, config, func() (os.FileInfo, error) {
		return os.Stat(path)
	})
}

// OpenWithRetry performs os.Open with retry logic for NFS stale file handle errors
func OpenWithRetry(path, volume string, config RetryConfig) (*os.File, error) {
	return withRetry("open", volume, path, config, func() (*os.File, error) {
		return os.Open(path)
	})
}

// RenameWithRetry performs os.Rename with retry logic for NFS stale file handle errors
func RenameWithRetry(from, to, volume string, config RetryConfig) error {
	_, err := withRetry("write", volume, to, config, func() (struct{}, error) {
		return struct{}{}, os.Rename(from, to)
	})
	return err
}
