package manipulator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"media-conversions/internal/conversion"
	"media-conversions/internal/filesystem"
)

var (
	// ErrSourceUnavailable means the original file could not be read. Every
	// conversion of the media item fails with it.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrConversionFailed means a generator or the image processor failed
	// for one conversion.
	ErrConversionFailed = errors.New("conversion failed")
)

// FailureKind classifies an error for callers and metrics.
type FailureKind string

const (
	FailureNone              FailureKind = ""
	FailureConfiguration     FailureKind = "configuration"
	FailureSourceUnavailable FailureKind = "source_unavailable"
	FailureConversion        FailureKind = "conversion"
	FailureStorage           FailureKind = "storage"
	FailureUnknown           FailureKind = "unknown"
)

// Retryable reports whether running the operation again may succeed.
// Configuration errors never do.
func (k FailureKind) Retryable() bool {
	return k != FailureConfiguration && k != FailureNone
}

// Classify maps err onto the failure taxonomy.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, conversion.ErrConfiguration):
		return FailureConfiguration
	case errors.Is(err, ErrSourceUnavailable):
		return FailureSourceUnavailable
	case errors.Is(err, ErrConversionFailed), errors.Is(err, context.DeadlineExceeded):
		return FailureConversion
	case errors.Is(err, filesystem.ErrStorage):
		return FailureStorage
	default:
		return FailureUnknown
	}
}

// Status is the outcome of one conversion.
type Status string

const (
	StatusGenerated Status = "generated"
	StatusQueued    Status = "queued"
	StatusFailed    Status = "failed"
)

// Result is the outcome of one conversion of one media item.
type Result struct {
	Conversion string        `json:"conversion"`
	Status     Status        `json:"status"`
	FileName   string        `json:"file_name,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
}

// Kind classifies the result's error.
func (r Result) Kind() FailureKind { return Classify(r.Err) }

// Results are per-conversion outcomes in resolution order.
type Results []Result

// Result returns the outcome for a conversion name.
func (rs Results) Result(name string) (Result, bool) {
	for _, r := range rs {
		if r.Conversion == name {
			return r, true
		}
	}
	return Result{}, false
}

func (rs Results) names(status Status) []string {
	var names []string
	for _, r := range rs {
		if r.Status == status {
			names = append(names, r.Conversion)
		}
	}
	return names
}

// Generated returns the names of conversions written in this run.
func (rs Results) Generated() []string { return rs.names(StatusGenerated) }

// Queued returns the names of conversions handed to the dispatcher.
func (rs Results) Queued() []string { return rs.names(StatusQueued) }

// Failed returns the names of failed conversions.
func (rs Results) Failed() []string { return rs.names(StatusFailed) }

// Err joins the errors of every failed conversion, or returns nil.
func (rs Results) Err() error {
	var errs []error
	for _, r := range rs {
		if r.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Conversion, r.Err))
		}
	}
	return errors.Join(errs...)
}
