// Package logging provides the leveled logger shared by every package of the
// conversion service.
//
// Levels, lowest first:
//   - DEBUG: generator selection, temp file paths, per-rendition detail
//   - INFO: conversions performed, queue activity, startup summary
//   - WARN: recoverable problems such as a failed cleanup
//   - ERROR: failed conversions and storage errors
//   - FATAL: startup errors that terminate the process
//
// The level comes from DEBUG=true or LOG_LEVEL and can be overridden with
// SetLevel.
package logging
