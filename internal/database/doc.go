// Package database provides the SQLite-backed media repository.
//
// Each media record is one row of the media table. The manipulations,
// custom properties, generated-conversion flags and responsive-image sets
// are stored as JSON columns and decoded on read.
//
// Repository implements media.Store. Update reads, mutates and writes a
// record inside a single immediate transaction while holding a per-record
// lock, so concurrent conversions of the same media never lose each other's
// flags. Delete is a soft delete; ForceDelete removes the row.
//
// The database runs in WAL mode. Queries are built with squirrel and
// recorded in the DB query metrics.
package database
