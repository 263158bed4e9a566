// Command regenerate is the maintenance CLI for stored media conversions.
//
// It reads the same environment as the server (DATABASE_DIR,
// CONVERSIONS_FILE, the disk variables) and works on the same database and
// disks. Conversions run in the foreground, queued ones included.
//
// Usage:
//
//	regenerate regenerate [--missing] [--only a,b] [--responsive] <id...>
//	regenerate list <id>
//	regenerate clean [--dry-run] <id>
//	regenerate vacuum
//
// clean deletes conversion files no declared conversion produces any more,
// and responsive renditions the record no longer lists. Output is colored
// when stdout is a terminal.
package main
