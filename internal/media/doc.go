// Package media defines the media record the conversion pipeline works on
// and the Store contract used to persist it.
//
// A Media identifies one original file on a disk. The pipeline only writes
// three of its fields: GeneratedConversions, ResponsiveImages and
// CustomProperties. Those writes always go through Store.Update so that
// concurrent conversions of the same record never lose each other's
// changes.
package media
