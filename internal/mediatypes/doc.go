// Package mediatypes holds the extension and MIME tables shared by the
// generators, the media record and the HTTP layer.
//
// It has no dependencies beyond the standard library so any package can
// import it without creating cycles.
//
//	ext := mediatypes.Extension("clip.MP4")       // "mp4"
//	mime := mediatypes.GetMimeType("." + ext)      // "video/mp4"
//	kind := mediatypes.GetFileType("." + ext)      // FileTypeVideo
package mediatypes
