// Package imageproc applies manipulation sets to raster files.
//
// Two Processor backends are available. Imaging is pure Go and built on
// disintegration/imaging; it handles every operation but cannot write
// WebP. Vips uses libvips through govips and must be started with InitVips
// before use; New does that for the "vips" driver.
//
// Groups are applied left to right and the operations inside a group in
// manipulations.ApplyOrder. Width, height, fit and crop of one group form a
// single resize:
//
//	contain  scale to fit inside width x height (default)
//	max      like contain but never upscale
//	fill     like contain, then pad to width x height
//	stretch  ignore the aspect ratio
//	crop     cover width x height, then cut at the crop position
//
// The output format comes from the last format operation, falling back to
// the destination extension.
package imageproc
