/*
Package responsive generates and reads responsive image ladders.

A ladder is a set of renditions of one base image, the original file or a
conversion output, at decreasing widths. Each rendition's conversion name,
width and height are encoded into its file name:

	{base}___{conversion}_{width}_{height}.{ext}

The file name is the only record of those values; Encode and Decode must
stay symmetric. File names are stored in order on the media record under
the conversion name, or under media.OriginalResponsiveKey for the original.
An optional tiny blurred placeholder is stored next to them as a base64 SVG
data URI.
*/
package responsive
