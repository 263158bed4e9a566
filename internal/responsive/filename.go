package responsive

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Delimiter separates the base name from the encoded rendition properties.
// Changing it orphans every stored rendition.
const Delimiter = "___"

// ErrInvalidFileName is returned by Decode for names that do not carry
// encoded rendition properties.
var ErrInvalidFileName = errors.New("invalid responsive image file name")

// Properties are the values encoded into a rendition file name.
type Properties struct {
	ConversionName string
	Width          int
	Height         int
}

// Encode returns {base}___{conversion}_{width}_{height}.{ext}.
func Encode(base, conversionName string, width, height int, ext string) string {
	return fmt.Sprintf("%s%s%s_%d_%d.%s", base, Delimiter, conversionName, width, height, ext)
}

// Decode parses the properties out of a name produced by Encode. The last
// delimiter is used, so base names may contain it.
func Decode(fileName string) (Properties, error) {
	i := strings.LastIndex(fileName, Delimiter)
	if i < 0 {
		return Properties{}, fmt.Errorf("%w: %q has no %s", ErrInvalidFileName, fileName, Delimiter)
	}
	encoded := fileName[i+len(Delimiter):]
	if dot := strings.LastIndexByte(encoded, '.'); dot >= 0 {
		encoded = encoded[:dot]
	}

	parts := strings.Split(encoded, "_")
	if len(parts) < 3 {
		return Properties{}, fmt.Errorf("%w: %q", ErrInvalidFileName, fileName)
	}
	n := len(parts)
	width, werr := strconv.Atoi(parts[n-2])
	height, herr := strconv.Atoi(parts[n-1])
	name := strings.Join(parts[:n-2], "_")
	if werr != nil || herr != nil || width <= 0 || height <= 0 || name == "" {
		return Properties{}, fmt.Errorf("%w: %q", ErrInvalidFileName, fileName)
	}
	return Properties{ConversionName: name, Width: width, Height: height}, nil
}
