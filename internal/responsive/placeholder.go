package responsive

import (
	"encoding/base64"
	"fmt"
)

const placeholderTemplate = `<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" x="0" y="0" viewBox="0 0 %d %d">
	<image width="%d" height="%d" xlink:href="data:image/jpeg;base64,%s">
	</image>
</svg>`

// PlaceholderSVG wraps a tiny JPEG in an SVG sized like the original and
// returns it as a base64 data URI.
func PlaceholderSVG(tinyJPEG []byte, width, height int) string {
	svg := fmt.Sprintf(placeholderTemplate, width, height, width, height,
		base64.StdEncoding.EncodeToString(tinyJPEG))
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
