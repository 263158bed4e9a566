// Package generator selects how a media item's original is turned into a
// raster image before manipulations are applied.
//
// Each Generator declares the extensions and MIME types it accepts and
// whether its requirements are installed. Registry.For walks the
// generators in order and returns the first that can convert the item:
//
//	reg := generator.NewRegistry(generator.Image{}, generator.Webp{}, generator.NewVideo("", ""))
//	g, err := reg.For(m)
//	if errors.Is(err, generator.ErrUnsupportedSource) {
//		// nothing to convert
//	}
//	raster, err := g.Convert(ctx, localCopy, conv)
package generator
