// Package conversion resolves the named conversions of a media item.
//
// A model type declares its conversions through a Registrar, either in code
// with RegistrarFunc or in a YAML file loaded with LoadFile. The Resolver
// combines those declarations with the per-item manipulations stored on the
// media record and returns a Collection that can be filtered by media
// collection, by name and by queued state:
//
//	registry := conversion.NewRegistry()
//	registry.Register("post", conversion.RegistrarFunc(func(*media.Media) ([]*conversion.Conversion, error) {
//		return []*conversion.Conversion{
//			conversion.New("thumb").Fit("crop", 368, 232).NonQueued(),
//			conversion.New("large").Width(1600).WithResponsiveImages(),
//		}, nil
//	}))
//
//	convs, err := conversion.NewResolver(registry).ForMedia(m)
//	immediate := convs.ForCollection(m.CollectionName).NonQueued()
package conversion
