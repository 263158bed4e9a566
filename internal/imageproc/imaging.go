package imageproc

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"media-conversions/internal/logging"
	"media-conversions/internal/manipulations"
)

// Imaging is the pure-Go processor backed by disintegration/imaging.
// It cannot encode WebP.
type Imaging struct{}

func (Imaging) Driver() string { return DriverImaging }

// Apply implements Processor.
func (p Imaging) Apply(ctx context.Context, src string, set *manipulations.Set, dst string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	img, err := LoadImageConstrained(src, MaxImageDimension, MaxImagePixels)
	if err != nil {
		return fmt.Errorf("load %s: %w", filepath.Base(src), err)
	}

	for i, group := range set.Groups() {
		if err := checkContext(ctx); err != nil {
			return err
		}
		img, err = applyGroup(img, group)
		if err != nil {
			return fmt.Errorf("manipulation group %d: %w", i, err)
		}
	}

	return encode(img, dst, outputFormat(set, dst), outputQuality(set))
}

// applyGroup applies one group's operations in manipulations.ApplyOrder.
func applyGroup(img image.Image, g manipulations.Group) (image.Image, error) {
	geo, err := parseGeometry(g)
	if err != nil {
		return nil, err
	}
	resized := false

	for _, op := range g.Operations() {
		v := g[op]
		switch op {
		case manipulations.Orientation:
			if img, err = orient(img, v); err != nil {
				return nil, err
			}
		case manipulations.Flip:
			if img, err = flip(img, v); err != nil {
				return nil, err
			}
		case manipulations.ManualCrop:
			mc, err := parseManualCrop(v)
			if err != nil {
				return nil, err
			}
			img = imaging.Crop(img, image.Rect(mc.x, mc.y, mc.x+mc.width, mc.y+mc.height))
		case manipulations.Crop, manipulations.Width, manipulations.Height, manipulations.Fit:
			if resized || geo.isZero() {
				continue
			}
			img = resize(img, geo, backgroundOf(g))
			resized = true
		case manipulations.Background:
			r, gr, b, err := parseHexColor(v)
			if err != nil {
				return nil, err
			}
			bounds := img.Bounds()
			bg := imaging.New(bounds.Dx(), bounds.Dy(), color.NRGBA{R: r, G: gr, B: b, A: 255})
			img = imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
		case manipulations.Brightness:
			f, err := parseRange(op, v, -100, 100)
			if err != nil {
				return nil, err
			}
			img = imaging.AdjustBrightness(img, f)
		case manipulations.Gamma:
			f, err := parseRange(op, v, 0.1, 9.99)
			if err != nil {
				return nil, err
			}
			img = imaging.AdjustGamma(img, f)
		case manipulations.Contrast:
			f, err := parseRange(op, v, -100, 100)
			if err != nil {
				return nil, err
			}
			img = imaging.AdjustContrast(img, f)
		case manipulations.Greyscale:
			img = imaging.Grayscale(img)
		case manipulations.Sepia:
			img = sepia(img)
		case manipulations.Blur:
			f, err := parseRange(op, v, 0, 100)
			if err != nil {
				return nil, err
			}
			if f > 0 {
				img = imaging.Blur(img, blurSigma(f))
			}
		case manipulations.Pixelate:
			f, err := parseRange(op, v, 0, 1000)
			if err != nil {
				return nil, err
			}
			img = pixelate(img, int(f))
		case manipulations.Sharpen:
			f, err := parseRange(op, v, 0, 100)
			if err != nil {
				return nil, err
			}
			if f > 0 {
				img = imaging.Sharpen(img, sharpenSigma(f))
			}
		case manipulations.Quality, manipulations.Format, manipulations.Optimize:
			// applied at encode time
		default:
			logging.Debug("Ignoring unknown manipulation %q", op)
		}
	}
	return img, nil
}

func backgroundOf(g manipulations.Group) color.Color {
	if v, ok := g[manipulations.Background]; ok {
		if r, gr, b, err := parseHexColor(v); err == nil {
			return color.NRGBA{R: r, G: gr, B: b, A: 255}
		}
	}
	return color.White
}

func resize(img image.Image, geo geometry, bg color.Color) image.Image {
	b := img.Bounds()
	tw, th := geo.targetSize(b.Dx(), b.Dy())

	switch geo.fit {
	case "crop":
		scaled := imaging.Resize(img, tw, th, imaging.Lanczos)
		w, h := cropWindow(geo, tw, th)
		x, y := cropOffset(tw, th, w, h, geo.anchor)
		return imaging.Crop(scaled, image.Rect(x, y, x+w, y+h))
	case "fill":
		scaled := imaging.Resize(img, tw, th, imaging.Lanczos)
		w, h := cropWindow(geo, tw, th)
		canvas := imaging.New(w, h, bg)
		return imaging.PasteCenter(canvas, scaled)
	default:
		if tw == b.Dx() && th == b.Dy() {
			return img
		}
		return imaging.Resize(img, tw, th, imaging.Lanczos)
	}
}

// cropWindow returns the final canvas size for crop and fill fits; a
// missing dimension follows the scaled image.
func cropWindow(geo geometry, tw, th int) (int, int) {
	w, h := geo.width, geo.height
	if w == 0 {
		w = tw
	}
	if h == 0 {
		h = th
	}
	return w, h
}

func orient(img image.Image, v string) (image.Image, error) {
	switch v {
	case "", "auto", "0":
		return img, nil
	case "90":
		return imaging.Rotate90(img), nil
	case "180":
		return imaging.Rotate180(img), nil
	case "270":
		return imaging.Rotate270(img), nil
	default:
		return nil, fmt.Errorf("%w: orientation %q", ErrInvalidManipulation, v)
	}
}

func flip(img image.Image, v string) (image.Image, error) {
	switch v {
	case "h":
		return imaging.FlipH(img), nil
	case "v":
		return imaging.FlipV(img), nil
	case "both":
		return imaging.FlipV(imaging.FlipH(img)), nil
	default:
		return nil, fmt.Errorf("%w: flip %q", ErrInvalidManipulation, v)
	}
}

func sepia(img image.Image) image.Image {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r, g, b := float64(c.R), float64(c.G), float64(c.B)
		return color.NRGBA{
			R: clamp8(0.393*r + 0.769*g + 0.189*b),
			G: clamp8(0.349*r + 0.686*g + 0.168*b),
			B: clamp8(0.272*r + 0.534*g + 0.131*b),
			A: c.A,
		}
	})
}

func clamp8(v float64) uint8 {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return uint8(v)
}

func pixelate(img image.Image, size int) image.Image {
	if size <= 1 {
		return img
	}
	b := img.Bounds()
	small := imaging.Resize(img, max(b.Dx()/size, 1), max(b.Dy()/size, 1), imaging.Box)
	return imaging.Resize(small, b.Dx(), b.Dy(), imaging.NearestNeighbor)
}

func encode(img image.Image, dst, format string, quality int) error {
	var f imaging.Format
	switch format {
	case "jpg":
		f = imaging.JPEG
	case "png":
		f = imaging.PNG
	case "gif":
		f = imaging.GIF
	case "tiff":
		f = imaging.TIFF
	case "bmp":
		f = imaging.BMP
	default:
		return fmt.Errorf("%w: %q with the %s driver", ErrUnsupportedFormat, format, DriverImaging)
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(dst), err)
	}
	if err := imaging.Encode(out, img, f, imaging.JPEGQuality(quality)); err != nil {
		_ = out.Close()
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return out.Close()
}
