package imageproc

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/disintegration/imaging"

	"media-conversions/internal/logging"
	"media-conversions/internal/manipulations"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
)

// vipsLogThreshold maps the application log level to the lowest vips
// level that is forwarded.
func vipsLogThreshold(level logging.LogLevel) vips.LogLevel {
	switch level {
	case logging.LevelDebug:
		return vips.LogLevelInfo
	case logging.LevelWarn:
		return vips.LogLevelError
	case logging.LevelError:
		return vips.LogLevelCritical
	default:
		return vips.LogLevelWarning
	}
}

// forwardVipsLog writes a libvips message through the logging package.
func forwardVipsLog(domain string, level vips.LogLevel, msg string) {
	switch level {
	case vips.LogLevelError, vips.LogLevelCritical:
		logging.Error("[%s] %s", domain, msg)
	case vips.LogLevelWarning:
		logging.Warn("[%s] %s", domain, msg)
	default:
		logging.Debug("[%s] %s", domain, msg)
	}
}

// InitVips starts libvips once per process. Its log output is routed
// through the logging package at the current level.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	threshold := vipsLogThreshold(logging.GetLevel())
	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		if level <= threshold {
			forwardVipsLog(domain, level, msg)
		}
	}, threshold)

	// Conversions already run on a worker pool, so vips itself stays
	// single-threaded with a small operation cache.
	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
	return nil
}

// ShutdownVips cleans up libvips resources. libvips cannot be restarted
// in the same process afterwards.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		logging.Info("libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsInitialized
}

// Vips is the libvips-backed processor. Operations libvips has no direct
// equivalent for (gamma and sepia) go through the imaging implementation.
type Vips struct{}

func (*Vips) Driver() string { return DriverVips }

// Apply implements Processor.
func (p *Vips) Apply(ctx context.Context, src string, set *manipulations.Set, dst string) error {
	if !IsVipsAvailable() {
		return fmt.Errorf("libvips not available")
	}
	if err := checkContext(ctx); err != nil {
		return err
	}

	ref, err := vips.LoadImageFromFile(src, vips.NewImportParams())
	if err != nil {
		return fmt.Errorf("vips failed to load %s: %w", filepath.Base(src), err)
	}
	defer func() { ref.Close() }()

	if err := ref.AutoRotate(); err != nil {
		return fmt.Errorf("vips auto-rotate: %w", err)
	}

	for i, group := range set.Groups() {
		if err := checkContext(ctx); err != nil {
			return err
		}
		next, err := vipsApplyGroup(ref, group)
		if err != nil {
			return fmt.Errorf("manipulation group %d: %w", i, err)
		}
		if next != ref {
			ref.Close()
			ref = next
		}
	}

	return vipsExport(ref, dst, outputFormat(set, dst), outputQuality(set), hasOptimize(set))
}

func hasOptimize(set *manipulations.Set) bool {
	_, ok := set.Get(manipulations.Optimize)
	return ok
}

// vipsApplyGroup applies one group in manipulations.ApplyOrder. It returns
// a new reference when an operation had to round-trip through imaging.
func vipsApplyGroup(ref *vips.ImageRef, g manipulations.Group) (*vips.ImageRef, error) {
	geo, err := parseGeometry(g)
	if err != nil {
		return nil, err
	}
	resized := false
	orig := ref

	for _, op := range g.Operations() {
		v := g[op]
		switch op {
		case manipulations.Orientation:
			err = vipsOrient(ref, v)
		case manipulations.Flip:
			err = vipsFlip(ref, v)
		case manipulations.ManualCrop:
			var mc manualCrop
			if mc, err = parseManualCrop(v); err == nil {
				err = ref.ExtractArea(mc.x, mc.y, mc.width, mc.height)
			}
		case manipulations.Crop, manipulations.Width, manipulations.Height, manipulations.Fit:
			if resized || geo.isZero() {
				continue
			}
			err = vipsResize(ref, geo)
			resized = true
		case manipulations.Background:
			var r, gr, b uint8
			if r, gr, b, err = parseHexColor(v); err == nil && ref.HasAlpha() {
				err = ref.Flatten(&vips.Color{R: r, G: gr, B: b})
			}
		case manipulations.Brightness:
			var f float64
			if f, err = parseRange(op, v, -100, 100); err == nil {
				err = vipsLinear(ref, 1, 2.55*f)
			}
		case manipulations.Contrast:
			var f float64
			if f, err = parseRange(op, v, -100, 100); err == nil {
				factor := (100 + f) / 100
				err = vipsLinear(ref, factor, 128*(1-factor))
			}
		case manipulations.Greyscale:
			err = ref.ToColorSpace(vips.InterpretationBW)
		case manipulations.Blur:
			var f float64
			if f, err = parseRange(op, v, 0, 100); err == nil && f > 0 {
				err = ref.GaussianBlur(blurSigma(f))
			}
		case manipulations.Pixelate:
			var f float64
			if f, err = parseRange(op, v, 0, 1000); err == nil && f > 1 {
				w, h := ref.Width(), ref.Height()
				if err = ref.Resize(1/f, vips.KernelLinear); err == nil {
					err = ref.ResizeWithVScale(float64(w)/float64(ref.Width()), float64(h)/float64(ref.Height()), vips.KernelNearest)
				}
			}
		case manipulations.Sharpen:
			var f float64
			if f, err = parseRange(op, v, 0, 100); err == nil && f > 0 {
				err = ref.Sharpen(sharpenSigma(f), 1, 2)
			}
		case manipulations.Gamma, manipulations.Sepia:
			var next *vips.ImageRef
			if next, err = viaImaging(ref, manipulations.Group{op: v}); err == nil {
				if ref != orig {
					ref.Close()
				}
				ref = next
			}
		}
		if err != nil {
			if ref != orig {
				ref.Close()
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return ref, nil
}

func vipsResize(ref *vips.ImageRef, geo geometry) error {
	tw, th := geo.targetSize(ref.Width(), ref.Height())
	if tw != ref.Width() || th != ref.Height() {
		hs := float64(tw) / float64(ref.Width())
		vs := float64(th) / float64(ref.Height())
		if err := ref.ResizeWithVScale(hs, vs, vips.KernelLanczos3); err != nil {
			return err
		}
	}

	switch geo.fit {
	case "crop":
		w, h := cropWindow(geo, ref.Width(), ref.Height())
		w, h = min(w, ref.Width()), min(h, ref.Height())
		x, y := cropOffset(ref.Width(), ref.Height(), w, h, geo.anchor)
		return ref.ExtractArea(x, y, w, h)
	case "fill":
		w, h := cropWindow(geo, ref.Width(), ref.Height())
		return ref.Embed((w-ref.Width())/2, (h-ref.Height())/2, w, h, vips.ExtendWhite)
	}
	return nil
}

// vipsLinear applies out = a*in + b to the colour bands, leaving alpha.
func vipsLinear(ref *vips.ImageRef, a, b float64) error {
	bands := ref.Bands()
	as := make([]float64, bands)
	bs := make([]float64, bands)
	for i := range as {
		as[i], bs[i] = a, b
	}
	if ref.HasAlpha() {
		as[bands-1], bs[bands-1] = 1, 0
	}
	return ref.Linear(as, bs)
}

func vipsOrient(ref *vips.ImageRef, v string) error {
	switch v {
	case "", "auto", "0":
		return nil
	case "90":
		return ref.Rotate(vips.Angle270)
	case "180":
		return ref.Rotate(vips.Angle180)
	case "270":
		return ref.Rotate(vips.Angle90)
	default:
		return fmt.Errorf("%w: orientation %q", ErrInvalidManipulation, v)
	}
}

func vipsFlip(ref *vips.ImageRef, v string) error {
	switch v {
	case "h":
		return ref.Flip(vips.DirectionHorizontal)
	case "v":
		return ref.Flip(vips.DirectionVertical)
	case "both":
		if err := ref.Flip(vips.DirectionHorizontal); err != nil {
			return err
		}
		return ref.Flip(vips.DirectionVertical)
	default:
		return fmt.Errorf("%w: flip %q", ErrInvalidManipulation, v)
	}
}

// viaImaging round-trips ref through PNG to apply g with the imaging
// implementation.
func viaImaging(ref *vips.ImageRef, g manipulations.Group) (*vips.ImageRef, error) {
	buf, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export: %w", err)
	}
	img, err := imaging.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode vips output: %w", err)
	}
	img, err = applyGroup(img, g)
	if err != nil {
		return nil, err
	}
	return vipsFromImage(img)
}

func vipsFromImage(img image.Image) (*vips.ImageRef, error) {
	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.PNG); err != nil {
		return nil, err
	}
	return vips.NewImageFromBuffer(out.Bytes())
}

func vipsExport(ref *vips.ImageRef, dst, format string, quality int, optimize bool) error {
	var (
		buf []byte
		err error
	)
	switch format {
	case "jpg":
		buf, _, err = ref.ExportJpeg(&vips.JpegExportParams{
			Quality:        quality,
			StripMetadata:  optimize,
			OptimizeCoding: optimize,
			Interlace:      optimize,
		})
	case "png":
		params := vips.NewPngExportParams()
		params.StripMetadata = optimize
		buf, _, err = ref.ExportPng(params)
	case "webp":
		params := vips.NewWebpExportParams()
		params.Quality = quality
		params.StripMetadata = optimize
		buf, _, err = ref.ExportWebp(params)
	case "gif", "tiff", "bmp":
		// Encoded by imaging from a lossless intermediate.
		var png []byte
		if png, _, err = ref.ExportPng(vips.NewPngExportParams()); err != nil {
			break
		}
		img, derr := imaging.Decode(bytes.NewReader(png))
		if derr != nil {
			return fmt.Errorf("decode vips output: %w", derr)
		}
		return encode(img, dst, format, quality)
	default:
		return fmt.Errorf("%w: %q with the %s driver", ErrUnsupportedFormat, format, DriverVips)
	}
	if err != nil {
		return fmt.Errorf("vips export %s: %w", format, err)
	}
	if err := os.WriteFile(dst, buf, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(dst), err)
	}
	return nil
}
