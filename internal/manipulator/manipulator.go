package manipulator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"media-conversions/internal/conversion"
	"media-conversions/internal/filesystem"
	"media-conversions/internal/generator"
	"media-conversions/internal/imageproc"
	"media-conversions/internal/logging"
	"media-conversions/internal/media"
	"media-conversions/internal/metrics"
	"media-conversions/internal/responsive"
)

// Job asks for conversions of one media item to run later.
type Job struct {
	MediaID     int64    `json:"media_id"`
	Conversions []string `json:"conversions"`
	OnlyMissing bool     `json:"only_missing,omitempty"`
}

// Dispatcher accepts queued conversions.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// ConversionResolver resolves the conversions of a media item.
type ConversionResolver interface {
	ForMedia(m *media.Media) (*conversion.Collection, error)
}

// Options select which conversions CreateDerivedFiles considers.
type Options struct {
	// Only limits the run to these conversion names. Empty means all.
	Only []string
	// OnlyMissing skips conversions already generated and present on disk.
	OnlyMissing bool
	// WithResponsiveImages regenerates the ladder of the original when the
	// record already has one.
	WithResponsiveImages bool
}

// Config holds the settings of a FileManipulator.
type Config struct {
	// TempDir is the parent of per-run scratch directories.
	TempDir string
	// Timeout bounds each conversion. Zero disables it.
	Timeout time.Duration
}

// Deps are the collaborators of a FileManipulator.
type Deps struct {
	Store      media.Store
	Resolver   ConversionResolver
	Generators *generator.Registry
	Processor  imageproc.Processor
	Filesystem *filesystem.Filesystem
	Responsive *responsive.Generator
	// Dispatcher receives queued conversions. When nil they run inline.
	Dispatcher Dispatcher
}

// FileManipulator generates the derived files of media items.
type FileManipulator struct {
	deps Deps
	cfg  Config
}

// New returns a FileManipulator.
func New(deps Deps, cfg Config) *FileManipulator {
	return &FileManipulator{deps: deps, cfg: cfg}
}

// SetDispatcher replaces the dispatcher. The queue is created after the
// manipulator it calls back into, so it is wired in afterwards.
func (f *FileManipulator) SetDispatcher(d Dispatcher) {
	f.deps.Dispatcher = d
}

// Conversions returns the resolved conversions of m.
func (f *FileManipulator) Conversions(m *media.Media) (*conversion.Collection, error) {
	return f.deps.Resolver.ForMedia(m)
}

// CreateDerivedFiles runs the conversions of m that apply to its
// collection. Non-queued conversions run now; queued ones go to the
// dispatcher. m reflects the stored state afterwards.
func (f *FileManipulator) CreateDerivedFiles(ctx context.Context, m *media.Media, opts Options) (Results, error) {
	convs, err := f.selectConversions(ctx, m, opts.Only, opts.OnlyMissing)
	if err != nil {
		return nil, err
	}
	if convs.IsEmpty() {
		logging.Debug("No conversions to run for media %d", m.ID)
		return nil, f.maybeRegenerateResponsive(ctx, m, opts)
	}
	gen, err := f.deps.Generators.For(m)
	if err != nil {
		return nil, err
	}

	results, err := f.run(ctx, m, gen, convs.NonQueued().All())
	if err != nil {
		return results, err
	}

	queued := convs.Queued()
	if !queued.IsEmpty() {
		results = append(results, f.dispatch(ctx, m, gen, queued, opts.OnlyMissing)...)
	}

	if err := f.maybeRegenerateResponsive(ctx, m, opts); err != nil {
		return results, err
	}
	return results, nil
}

func (f *FileManipulator) dispatch(ctx context.Context, m *media.Media, gen generator.Generator, queued *conversion.Collection, onlyMissing bool) Results {
	if f.deps.Dispatcher == nil {
		logging.Debug("No dispatcher configured, running %d queued conversions of media %d inline", queued.Len(), m.ID)
		results, err := f.run(ctx, m, gen, queued.All())
		if err != nil {
			logging.Warn("Inline conversions for media %d failed: %v", m.ID, err)
		}
		return results
	}

	job := Job{MediaID: m.ID, Conversions: queued.Names(), OnlyMissing: onlyMissing}
	err := f.deps.Dispatcher.Dispatch(ctx, job)

	results := make(Results, 0, queued.Len())
	for _, name := range job.Conversions {
		r := Result{Conversion: name, Status: StatusQueued}
		if err != nil {
			r.Status, r.Err = StatusFailed, fmt.Errorf("dispatch: %w", err)
			metrics.ConversionFailures.WithLabelValues(string(Classify(r.Err))).Inc()
		}
		results = append(results, r)
	}
	if err == nil {
		logging.Debug("Queued conversions %v of media %d", job.Conversions, m.ID)
	} else {
		logging.Error("Failed to queue conversions of media %d: %v", m.ID, err)
	}
	return results
}

func (f *FileManipulator) maybeRegenerateResponsive(ctx context.Context, m *media.Media, opts Options) error {
	if !opts.WithResponsiveImages || f.deps.Responsive == nil {
		return nil
	}
	if _, ok := m.ResponsiveSetFor(media.OriginalResponsiveKey); !ok {
		return nil
	}
	return f.deps.Responsive.GenerateForOriginal(ctx, m)
}

// selectConversions resolves the conversions of m and applies the
// collection, name and missing filters. Order is preserved.
func (f *FileManipulator) selectConversions(ctx context.Context, m *media.Media, only []string, onlyMissing bool) (*conversion.Collection, error) {
	all, err := f.deps.Resolver.ForMedia(m)
	if err != nil {
		return nil, err
	}
	for _, name := range only {
		if !all.Has(name) {
			return nil, fmt.Errorf("%w %q", conversion.ErrUnknownConversion, name)
		}
	}

	convs := all.ForCollection(m.CollectionName).Only(only...)
	if onlyMissing {
		convs = convs.Filter(func(c *conversion.Conversion) bool {
			return !f.isPresent(ctx, m, c)
		})
	}
	return convs, nil
}

// isPresent reports whether c is marked generated and its file exists.
func (f *FileManipulator) isPresent(ctx context.Context, m *media.Media, c *conversion.Conversion) bool {
	if !m.HasGeneratedConversion(c.Name()) {
		return false
	}
	ok, err := f.deps.Filesystem.Exists(ctx, m, filesystem.KindConversion, c.ConversionFileName(m.FileName))
	if err != nil {
		logging.Warn("Cannot check conversion %s of media %d: %v", c.Name(), m.ID, err)
		return false
	}
	return ok
}

// PerformConversions runs the named conversions of m now, ignoring their
// queued flag. With no names every conversion for m's collection runs.
func (f *FileManipulator) PerformConversions(ctx context.Context, m *media.Media, names ...string) (Results, error) {
	convs, err := f.selectConversions(ctx, m, names, false)
	if err != nil {
		return nil, err
	}
	return f.performConversions(ctx, m, convs.All())
}

// RegenerateByID loads the media record and runs the named conversions.
func (f *FileManipulator) RegenerateByID(ctx context.Context, id int64, names []string, onlyMissing bool) (Results, error) {
	m, err := f.deps.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	convs, err := f.selectConversions(ctx, m, names, onlyMissing)
	if err != nil {
		return nil, err
	}
	return f.performConversions(ctx, m, convs.All())
}

func (f *FileManipulator) performConversions(ctx context.Context, m *media.Media, convs []*conversion.Conversion) (Results, error) {
	if len(convs) == 0 {
		return nil, nil
	}
	gen, err := f.deps.Generators.For(m)
	if err != nil {
		return nil, err
	}
	return f.run(ctx, m, gen, convs)
}

// run copies the original once and runs each conversion against it. A
// failure of one conversion does not stop the others; an unreadable
// original fails them all.
func (f *FileManipulator) run(ctx context.Context, m *media.Media, gen generator.Generator, convs []*conversion.Conversion) (Results, error) {
	if len(convs) == 0 {
		return nil, nil
	}

	work, err := os.MkdirTemp(f.cfg.TempDir, "conversions-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(work); err != nil {
			logging.Warn("Failed to remove work dir %s: %v", work, err)
		}
	}()

	original := filepath.Join(work, uuid.NewString()+"."+m.Extension())
	if _, err := f.deps.Filesystem.CopyFromMediaLibrary(ctx, m, original); err != nil {
		srcErr := fmt.Errorf("%w: media %d: %w", ErrSourceUnavailable, m.ID, err)
		results := make(Results, 0, len(convs))
		for _, c := range convs {
			results = append(results, Result{Conversion: c.Name(), Status: StatusFailed, Err: srcErr})
			f.markGenerated(ctx, m, c.Name(), false)
		}
		metrics.ConversionFailures.WithLabelValues(string(FailureSourceUnavailable)).Add(float64(len(convs)))
		logging.Error("Original of media %d unavailable: %v", m.ID, err)
		return results, srcErr
	}

	results := make(Results, 0, len(convs))
	for _, c := range convs {
		results = append(results, f.performOne(ctx, m, gen, c, original, work))
	}
	return results, nil
}

func (f *FileManipulator) performOne(ctx context.Context, m *media.Media, gen generator.Generator, c *conversion.Conversion, original, work string) Result {
	start := time.Now()
	fileName := c.ConversionFileName(m.FileName)
	result := Result{Conversion: c.Name(), FileName: fileName}

	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	err := f.convert(ctx, m, gen, c, original, work, fileName)
	result.Duration = time.Since(start)
	metrics.ConversionDuration.WithLabelValues(gen.Type()).Observe(result.Duration.Seconds())

	if err != nil {
		result.Status, result.Err = StatusFailed, err
		kind := Classify(err)
		metrics.ConversionsTotal.WithLabelValues(gen.Type(), "error").Inc()
		metrics.ConversionFailures.WithLabelValues(string(kind)).Inc()
		logging.Error("Conversion %s of media %d failed (%s): %v", c.Name(), m.ID, kind, err)
		f.markGenerated(ctx, m, c.Name(), false)
		return result
	}

	result.Status = StatusGenerated
	metrics.ConversionsTotal.WithLabelValues(gen.Type(), "success").Inc()
	logging.Info("Generated conversion %s of media %d in %v", c.Name(), m.ID, result.Duration.Round(time.Millisecond))
	return result
}

// convert produces, stores and records one conversion. The generated flag
// is only set once the file is on the disk.
func (f *FileManipulator) convert(ctx context.Context, m *media.Media, gen generator.Generator, c *conversion.Conversion, original, work, fileName string) error {
	dir := filepath.Join(work, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	raster, err := gen.Convert(ctx, original, c)
	if err != nil {
		return conversionError(gen.Type(), err)
	}

	ext := c.ResultExtension(m.Extension())
	manipulated := filepath.Join(dir, uuid.NewString()+"."+ext)
	if err := f.deps.Processor.Apply(ctx, raster, c.EffectiveManipulations(m.Extension()), manipulated); err != nil {
		return conversionError(f.deps.Processor.Driver(), err)
	}

	final := filepath.Join(dir, fileName)
	if err := os.Rename(manipulated, final); err != nil {
		return fmt.Errorf("%w: %v", ErrConversionFailed, err)
	}

	if c.GeneratesResponsiveImages() && f.deps.Responsive != nil {
		if err := f.deps.Responsive.GenerateForConversion(ctx, m, c.Name(), final); err != nil {
			return fmt.Errorf("responsive images: %w", err)
		}
	}

	if err := f.deps.Filesystem.CopyToMediaLibrary(ctx, final, m, filesystem.KindConversion, fileName); err != nil {
		return err
	}
	return f.setGenerated(ctx, m, c.Name(), true)
}

func conversionError(stage string, err error) error {
	if errors.Is(err, conversion.ErrConfiguration) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrConversionFailed, stage, err)
}

func (f *FileManipulator) setGenerated(ctx context.Context, m *media.Media, name string, generated bool) error {
	updated, err := f.deps.Store.Update(ctx, m.ID, func(rec *media.Media) error {
		rec.MarkAsConversionGenerated(name, generated)
		return nil
	})
	if err != nil {
		return fmt.Errorf("mark %s generated=%v: %w", name, generated, err)
	}
	m.CopyDerivedStateFrom(updated)
	return nil
}

// markGenerated is setGenerated for failure paths, where the original
// error is what gets reported.
func (f *FileManipulator) markGenerated(ctx context.Context, m *media.Media, name string, generated bool) {
	if err := f.setGenerated(context.WithoutCancel(ctx), m, name, generated); err != nil {
		logging.Warn("Media %d: %v", m.ID, err)
	}
}

// RegisterResponsiveImages regenerates the responsive ladder of the
// original ("") or of a generated conversion.
func (f *FileManipulator) RegisterResponsiveImages(ctx context.Context, m *media.Media, baseConversionName string) error {
	if f.deps.Responsive == nil {
		return fmt.Errorf("%w: responsive images are not configured", conversion.ErrConfiguration)
	}
	if baseConversionName == "" || baseConversionName == media.OriginalResponsiveKey {
		return f.deps.Responsive.GenerateForOriginal(ctx, m)
	}

	convs, err := f.deps.Resolver.ForMedia(m)
	if err != nil {
		return err
	}
	c, err := convs.GetByName(baseConversionName)
	if err != nil {
		return err
	}
	if !m.HasGeneratedConversion(c.Name()) {
		return fmt.Errorf("%w: conversion %s of media %d has not been generated", ErrSourceUnavailable, c.Name(), m.ID)
	}

	work, err := os.MkdirTemp(f.cfg.TempDir, "responsive-base-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(work) }()

	fileName := c.ConversionFileName(m.FileName)
	base, err := f.deps.Filesystem.Download(ctx, m, filesystem.KindConversion, fileName, filepath.Join(work, fileName))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	return f.deps.Responsive.GenerateForConversion(ctx, m, c.Name(), base)
}
