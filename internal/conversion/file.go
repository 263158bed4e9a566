package conversion

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"media-conversions/internal/manipulations"
	"media-conversions/internal/media"
)

// FileConfig is the on-disk form of conversion declarations:
//
//	queued_by_default: true
//	models:
//	  post:
//	    - name: thumb
//	      queued: false
//	      collections: [images]
//	      manipulations:
//	        - {width: "368", height: "232", fit: crop}
//	        - {sharpen: "10"}
type FileConfig struct {
	QueuedByDefault *bool                        `yaml:"queued_by_default"`
	Models          map[string][]ConversionConfig `yaml:"models"`
}

// ConversionConfig declares one conversion.
type ConversionConfig struct {
	Name                      string               `yaml:"name"`
	Queued                    *bool                `yaml:"queued"`
	Collections               []string             `yaml:"collections"`
	ExtractVideoFrameAtSecond float64              `yaml:"extract_video_frame_at_second"`
	KeepOriginalImageFormat   bool                 `yaml:"keep_original_image_format"`
	Responsive                bool                 `yaml:"responsive"`
	NonOptimized              bool                 `yaml:"non_optimized"`
	Manipulations             []manipulations.Group `yaml:"manipulations"`
}

// LoadFile reads declarations from path. See Load.
func LoadFile(path string, queuedByDefault bool) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open conversions file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Load(f, queuedByDefault)
}

// Load parses YAML declarations into a Registry. queuedByDefault applies
// to conversions that set neither queued nor a file-level default.
func Load(r io.Reader, queuedByDefault bool) (*Registry, error) {
	var cfg FileConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: parse conversions file: %v", ErrConfiguration, err)
	}
	if cfg.QueuedByDefault != nil {
		queuedByDefault = *cfg.QueuedByDefault
	}

	registry := NewRegistry()
	for modelType, decls := range cfg.Models {
		if err := validateDeclarations(modelType, decls); err != nil {
			return nil, err
		}
		registry.Register(modelType, declaredRegistrar{decls: decls, queuedByDefault: queuedByDefault})
	}
	return registry, nil
}

func validateDeclarations(modelType string, decls []ConversionConfig) error {
	seen := make(map[string]bool, len(decls))
	for i, d := range decls {
		if d.Name == "" {
			return fmt.Errorf("%w: %s conversion %d has no name", ErrConfiguration, modelType, i)
		}
		if seen[d.Name] {
			return fmt.Errorf("%w %q for %s", ErrDuplicateConversion, d.Name, modelType)
		}
		seen[d.Name] = true
		if err := manipulations.New(d.Manipulations...).Validate(); err != nil {
			return fmt.Errorf("%w: %s conversion %q: %v", ErrConfiguration, modelType, d.Name, err)
		}
	}
	return nil
}

// declaredRegistrar builds fresh conversions from parsed declarations on
// every call.
type declaredRegistrar struct {
	decls           []ConversionConfig
	queuedByDefault bool
}

func (d declaredRegistrar) RegisterConversions(*media.Media) ([]*Conversion, error) {
	convs := make([]*Conversion, 0, len(d.decls))
	for _, decl := range d.decls {
		conv := New(decl.Name).
			SetManipulations(manipulations.New(decl.Manipulations...)).
			PerformOnCollections(decl.Collections...).
			ExtractVideoFrameAtSecond(decl.ExtractVideoFrameAtSecond)

		queued := d.queuedByDefault
		if decl.Queued != nil {
			queued = *decl.Queued
		}
		if queued {
			conv.Queued()
		} else {
			conv.NonQueued()
		}
		if decl.KeepOriginalImageFormat {
			conv.KeepOriginalImageFormat()
		}
		if decl.Responsive {
			conv.WithResponsiveImages()
		}
		if decl.NonOptimized {
			conv.NonOptimized()
		}
		convs = append(convs, conv)
	}
	return convs, nil
}
