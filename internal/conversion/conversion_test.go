package conversion

import (
	"errors"
	"reflect"
	"testing"

	"media-conversions/internal/manipulations"
)

func TestNewHasDefaultGroup(t *testing.T) {
	c := New("thumb")

	if !c.ShouldBeQueued() {
		t.Error("new conversion should be queued by default")
	}
	groups := c.Manipulations().Groups()
	want := []manipulations.Group{{"optimize": "", "format": "jpg"}}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("Groups() = %v, want %v", groups, want)
	}
}

func TestShouldBePerformedOn(t *testing.T) {
	tests := []struct {
		name        string
		collections []string
		collection  string
		want        bool
	}{
		{"no filter", nil, "images", true},
		{"empty filter", []string{""}, "images", true},
		{"wildcard", []string{"*"}, "downloads", true},
		{"exact match", []string{"images"}, "images", true},
		{"mismatch", []string{"images"}, "downloads", false},
		{"one of many", []string{"avatars", "images"}, "images", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New("thumb").PerformOnCollections(tt.collections...)
			if got := c.ShouldBePerformedOn(tt.collection); got != tt.want {
				t.Errorf("ShouldBePerformedOn(%q) = %v, want %v", tt.collection, got, tt.want)
			}
		})
	}
}

func TestResultExtension(t *testing.T) {
	tests := []struct {
		name string
		conv *Conversion
		ext  string
		want string
	}{
		{"default format", New("thumb"), "png", "jpg"},
		{"explicit format", New("thumb").Format("WEBP"), "jpg", "webp"},
		{"keep png", New("thumb").KeepOriginalImageFormat(), "png", "png"},
		{"keep gif uppercase", New("thumb").KeepOriginalImageFormat(), ".GIF", "gif"},
		{"keep falls back for webp", New("thumb").KeepOriginalImageFormat(), "webp", "jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.conv.ResultExtension(tt.ext); got != tt.want {
				t.Errorf("ResultExtension(%q) = %q, want %q", tt.ext, got, tt.want)
			}
		})
	}
}

func TestResultExtensionWithoutFormat(t *testing.T) {
	c := New("raw")
	c.Manipulations().Remove(manipulations.Format)
	if got := c.ResultExtension("png"); got != "png" {
		t.Errorf("ResultExtension(png) = %q, want png", got)
	}
}

func TestConversionFileName(t *testing.T) {
	tests := []struct {
		conv     *Conversion
		original string
		want     string
	}{
		{New("thumb"), "holiday.png", "holiday-thumb.jpg"},
		{New("thumb").KeepOriginalImageFormat(), "holiday.png", "holiday-thumb.png"},
		{New("poster"), "clip.final.mp4", "clip.final-poster.jpg"},
	}

	for _, tt := range tests {
		if got := tt.conv.ConversionFileName(tt.original); got != tt.want {
			t.Errorf("ConversionFileName(%q) = %q, want %q", tt.original, got, tt.want)
		}
	}
}

func TestEffectiveManipulationsPinsFormat(t *testing.T) {
	c := New("thumb").KeepOriginalImageFormat().Width(100)

	set := c.EffectiveManipulations("png")
	if got, _ := set.Get(manipulations.Format); got != "png" {
		t.Errorf("effective format = %q, want png", got)
	}
	if got, _ := c.Manipulations().Get(manipulations.Format); got != "jpg" {
		t.Errorf("declared chain mutated, format = %q", got)
	}

	plain := New("thumb").EffectiveManipulations("png")
	if plain.Len() != 1 {
		t.Errorf("unchanged chain gained groups: %v", plain.Groups())
	}
}

func TestExtractVideoFrameAtSecondNeverNegative(t *testing.T) {
	if got := New("poster").ExtractVideoFrameAtSecond(-3).FrameSecond(); got != 0 {
		t.Errorf("FrameSecond() = %v, want 0", got)
	}
	if got := New("poster").ExtractVideoFrameAtSecond(2.5).FrameSecond(); got != 2.5 {
		t.Errorf("FrameSecond() = %v, want 2.5", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	c := New("thumb").PerformOnCollections("images")
	cp := c.Clone()
	cp.Width(10).PerformOnCollections("other")

	if _, ok := c.Manipulations().Get(manipulations.Width); ok {
		t.Error("clone shares manipulations")
	}
	if len(c.Collections()) != 1 {
		t.Errorf("clone shares collections: %v", c.Collections())
	}
}

func TestNonOptimized(t *testing.T) {
	c := New("thumb").NonOptimized()
	if _, ok := c.Manipulations().Get(manipulations.Optimize); ok {
		t.Error("optimize still present")
	}
}

func TestCollectionQueries(t *testing.T) {
	c := NewCollection(
		New("thumb").NonQueued(),
		New("large").Queued(),
		New("avatar").NonQueued().PerformOnCollections("avatars"),
	)

	if got := c.Names(); !reflect.DeepEqual(got, []string{"thumb", "large", "avatar"}) {
		t.Errorf("Names() = %v", got)
	}
	if got := c.NonQueued().Names(); !reflect.DeepEqual(got, []string{"thumb", "avatar"}) {
		t.Errorf("NonQueued() = %v", got)
	}
	if got := c.ForCollection("images").Names(); !reflect.DeepEqual(got, []string{"thumb", "large"}) {
		t.Errorf("ForCollection(images) = %v", got)
	}
	if got := c.ForCollection("").Len(); got != 3 {
		t.Errorf("ForCollection(\"\").Len() = %d, want 3", got)
	}
	if got := c.Only("avatar", "thumb").Names(); !reflect.DeepEqual(got, []string{"thumb", "avatar"}) {
		t.Errorf("Only() = %v", got)
	}
	if got := c.Only().Len(); got != 3 {
		t.Errorf("Only().Len() = %d, want 3", got)
	}
	if !c.Has("large") || c.Has("missing") {
		t.Error("Has() gave wrong answer")
	}
}

func TestGetByNameUnknown(t *testing.T) {
	c := NewCollection(New("thumb"))

	conv, err := c.GetByName("nonexistent")
	if conv != nil {
		t.Errorf("GetByName returned %v, want nil", conv)
	}
	if !errors.Is(err, ErrUnknownConversion) {
		t.Errorf("error = %v, want ErrUnknownConversion", err)
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
}

func TestConversionFiles(t *testing.T) {
	c := NewCollection(New("thumb"), New("keep").KeepOriginalImageFormat())
	got := c.ConversionFiles("cat.png")
	want := map[string]string{"thumb": "cat-thumb.jpg", "keep": "cat-keep.png"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ConversionFiles() = %v, want %v", got, want)
	}
}
