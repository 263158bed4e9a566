package generator

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"media-conversions/internal/conversion"
	"media-conversions/internal/media"
)

type stubGenerator struct {
	name      string
	exts      []string
	mimes     []string
	installed bool
}

func (s stubGenerator) Type() string                  { return s.name }
func (s stubGenerator) SupportedExtensions() []string { return s.exts }
func (s stubGenerator) SupportedMimeTypes() []string  { return s.mimes }
func (s stubGenerator) RequirementsInstalled() bool   { return s.installed }
func (s stubGenerator) Convert(_ context.Context, src string, _ *conversion.Conversion) (string, error) {
	return src, nil
}

func TestCanConvert(t *testing.T) {
	extOnly := stubGenerator{name: "ext", exts: []string{"mp4"}, installed: true}
	mimeOnly := stubGenerator{name: "mime", mimes: []string{"video/mp4"}, installed: true}
	missing := stubGenerator{name: "missing", exts: []string{"mp4"}, mimes: []string{"video/mp4"}}

	tests := []struct {
		name string
		g    Generator
		m    media.Media
		want bool
	}{
		{"extension match with empty mime list", extOnly, media.Media{FileName: "clip.mp4"}, true},
		{"extension match is case insensitive", extOnly, media.Media{FileName: "CLIP.MP4"}, true},
		{"mime match with empty extension list", mimeOnly, media.Media{FileName: "upload", MimeType: "video/mp4"}, true},
		{"mime match is case insensitive", mimeOnly, media.Media{FileName: "upload.bin", MimeType: "Video/MP4"}, true},
		{"no match", extOnly, media.Media{FileName: "a.png", MimeType: "image/png"}, false},
		{"requirements missing", missing, media.Media{FileName: "clip.mp4", MimeType: "video/mp4"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanConvert(tt.g, &tt.m); got != tt.want {
				t.Errorf("CanConvert() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistryFirstMatchWins(t *testing.T) {
	first := stubGenerator{name: "first", exts: []string{"png"}, installed: true}
	second := stubGenerator{name: "second", exts: []string{"png"}, installed: true}

	g, err := NewRegistry(first, second).For(&media.Media{FileName: "a.png"})
	if err != nil {
		t.Fatal(err)
	}
	if g.Type() != "first" {
		t.Errorf("For() = %s, want first", g.Type())
	}
}

func TestRegistrySkipsUninstalled(t *testing.T) {
	uninstalled := stubGenerator{name: "uninstalled", exts: []string{"mp4"}}
	fallback := stubGenerator{name: "fallback", mimes: []string{"video/mp4"}, installed: true}

	g, err := NewRegistry(uninstalled, fallback).For(&media.Media{FileName: "a.mp4", MimeType: "video/mp4"})
	if err != nil {
		t.Fatal(err)
	}
	if g.Type() != "fallback" {
		t.Errorf("For() = %s, want fallback", g.Type())
	}
}

func TestRegistryUnsupportedSource(t *testing.T) {
	_, err := NewRegistry(Image{}).For(&media.Media{FileName: "doc.pdf", MimeType: "application/pdf"})
	if !errors.Is(err, ErrUnsupportedSource) {
		t.Fatalf("error = %v, want ErrUnsupportedSource", err)
	}
	if !errors.Is(err, conversion.ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}
}

func TestDefaultGeneratorsDispatch(t *testing.T) {
	video := &Video{installed: true}
	video.once.Do(func() {})
	reg := NewRegistry(Image{}, Webp{}, video)

	if got := reg.Types(); len(got) != 3 || got[0] != "image" || got[2] != "video" {
		t.Errorf("Types() = %v", got)
	}

	tests := []struct {
		m    media.Media
		want string
	}{
		{media.Media{FileName: "a.jpeg"}, "image"},
		{media.Media{FileName: "a", MimeType: "image/gif"}, "image"},
		{media.Media{FileName: "a.webp"}, "webp"},
		{media.Media{FileName: "a", MimeType: "image/webp"}, "webp"},
		{media.Media{FileName: "a.mov"}, "video"},
		{media.Media{FileName: "a", MimeType: "video/quicktime"}, "video"},
	}

	for _, tt := range tests {
		g, err := reg.For(&tt.m)
		if err != nil {
			t.Errorf("For(%s, %s) error = %v", tt.m.FileName, tt.m.MimeType, err)
			continue
		}
		if g.Type() != tt.want {
			t.Errorf("For(%s, %s) = %s, want %s", tt.m.FileName, tt.m.MimeType, g.Type(), tt.want)
		}
	}
}

func TestImageConvertIsPassthrough(t *testing.T) {
	got, err := Image{}.Convert(context.Background(), "/tmp/a.png", conversion.New("thumb"))
	if err != nil || got != "/tmp/a.png" {
		t.Errorf("Convert() = %q, %v", got, err)
	}
}

func TestWebpConvertRejectsInvalidData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.webp")
	if err := os.WriteFile(path, []byte("not a webp"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := (Webp{}).Convert(context.Background(), path, conversion.New("thumb")); err == nil {
		t.Error("expected decode error")
	}
}

func TestClampFrameSecond(t *testing.T) {
	tests := []struct {
		second, duration, want float64
	}{
		{2, 10, 2},
		{10, 10, 10},
		{12, 10, 0},
		{-1, 10, 0},
		{3, 0, 0},
		{0, 0, 0},
	}

	for _, tt := range tests {
		if got := clampFrameSecond(tt.second, tt.duration); got != tt.want {
			t.Errorf("clampFrameSecond(%v, %v) = %v, want %v", tt.second, tt.duration, got, tt.want)
		}
	}
}

func TestParseDuration(t *testing.T) {
	if d, err := parseDuration("12.480000\n"); err != nil || d != 12.48 {
		t.Errorf("parseDuration() = %v, %v", d, err)
	}
	for _, in := range []string{"", "N/A\n", "abc"} {
		if _, err := parseDuration(in); err == nil {
			t.Errorf("parseDuration(%q) expected error", in)
		}
	}
}

func TestVideoRequirementsMissingBinary(t *testing.T) {
	v := NewVideo("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	if v.RequirementsInstalled() {
		t.Error("RequirementsInstalled() = true for missing binaries")
	}
	if CanConvert(v, &media.Media{FileName: "a.mp4"}) {
		t.Error("CanConvert() = true without ffmpeg")
	}
}

func TestVideoConvertClampsPastEnd(t *testing.T) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not available")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not available")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp4")
	cmd := exec.Command("ffmpeg", "-y", "-f", "lavfi", "-i", "testsrc=duration=1:size=64x48:rate=10",
		"-pix_fmt", "yuv420p", src)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("could not create test video: %v: %s", err, out)
	}

	v := NewVideo("", "")
	out, err := v.Convert(context.Background(), src, conversion.New("poster").ExtractVideoFrameAtSecond(30))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if out != filepath.Join(dir, "clip.jpg") {
		t.Errorf("Convert() = %q", out)
	}

	img, err := imaging.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 64 {
		t.Errorf("frame width = %d, want 64", img.Bounds().Dx())
	}
}

func TestWebpOutputNaming(t *testing.T) {
	// A PNG named .webp still fails to decode as WebP; the error path must
	// not leave a .png behind.
	dir := t.TempDir()
	src := filepath.Join(dir, "photo.webp")
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.Set(0, 0, color.White)
	if err := imaging.Save(img, filepath.Join(dir, "tmp.png")); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(filepath.Join(dir, "tmp.png"), src); err != nil {
		t.Fatal(err)
	}

	if _, err := (Webp{}).Convert(context.Background(), src, conversion.New("thumb")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := os.Stat(filepath.Join(dir, "photo.png")); !os.IsNotExist(err) {
		t.Error("png written despite decode failure")
	}
}
