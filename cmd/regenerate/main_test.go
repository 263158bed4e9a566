package main

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"media-conversions/internal/conversion"
	"media-conversions/internal/filesystem"
	"media-conversions/internal/manipulator"
	"media-conversions/internal/media"
	"media-conversions/internal/pathgen"
)

type stubCreator struct {
	calls []int64
	opts  manipulator.Options
	fail  map[int64]error
}

func (s *stubCreator) CreateDerivedFiles(_ context.Context, m *media.Media, opts manipulator.Options) (manipulator.Results, error) {
	s.calls = append(s.calls, m.ID)
	s.opts = opts
	if err := s.fail[m.ID]; err != nil {
		return nil, err
	}
	return manipulator.Results{
		{Conversion: "thumb", Status: manipulator.StatusGenerated},
		{Conversion: "large", Status: manipulator.StatusFailed, Err: manipulator.ErrConversionFailed},
	}, nil
}

type testApp struct {
	*app
	buf   *bytes.Buffer
	disk  *filesystem.Local
	manip *stubCreator
	store *media.MemoryStore
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	disk, err := filesystem.NewLocal(filesystem.DiskConfig{Name: "local", Root: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	reg := conversion.NewRegistry()
	reg.Register("post", conversion.RegistrarFunc(func(*media.Media) ([]*conversion.Conversion, error) {
		return []*conversion.Conversion{
			conversion.New("thumb").Width(100).NonQueued(),
			conversion.New("large").Width(1200),
		}, nil
	}))

	buf := &bytes.Buffer{}
	store := media.NewMemoryStore()
	manip := &stubCreator{fail: map[int64]error{}}
	return &testApp{
		app: &app{
			store:    store,
			resolver: conversion.NewResolver(reg),
			manip:    manip,
			fs:       filesystem.New(filesystem.NewManager(disk), pathgen.Default{}),
			out:      buf,
		},
		buf:   buf,
		disk:  disk,
		manip: manip,
		store: store,
	}
}

func (a *testApp) create(t *testing.T) *media.Media {
	t.Helper()
	m := &media.Media{
		ModelType:            "post",
		ModelID:              1,
		CollectionName:       "default",
		FileName:             "photo.png",
		MimeType:             "image/png",
		Disk:                 "local",
		Size:                 512,
		GeneratedConversions: map[string]bool{"thumb": true},
	}
	if err := a.store.Save(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return m
}

func (a *testApp) put(t *testing.T, p string) {
	t.Helper()
	if err := a.disk.Put(context.Background(), p, strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
}

func TestRegenerateCommand(t *testing.T) {
	a := newTestApp(t)
	first := a.create(t)
	second := a.create(t)
	a.manip.fail[second.ID] = fmt.Errorf("%w: no generator", conversion.ErrConfiguration)

	args := []string{"--missing", "--only", "thumb,large", fmt.Sprint(first.ID), fmt.Sprint(second.ID), "99"}
	code := a.dispatch(context.Background(), "regenerate", args)
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !reflect.DeepEqual(a.manip.calls, []int64{first.ID, second.ID}) {
		t.Errorf("calls = %v", a.manip.calls)
	}
	if !a.manip.opts.OnlyMissing || !reflect.DeepEqual(a.manip.opts.Only, []string{"thumb", "large"}) {
		t.Errorf("options = %+v", a.manip.opts)
	}

	out := a.buf.String()
	for _, want := range []string{
		fmt.Sprintf("[ok] media %d thumb: generated", first.ID),
		fmt.Sprintf("[--] media %d large: conversion failed", first.ID),
		fmt.Sprintf("[--] media %d: conversion configuration error", second.ID),
		"[--] media 99: media 99: media not found",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRegenerateCommandArguments(t *testing.T) {
	a := newTestApp(t)
	for _, args := range [][]string{nil, {"abc"}, {"0"}, {"--bogus", "1"}} {
		if code := a.dispatch(context.Background(), "regenerate", args); code != 2 {
			t.Errorf("regenerate %v exit code = %d, want 2", args, code)
		}
	}
	if len(a.manip.calls) != 0 {
		t.Errorf("conversions ran for invalid arguments: %v", a.manip.calls)
	}
}

func TestRegenerateInterrupted(t *testing.T) {
	a := newTestApp(t)
	m := a.create(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if code := a.regenerate(ctx, []int64{m.ID}, manipulator.Options{}); code != 130 {
		t.Errorf("exit code = %d, want 130", code)
	}
}

func TestListCommand(t *testing.T) {
	a := newTestApp(t)
	m := a.create(t)
	m.ResponsiveImages = map[string]media.ResponsiveSet{"thumb": {URLs: []string{"a", "b"}}}
	if err := a.store.Save(context.Background(), m); err != nil {
		t.Fatal(err)
	}

	if code := a.dispatch(context.Background(), "list", []string{fmt.Sprint(m.ID)}); code != 0 {
		t.Fatalf("exit code = %d, output:\n%s", code, a.buf)
	}
	out := a.buf.String()
	for _, want := range []string{
		fmt.Sprintf("Media %d: photo.png (image/png, 512 B, collection default)", m.ID),
		"[ok] thumb",
		"photo-thumb.jpg",
		"[--] large",
		"queued",
		"responsive thumb: 2 files",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestListCommandRequiresOneID(t *testing.T) {
	a := newTestApp(t)
	if code := a.dispatch(context.Background(), "list", []string{"1", "2"}); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if code := a.dispatch(context.Background(), "list", []string{"42"}); code != 1 {
		t.Errorf("missing media exit code = %d, want 1", code)
	}
}

func TestCleanCommand(t *testing.T) {
	a := newTestApp(t)
	m := a.create(t)
	m.ResponsiveImages = map[string]media.ResponsiveSet{
		media.OriginalResponsiveKey: {URLs: []string{"photo___medialibrary_original_100_50.png"}},
	}
	if err := a.store.Save(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	base := fmt.Sprintf("%d/", m.ID)
	a.put(t, base+"photo.png")
	a.put(t, base+"conversions/photo-thumb.jpg")
	a.put(t, base+"conversions/photo-old.jpg")
	a.put(t, base+"responsive-images/photo___medialibrary_original_100_50.png")
	a.put(t, base+"responsive-images/photo___medialibrary_original_80_40.png")

	id := fmt.Sprint(m.ID)
	if code := a.dispatch(context.Background(), "clean", []string{"--dry-run", id}); code != 0 {
		t.Fatalf("dry run exit code = %d, output:\n%s", code, a.buf)
	}
	if !strings.Contains(a.buf.String(), "would delete conversion photo-old.jpg") ||
		!strings.Contains(a.buf.String(), "would delete responsive photo___medialibrary_original_80_40.png") {
		t.Errorf("dry run output:\n%s", a.buf)
	}
	if !exists(t, a.disk, base+"conversions/photo-old.jpg") {
		t.Fatal("dry run deleted a file")
	}

	if code := a.dispatch(context.Background(), "clean", []string{id}); code != 0 {
		t.Fatalf("exit code = %d, output:\n%s", code, a.buf)
	}
	for p, want := range map[string]bool{
		base + "photo.png":                                                  true,
		base + "conversions/photo-thumb.jpg":                                true,
		base + "conversions/photo-old.jpg":                                  false,
		base + "responsive-images/photo___medialibrary_original_100_50.png": true,
		base + "responsive-images/photo___medialibrary_original_80_40.png":  false,
	} {
		if got := exists(t, a.disk, p); got != want {
			t.Errorf("%s exists = %v, want %v", p, got, want)
		}
	}

	a.buf.Reset()
	if code := a.dispatch(context.Background(), "clean", []string{id}); code != 0 || !strings.Contains(a.buf.String(), "nothing to clean") {
		t.Errorf("second clean = %d:\n%s", code, a.buf)
	}
}

func exists(t *testing.T, d filesystem.Disk, p string) bool {
	t.Helper()
	ok, err := d.Exists(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	return ok
}

func TestUnknownCommand(t *testing.T) {
	a := newTestApp(t)
	if code := a.dispatch(context.Background(), "rm -rf", nil); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if !strings.Contains(a.buf.String(), "Unknown command: rm_-rf") {
		t.Errorf("output:\n%s", a.buf)
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs([]string{"3", "10"})
	if err != nil || !reflect.DeepEqual(ids, []int64{3, 10}) {
		t.Errorf("parseIDs() = %v, %v", ids, err)
	}
	if _, err := parseIDs(nil); err == nil {
		t.Error("parseIDs(nil) should fail")
	}
	if _, err := parseIDs([]string{"-4"}); err == nil {
		t.Error("negative id accepted")
	}
}

func TestMark(t *testing.T) {
	a := &app{}
	if a.mark(true) != "[ok]" || a.mark(false) != "[--]" {
		t.Error("plain marks changed")
	}
	a.color = true
	if !strings.Contains(a.mark(true), "\x1b[32m") {
		t.Error("colored mark missing escape")
	}
}

func TestSanitizeCommand(t *testing.T) {
	tests := map[string]string{
		"list":        "list",
		"re-gen_2":    "re-gen_2",
		"a;b":         "a_b",
		"\x1b[31mred": "__31mred",
		"naïve":       "na_ve",
	}
	for in, want := range tests {
		if got := sanitizeCommand(in); got != want {
			t.Errorf("sanitizeCommand(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)
	for _, cmd := range []string{"regenerate [--missing]", "list <id>", "clean [--dry-run] <id>", "vacuum"} {
		if !strings.Contains(buf.String(), cmd) {
			t.Errorf("usage missing %q", cmd)
		}
	}
}
