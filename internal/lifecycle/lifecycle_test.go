package lifecycle

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"media-conversions/internal/conversion"
	"media-conversions/internal/database"
	"media-conversions/internal/filesystem"
	"media-conversions/internal/manipulations"
	"media-conversions/internal/manipulator"
	"media-conversions/internal/media"
	"media-conversions/internal/pathgen"
)

type stubManipulator struct {
	convs *conversion.Collection
	runs  []int64
}

func (s *stubManipulator) Conversions(*media.Media) (*conversion.Collection, error) {
	return s.convs, nil
}

func (s *stubManipulator) CreateDerivedFiles(_ context.Context, m *media.Media, _ manipulator.Options) (manipulator.Results, error) {
	s.runs = append(s.runs, m.ID)
	return manipulator.Results{{Conversion: "thumb", Status: manipulator.StatusGenerated}}, nil
}

type fixture struct {
	hooks *Hooks
	repo  *database.Repository
	fs    *filesystem.Filesystem
	disk  *filesystem.Local
	manip *stubManipulator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, err := database.New(context.Background(), filepath.Join(t.TempDir(), "media.db"))
	if err != nil {
		t.Fatalf("database.New() error = %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	disk, err := filesystem.NewLocal(filesystem.DiskConfig{Name: "local", Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	fs := filesystem.New(filesystem.NewManager(disk), pathgen.Default{})

	manip := &stubManipulator{convs: conversion.NewCollection(
		conversion.New("thumb"),
		conversion.New("preview").KeepOriginalImageFormat(),
		conversion.New("never-run"),
	)}

	return &fixture{hooks: New(repo, fs, manip), repo: repo, fs: fs, disk: disk, manip: manip}
}

func (f *fixture) put(t *testing.T, path, body string) {
	t.Helper()
	if err := f.disk.Put(context.Background(), path, strings.NewReader(body)); err != nil {
		t.Fatalf("Put(%s) error = %v", path, err)
	}
}

func (f *fixture) read(t *testing.T, path string) string {
	t.Helper()
	rc, err := f.disk.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open(%s) error = %v", path, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func (f *fixture) exists(t *testing.T, path string) bool {
	t.Helper()
	ok, err := f.disk.Exists(context.Background(), path)
	if err != nil {
		t.Fatalf("Exists(%s) error = %v", path, err)
	}
	return ok
}

func (f *fixture) create(t *testing.T) *media.Media {
	t.Helper()
	m := &media.Media{
		ModelType: "post",
		ModelID:   1,
		Name:      "photo",
		FileName:  "photo.png",
		MimeType:  "image/png",
		Disk:      "local",
	}
	if err := f.repo.Create(context.Background(), m); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return m
}

func TestUpdate_RenamesOriginalAndConversions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t)

	id := m.ID
	base := formatID(id)
	f.put(t, base+"/photo.png", "original")
	f.put(t, base+"/conversions/photo-thumb.jpg", "thumb")
	f.put(t, base+"/conversions/photo-preview.png", "preview")

	updated, results, err := f.hooks.Update(ctx, id, func(m *media.Media) error {
		m.FileName = "holiday.png"
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if results != nil {
		t.Errorf("a rename alone should not regenerate, got %v", results)
	}
	if updated.FileName != "holiday.png" {
		t.Errorf("FileName = %q", updated.FileName)
	}

	for path, want := range map[string]string{
		base + "/holiday.png":                     "original",
		base + "/conversions/holiday-thumb.jpg":   "thumb",
		base + "/conversions/holiday-preview.png": "preview",
	} {
		if got := f.read(t, path); got != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
	for _, path := range []string{
		base + "/photo.png",
		base + "/conversions/photo-thumb.jpg",
		base + "/conversions/photo-preview.png",
		base + "/conversions/holiday-never-run.jpg",
	} {
		if f.exists(t, path) {
			t.Errorf("%s should not exist", path)
		}
	}
	if len(f.manip.runs) != 0 {
		t.Errorf("CreateDerivedFiles ran %d times", len(f.manip.runs))
	}
}

func TestUpdate_MissingOriginalRestoresFileName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t)

	updated, _, err := f.hooks.Update(ctx, m.ID, func(m *media.Media) error {
		m.FileName = "other.png"
		return nil
	})
	if !errors.Is(err, filesystem.ErrFileNotFound) {
		t.Fatalf("Update() error = %v, want ErrFileNotFound", err)
	}
	if updated.FileName != "photo.png" {
		t.Errorf("returned FileName = %q, want photo.png", updated.FileName)
	}

	stored, err := f.repo.Get(ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.FileName != "photo.png" {
		t.Errorf("stored FileName = %q, want photo.png", stored.FileName)
	}
}

func TestUpdated_ManipulationsChangeRegenerates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t)

	_, results, err := f.hooks.Update(ctx, m.ID, func(m *media.Media) error {
		m.Manipulations = map[string]manipulations.Group{"thumb": {"width": "20"}}
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(f.manip.runs) != 1 || f.manip.runs[0] != m.ID {
		t.Fatalf("runs = %v, want [%d]", f.manip.runs, m.ID)
	}
	if len(results.Generated()) != 1 {
		t.Errorf("results = %v", results)
	}

	// Saving the same manipulations again is not a change.
	if _, _, err := f.hooks.Update(ctx, m.ID, func(m *media.Media) error {
		m.Name = "renamed label"
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(f.manip.runs) != 1 {
		t.Errorf("runs = %v, want a single run", f.manip.runs)
	}
}

func TestUpdated_UnattachedRecordSkipsRegeneration(t *testing.T) {
	f := newFixture(t)
	old := &media.Media{ID: 9, FileName: "a.png"}
	updated := old.Clone()
	updated.ModelID = 3
	updated.Manipulations = map[string]manipulations.Group{"*": {"sepia": ""}}

	if _, err := f.hooks.Updated(context.Background(), old, updated); err != nil {
		t.Fatalf("Updated() error = %v", err)
	}
	if len(f.manip.runs) != 0 {
		t.Errorf("runs = %v, want none", f.manip.runs)
	}
}

func TestDelete_SoftKeepsFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t)
	base := formatID(m.ID)
	f.put(t, base+"/photo.png", "original")

	if err := f.hooks.Delete(ctx, m.ID, false); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	stored, err := f.repo.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !stored.IsTrashed() {
		t.Error("record should be trashed")
	}
	if !f.exists(t, base+"/photo.png") {
		t.Error("soft delete removed the original")
	}
}

func TestDelete_ForceRemovesFilesThenRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t)
	base := formatID(m.ID)
	f.put(t, base+"/photo.png", "original")
	f.put(t, base+"/conversions/photo-thumb.jpg", "thumb")
	f.put(t, base+"/responsive-images/photo___medialibrary_original_10_10.png", "r")

	if err := f.hooks.Delete(ctx, m.ID, true); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := f.repo.Get(ctx, m.ID); !errors.Is(err, media.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	for _, path := range []string{
		base + "/photo.png",
		base + "/conversions/photo-thumb.jpg",
		base + "/responsive-images/photo___medialibrary_original_10_10.png",
	} {
		if f.exists(t, path) {
			t.Errorf("%s should be removed", path)
		}
	}
}

func TestDelete_ForceKeepsRecordWhenCleanupFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.create(t)

	if _, err := f.repo.Update(ctx, m.ID, func(m *media.Media) error {
		m.Disk = "gone"
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := f.hooks.Delete(ctx, m.ID, true); !errors.Is(err, filesystem.ErrStorage) {
		t.Fatalf("Delete() error = %v, want ErrStorage", err)
	}
	if _, err := f.repo.Get(ctx, m.ID); err != nil {
		t.Errorf("record should survive a failed cleanup, Get() error = %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	f := newFixture(t)
	if err := f.hooks.Delete(context.Background(), 99, true); !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("Delete() error = %v, want ErrNotFound", err)
	}
}

func formatID(id int64) string {
	return strings.TrimSuffix(pathgen.Default{}.PathFor(&media.Media{ID: id}), "/")
}
