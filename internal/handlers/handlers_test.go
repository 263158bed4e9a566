package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"media-conversions/internal/conversion"
	"media-conversions/internal/filesystem"
	"media-conversions/internal/manipulator"
	"media-conversions/internal/media"
	"media-conversions/internal/metrics"
	"media-conversions/internal/pathgen"
	"media-conversions/internal/responsive"
	"media-conversions/internal/urlgen"
)

type stubManipulator struct {
	convs      *conversion.Collection
	results    manipulator.Results
	err        error
	gotOpts    manipulator.Options
	responsive []string
}

func (s *stubManipulator) Conversions(*media.Media) (*conversion.Collection, error) {
	return s.convs, nil
}

func (s *stubManipulator) CreateDerivedFiles(_ context.Context, _ *media.Media, opts manipulator.Options) (manipulator.Results, error) {
	s.gotOpts = opts
	return s.results, s.err
}

func (s *stubManipulator) RegisterResponsiveImages(_ context.Context, _ *media.Media, base string) error {
	s.responsive = append(s.responsive, base)
	return s.err
}

type stubDeleter struct {
	id    int64
	force bool
	err   error
}

func (d *stubDeleter) Delete(_ context.Context, id int64, force bool) error {
	d.id, d.force = id, force
	return d.err
}

type stubStats struct{}

func (stubStats) GetStats() metrics.Stats { return metrics.Stats{TotalMedia: 3, TrashedMedia: 1} }

type stubDepth int

func (d stubDepth) Depth() int { return int(d) }

type stubPressure bool

func (p stubPressure) Paused() bool { return bool(p) }

type testServer struct {
	router  *mux.Router
	h       *Handlers
	store   *media.MemoryStore
	disk    *filesystem.Local
	manip   *stubManipulator
	deleter *stubDeleter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	disk, err := filesystem.NewLocal(filesystem.DiskConfig{
		Name: "local",
		Root: filepath.Join(t.TempDir(), "media"),
		URL:  "/media",
	})
	if err != nil {
		t.Fatal(err)
	}
	disks := filesystem.NewManager(disk)

	convs := conversion.NewCollection(
		conversion.New("thumb").Width(100).NonQueued(),
		conversion.New("large").Width(1200).Queued().WithResponsiveImages(),
		conversion.New("banner").PerformOnCollections("headers"),
	)
	reg := conversion.NewRegistry()
	reg.Register("post", conversion.RegistrarFunc(func(*media.Media) ([]*conversion.Conversion, error) {
		return convs.All(), nil
	}))

	store := media.NewMemoryStore()
	s := &testServer{
		router:  mux.NewRouter(),
		store:   store,
		disk:    disk,
		manip:   &stubManipulator{convs: convs},
		deleter: &stubDeleter{},
	}
	s.h = New(Deps{
		Store:       store,
		Manipulator: s.manip,
		Lifecycle:   s.deleter,
		URLs:        urlgen.NewFactory(disks, pathgen.Default{}, conversion.NewResolver(reg)),
		Filesystem:  filesystem.New(disks, pathgen.Default{}),
		Stats:       stubStats{},
		Queue:       stubDepth(4),
	})
	s.h.RegisterRoutes(s.router)
	return s
}

func (s *testServer) create(t *testing.T, mutate func(m *media.Media)) *media.Media {
	t.Helper()
	m := &media.Media{
		ModelType:      "post",
		ModelID:        1,
		CollectionName: "default",
		Name:           "photo",
		FileName:       "photo.png",
		MimeType:       "image/png",
		Disk:           "local",
		Size:           2048,
	}
	if mutate != nil {
		mutate(m)
	}
	if err := s.store.Save(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return m
}

func (s *testServer) do(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestGetMedia(t *testing.T) {
	s := newTestServer(t)
	m := s.create(t, nil)

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/media/%d", m.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	got := decode[map[string]any](t, rec)
	if got["file_name"] != "photo.png" || got["human_readable_size"] != "2.00 KB" || got["type"] != "image" {
		t.Errorf("response = %v", got)
	}
	if got["url"] != fmt.Sprintf("/media/%d/photo.png", m.ID) {
		t.Errorf("url = %v", got["url"])
	}
}

func TestGetMedia_Errors(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodGet, "/api/media/404"); rec.Code != http.StatusNotFound {
		t.Errorf("missing media status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/media/0"); rec.Code != http.StatusBadRequest {
		t.Errorf("zero id status = %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/media/abc"); rec.Code != http.StatusNotFound {
		t.Errorf("non-numeric id status = %d, want unmatched route", rec.Code)
	}
}

func TestDeleteMedia(t *testing.T) {
	tests := []struct {
		target    string
		err       error
		wantForce bool
		wantCode  int
	}{
		{"/api/media/7", nil, false, http.StatusNoContent},
		{"/api/media/7?force=1", nil, true, http.StatusNoContent},
		{"/api/media/7?force=true", media.ErrNotFound, true, http.StatusNotFound},
		{"/api/media/7", fmt.Errorf("remove: %w", filesystem.ErrStorage), false, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			s := newTestServer(t)
			s.deleter.err = tt.err
			rec := s.do(t, http.MethodDelete, tt.target)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if s.deleter.id != 7 || s.deleter.force != tt.wantForce {
				t.Errorf("Delete(%d, %v), want (7, %v)", s.deleter.id, s.deleter.force, tt.wantForce)
			}
		})
	}
}

func TestListConversions(t *testing.T) {
	s := newTestServer(t)
	m := s.create(t, func(m *media.Media) {
		m.GeneratedConversions = map[string]bool{"thumb": true}
	})

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/media/%d/conversions", m.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decode[[]ConversionInfo](t, rec)
	want := []ConversionInfo{
		{Name: "thumb", FileName: "photo-thumb.jpg", Generated: true, URL: fmt.Sprintf("/media/%d/conversions/photo-thumb.jpg", m.ID)},
		{Name: "large", FileName: "photo-large.jpg", Queued: true, Responsive: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("conversions = %+v\nwant %+v", got, want)
	}
}

func TestRunConversions(t *testing.T) {
	s := newTestServer(t)
	m := s.create(t, nil)
	s.manip.results = manipulator.Results{
		{Conversion: "thumb", Status: manipulator.StatusGenerated, FileName: "photo-thumb.jpg", Duration: 1500 * time.Microsecond},
		{Conversion: "large", Status: manipulator.StatusFailed, Err: fmt.Errorf("%w: exit 1", manipulator.ErrConversionFailed)},
	}

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/media/%d/conversions?only=thumb,large&only=%%20&missing=1", m.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !reflect.DeepEqual(s.manip.gotOpts.Only, []string{"thumb", "large"}) || !s.manip.gotOpts.OnlyMissing {
		t.Errorf("options = %+v", s.manip.gotOpts)
	}
	if s.manip.gotOpts.WithResponsiveImages {
		t.Error("responsive images requested without the parameter")
	}

	got := decode[RunResponse](t, rec)
	if got.Generated != 1 || got.Failed != 1 || got.Queued != 0 {
		t.Errorf("counts = %+v", got)
	}
	if got.Results[0].DurationMS != 1.5 {
		t.Errorf("duration = %v", got.Results[0].DurationMS)
	}
	if got.Results[1].Kind != string(manipulator.FailureConversion) || !strings.Contains(got.Results[1].Error, "exit 1") {
		t.Errorf("failed result = %+v", got.Results[1])
	}
}

func TestRunConversions_QueuedOnlyIsAccepted(t *testing.T) {
	s := newTestServer(t)
	m := s.create(t, nil)
	s.manip.results = manipulator.Results{{Conversion: "large", Status: manipulator.StatusQueued}}

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/media/%d/conversions?responsive=1", m.ID))
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if !s.manip.gotOpts.WithResponsiveImages {
		t.Error("responsive=1 was not passed on")
	}
}

func TestRunConversions_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported source", fmt.Errorf("%w: no generator", conversion.ErrConfiguration), http.StatusUnprocessableEntity},
		{"source unavailable", fmt.Errorf("%w: original missing", manipulator.ErrSourceUnavailable), http.StatusConflict},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			m := s.create(t, nil)
			s.manip.err = tt.err
			rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/media/%d/conversions", m.ID))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			if got := decode[map[string]string](t, rec); got["error"] == "" {
				t.Error("error message missing")
			}
		})
	}
}

func TestRunConversions_TrashedMedia(t *testing.T) {
	s := newTestServer(t)
	now := time.Now()
	m := s.create(t, func(m *media.Media) { m.DeletedAt = &now })

	if rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/media/%d/conversions", m.ID)); rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestGetURL(t *testing.T) {
	s := newTestServer(t)
	m := s.create(t, nil)

	tests := []struct {
		conversion string
		wantCode   int
		wantURL    string
	}{
		{"original", http.StatusOK, fmt.Sprintf("/media/%d/photo.png", m.ID)},
		{"thumb", http.StatusOK, fmt.Sprintf("/media/%d/conversions/photo-thumb.jpg", m.ID)},
		{"missing", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.conversion, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/media/%d/url/%s", m.ID, tt.conversion))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantURL != "" {
				if got := decode[map[string]string](t, rec)["url"]; got != tt.wantURL {
					t.Errorf("url = %q, want %q", got, tt.wantURL)
				}
			}
		})
	}
}

func TestGetTemporaryURL(t *testing.T) {
	s := newTestServer(t)
	m := s.create(t, nil)

	rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/media/%d/temporary-url/thumb", m.ID))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("local disk status = %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodGet, fmt.Sprintf("/api/media/%d/temporary-url/thumb?expiry=forever", m.ID))
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "expiry") {
		t.Errorf("bad expiry status = %d, body %s", rec.Code, rec.Body)
	}
}

func TestSanitizeFileName(t *testing.T) {
	if got := sanitizeFileName("a\"b\\c\r\nd.jpg"); got != "abcd.jpg" {
		t.Errorf("sanitizeFileName() = %q", got)
	}
}

func TestResponsiveImages(t *testing.T) {
	s := newTestServer(t)
	file := responsive.Encode("photo", media.OriginalResponsiveKey, 640, 480, "png")
	m := s.create(t, func(m *media.Media) {
		m.ResponsiveImages = map[string]media.ResponsiveSet{
			media.OriginalResponsiveKey: {URLs: []string{file}},
		}
	})
	if err := s.disk.Put(context.Background(), fmt.Sprintf("%d/responsive-images/%s", m.ID, file), strings.NewReader("img")); err != nil {
		t.Fatal(err)
	}
	base := fmt.Sprintf("/api/media/%d/responsive/", m.ID)

	rec := s.do(t, http.MethodGet, base+"original")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := decode[ResponsiveResponse](t, rec)
	wantURL := fmt.Sprintf("/media/%d/responsive-images/%s", m.ID, file)
	if got.Key != media.OriginalResponsiveKey || len(got.Files) != 1 || got.Files[0].URL != wantURL || got.Files[0].Width != 640 {
		t.Errorf("response = %+v", got)
	}
	if got.Srcset != wantURL+" 640w" {
		t.Errorf("srcset = %q", got.Srcset)
	}

	if rec := s.do(t, http.MethodGet, base+"thumb"); rec.Code != http.StatusNotFound {
		t.Errorf("empty set status = %d, want 404", rec.Code)
	}

	if rec := s.do(t, http.MethodDelete, base+"original"); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, body %s", rec.Code, rec.Body)
	}
	stored, err := s.store.Get(context.Background(), m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := stored.ResponsiveSetFor(media.OriginalResponsiveKey); ok {
		t.Error("responsive set still on the record")
	}
	if ok, _ := s.disk.Exists(context.Background(), fmt.Sprintf("%d/responsive-images/%s", m.ID, file)); ok {
		t.Error("rendition still on disk")
	}
}

func TestRegenerateResponsiveImages(t *testing.T) {
	s := newTestServer(t)
	m := s.create(t, nil)

	rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/media/%d/responsive/large", m.ID))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if !reflect.DeepEqual(s.manip.responsive, []string{"large"}) {
		t.Errorf("RegisterResponsiveImages calls = %v", s.manip.responsive)
	}

	s.manip.err = fmt.Errorf("%w: conversion large has not been generated", manipulator.ErrSourceUnavailable)
	if rec := s.do(t, http.MethodPost, fmt.Sprintf("/api/media/%d/responsive/original", m.ID)); rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
	if got := s.manip.responsive[len(s.manip.responsive)-1]; got != "" {
		t.Errorf("original alias passed as %q", got)
	}
}

func TestHealthAndProbes(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("health before ready = %d, want 503", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before ready = %d", rec.Code)
	}

	s.h.SetReady(true)
	rec = s.do(t, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("health = %d", rec.Code)
	}
	health := decode[HealthResponse](t, rec)
	if health.Status != statusHealthy || health.QueueDepth != 4 || health.TotalMedia != 3 || health.TrashedMedia != 1 {
		t.Errorf("health = %+v", health)
	}
	if rec := s.do(t, http.MethodGet, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("readyz = %d", rec.Code)
	}

	s.h.memory = stubPressure(true)
	if health := decode[HealthResponse](t, s.do(t, http.MethodGet, "/health")); health.Status != statusDegraded {
		t.Errorf("status under memory pressure = %s", health.Status)
	}

	rec = s.do(t, http.MethodHead, "/livez")
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("HEAD /livez = %d with %d bytes", rec.Code, rec.Body.Len())
	}
}

func TestGetVersion(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/version")
	if rec.Code != http.StatusOK || rec.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("version = %d, headers %v", rec.Code, rec.Header())
	}
	if got := decode[map[string]any](t, rec); got["version"] == nil {
		t.Errorf("version body = %v", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.h.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "media_conversions_") {
		t.Errorf("metrics = %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{media.ErrNotFound, http.StatusNotFound},
		{filesystem.ErrFileNotFound, http.StatusNotFound},
		{fmt.Errorf("x: %w", conversion.ErrUnknownConversion), http.StatusNotFound},
		{urlgen.ErrTemporaryURLUnsupported, http.StatusBadRequest},
		{conversion.ErrDuplicateConversion, http.StatusUnprocessableEntity},
		{fmt.Errorf("x: %w", responsive.ErrNotAnImage), http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{filesystem.ErrStorage, http.StatusBadGateway},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestResponsiveImages_PlaceholderFollowsSetting(t *testing.T) {
	const svg = "data:image/svg+xml;base64,PHN2Zz4="
	file := responsive.Encode("photo", media.OriginalResponsiveKey, 640, 480, "png")

	for _, enabled := range []bool{false, true} {
		t.Run(fmt.Sprintf("tiny=%v", enabled), func(t *testing.T) {
			s := newTestServer(t)
			s.h.tinyPlaceholders = enabled
			m := s.create(t, func(m *media.Media) {
				m.ResponsiveImages = map[string]media.ResponsiveSet{
					media.OriginalResponsiveKey: {URLs: []string{file}, Base64SVG: svg},
				}
			})

			rec := s.do(t, http.MethodGet, fmt.Sprintf("/api/media/%d/responsive/original", m.ID))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
			}
			got := decode[ResponsiveResponse](t, rec)
			if has := strings.HasSuffix(got.Srcset, svg+" 32w"); has != enabled {
				t.Errorf("srcset = %q, placeholder appended = %v", got.Srcset, has)
			}
			if has := got.Placeholder != ""; has != enabled {
				t.Errorf("placeholder = %q", got.Placeholder)
			}
		})
	}
}
