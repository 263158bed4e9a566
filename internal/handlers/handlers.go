package handlers

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"media-conversions/internal/conversion"
	"media-conversions/internal/filesystem"
	"media-conversions/internal/manipulator"
	"media-conversions/internal/media"
	"media-conversions/internal/metrics"
	"media-conversions/internal/urlgen"
)

// Manipulator runs and resolves the conversions of a media item.
type Manipulator interface {
	Conversions(m *media.Media) (*conversion.Collection, error)
	CreateDerivedFiles(ctx context.Context, m *media.Media, opts manipulator.Options) (manipulator.Results, error)
	RegisterResponsiveImages(ctx context.Context, m *media.Media, baseConversionName string) error
}

// Deleter removes media records together with their files.
type Deleter interface {
	Delete(ctx context.Context, id int64, force bool) error
}

// URLFactory picks the URL generator for a media item's disk.
type URLFactory interface {
	ForMedia(m *media.Media, conversionName string) (urlgen.Generator, error)
	ForResponsiveImages(m *media.Media) (urlgen.Generator, error)
}

// Pressure reports whether conversions are being held back.
type Pressure interface {
	Paused() bool
}

// Deps are the collaborators of Handlers. Stats, Queue and Memory may be
// nil. TinyPlaceholders adds the stored placeholder to srcset values.
type Deps struct {
	Store       media.Store
	Manipulator Manipulator
	Lifecycle   Deleter
	URLs        URLFactory
	Filesystem  *filesystem.Filesystem
	Stats       metrics.StatsProvider
	Queue       metrics.QueueDepthProvider
	Memory      Pressure

	TinyPlaceholders bool
}

// Handlers serves the HTTP API.
type Handlers struct {
	store       media.Store
	manipulator Manipulator
	lifecycle   Deleter
	urls        URLFactory
	fs          *filesystem.Filesystem
	stats       metrics.StatsProvider
	queue       metrics.QueueDepthProvider
	memory      Pressure

	tinyPlaceholders bool
	startTime        time.Time
	ready            atomic.Bool
}

func New(deps Deps) *Handlers {
	return &Handlers{
		store:       deps.Store,
		manipulator: deps.Manipulator,
		lifecycle:   deps.Lifecycle,
		urls:        deps.URLs,
		fs:          deps.Filesystem,
		stats:       deps.Stats,
		queue:       deps.Queue,
		memory:      deps.Memory,

		tinyPlaceholders: deps.TinyPlaceholders,
		startTime:        time.Now(),
	}
}

// SetReady flips the readiness probe once the queue is running.
func (h *Handlers) SetReady(ready bool) {
	h.ready.Store(ready)
}

// RegisterRoutes adds every endpoint to r.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/livez", h.LivenessCheck).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", h.GetVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api/media/{id:[0-9]+}").Subrouter()
	api.HandleFunc("", h.GetMedia).Methods(http.MethodGet)
	api.HandleFunc("", h.DeleteMedia).Methods(http.MethodDelete)
	api.HandleFunc("/conversions", h.ListConversions).Methods(http.MethodGet)
	api.HandleFunc("/conversions", h.RunConversions).Methods(http.MethodPost)
	api.HandleFunc("/url/{conversion}", h.GetURL).Methods(http.MethodGet)
	api.HandleFunc("/temporary-url/{conversion}", h.GetTemporaryURL).Methods(http.MethodGet)
	api.HandleFunc("/responsive/{conversion}", h.GetResponsiveImages).Methods(http.MethodGet)
	api.HandleFunc("/responsive/{conversion}", h.RegenerateResponsiveImages).Methods(http.MethodPost)
	api.HandleFunc("/responsive/{conversion}", h.DeleteResponsiveImages).Methods(http.MethodDelete)
}
