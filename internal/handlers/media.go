package handlers

import (
	"net/http"
	"time"

	"media-conversions/internal/filesystem"
	"media-conversions/internal/manipulator"
	"media-conversions/internal/media"
)

const (
	defaultURLExpiry = 5 * time.Minute
	maxURLExpiry     = 7 * 24 * time.Hour
)

// MediaResponse is a media record plus derived fields.
type MediaResponse struct {
	*media.Media
	HumanReadableSize string `json:"human_readable_size"`
	Type              string `json:"type"`
	URL               string `json:"url,omitempty"`
}

// ConversionInfo describes one conversion of a media item.
type ConversionInfo struct {
	Name       string `json:"name"`
	FileName   string `json:"file_name"`
	Queued     bool   `json:"queued"`
	Generated  bool   `json:"generated"`
	Responsive bool   `json:"responsive"`
	URL        string `json:"url,omitempty"`
}

// ConversionResult is the API form of manipulator.Result.
type ConversionResult struct {
	Conversion string  `json:"conversion"`
	Status     string  `json:"status"`
	FileName   string  `json:"file_name,omitempty"`
	DurationMS float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
	Kind       string  `json:"kind,omitempty"`
}

// RunResponse is returned by RunConversions.
type RunResponse struct {
	MediaID   int64              `json:"media_id"`
	Results   []ConversionResult `json:"results"`
	Generated int                `json:"generated"`
	Queued    int                `json:"queued"`
	Failed    int                `json:"failed"`
}

// GetMedia returns the record of {id}.
func (h *Handlers) GetMedia(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMedia(w, r)
	if !ok {
		return
	}
	resp := MediaResponse{Media: m, HumanReadableSize: m.HumanReadableSize(), Type: string(m.Type())}
	if gen, err := h.urls.ForMedia(m, ""); err == nil {
		resp.URL, _ = gen.URLFor(m, "")
	}
	writeJSONStatus(w, http.StatusOK, resp)
}

// DeleteMedia trashes {id}, or removes it with its files when force is
// set.
func (h *Handlers) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := mediaID(r)
	if !ok {
		writeJSONError(w, "invalid media id", http.StatusBadRequest)
		return
	}
	force := queryBool(r, "force")
	if err := h.lifecycle.Delete(r.Context(), id, force); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListConversions returns the conversions that apply to the collection of
// {id} with their generated state.
func (h *Handlers) ListConversions(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMedia(w, r)
	if !ok {
		return
	}
	convs, err := h.manipulator.Conversions(m)
	if err != nil {
		writeError(w, r, err)
		return
	}

	infos := []ConversionInfo{}
	for _, c := range convs.ForCollection(m.CollectionName).All() {
		info := ConversionInfo{
			Name:       c.Name(),
			FileName:   c.ConversionFileName(m.FileName),
			Queued:     c.ShouldBeQueued(),
			Generated:  m.HasGeneratedConversion(c.Name()),
			Responsive: c.GeneratesResponsiveImages(),
		}
		if info.Generated {
			if gen, err := h.urls.ForMedia(m, c.Name()); err == nil {
				info.URL, _ = gen.URLFor(m, c.Name())
			}
		}
		infos = append(infos, info)
	}
	writeJSONStatus(w, http.StatusOK, infos)
}

// RunConversions performs the conversions of {id}. Query parameters:
// only=a,b limits the names, missing=1 skips generated files and
// responsive=1 also refreshes the responsive images of the original.
// Failed conversions are reported per entry.
func (h *Handlers) RunConversions(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMedia(w, r)
	if !ok {
		return
	}
	if m.IsTrashed() {
		writeJSONError(w, "media is trashed", http.StatusConflict)
		return
	}

	opts := manipulator.Options{
		Only:                 splitList(r.URL.Query()["only"]),
		OnlyMissing:          queryBool(r, "missing"),
		WithResponsiveImages: queryBool(r, "responsive"),
	}
	results, err := h.manipulator.CreateDerivedFiles(r.Context(), m, opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := RunResponse{
		MediaID:   m.ID,
		Results:   make([]ConversionResult, 0, len(results)),
		Generated: len(results.Generated()),
		Queued:    len(results.Queued()),
		Failed:    len(results.Failed()),
	}
	for _, res := range results {
		cr := ConversionResult{
			Conversion: res.Conversion,
			Status:     string(res.Status),
			FileName:   res.FileName,
			DurationMS: float64(res.Duration.Microseconds()) / 1000,
		}
		if res.Err != nil {
			cr.Error = res.Err.Error()
			cr.Kind = string(res.Kind())
		}
		resp.Results = append(resp.Results, cr)
	}

	status := http.StatusOK
	if resp.Queued > 0 && resp.Generated == 0 && resp.Failed == 0 {
		status = http.StatusAccepted
	}
	writeJSONStatus(w, status, resp)
}

// GetURL returns the public URL of a conversion, or of the original for
// "original".
func (h *Handlers) GetURL(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMedia(w, r)
	if !ok {
		return
	}
	name := conversionName(r)
	gen, err := h.urls.ForMedia(m, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	url, err := gen.URLFor(m, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]string{"url": url})
}

// GetTemporaryURL returns a signed URL. expiry is a Go duration, default
// 5m. download=name asks the store to serve the file as an attachment.
func (h *Handlers) GetTemporaryURL(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMedia(w, r)
	if !ok {
		return
	}

	expiry := defaultURLExpiry
	if s := r.URL.Query().Get("expiry"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 || d > maxURLExpiry {
			writeJSONError(w, "expiry must be a duration between 1s and 168h", http.StatusBadRequest)
			return
		}
		expiry = d
	}
	options := map[string]string{}
	if name := r.URL.Query().Get("download"); name != "" {
		options[filesystem.OptionContentDisposition] = `attachment; filename="` + sanitizeFileName(name) + `"`
	}

	name := conversionName(r)
	gen, err := h.urls.ForMedia(m, name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	url, err := gen.TemporaryURLFor(r.Context(), m, name, expiry, options)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_at": time.Now().Add(expiry).UTC().Format(time.RFC3339),
	})
}

// sanitizeFileName keeps a header-safe file name.
func sanitizeFileName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if r < 0x20 || r == 0x7f || r == '"' || r == '\\' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
