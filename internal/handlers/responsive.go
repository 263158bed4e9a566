package handlers

import (
	"net/http"

	"media-conversions/internal/media"
	"media-conversions/internal/responsive"
)

// ResponsiveFile is one stored rendition.
type ResponsiveFile struct {
	FileName string `json:"file_name"`
	URL      string `json:"url"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// ResponsiveResponse describes the responsive images of one conversion.
type ResponsiveResponse struct {
	Key         string           `json:"key"`
	Files       []ResponsiveFile `json:"files"`
	Srcset      string           `json:"srcset"`
	Placeholder string           `json:"placeholder,omitempty"`
}

func (h *Handlers) registered(w http.ResponseWriter, r *http.Request, m *media.Media) (*responsive.Registered, bool) {
	gen, err := h.urls.ForResponsiveImages(m)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return responsive.NewRegistered(m, conversionName(r), gen), true
}

func (h *Handlers) responsiveResponse(reg *responsive.Registered) ResponsiveResponse {
	resp := ResponsiveResponse{
		Key:    reg.Key(),
		Files:  make([]ResponsiveFile, 0, len(reg.Files())),
		Srcset: reg.Srcset(h.tinyPlaceholders),
	}
	if h.tinyPlaceholders {
		resp.Placeholder = reg.PlaceholderSVG()
	}
	urls := reg.URLs()
	for i, f := range reg.Files() {
		resp.Files = append(resp.Files, ResponsiveFile{
			FileName: f.FileName,
			URL:      urls[i],
			Width:    f.Width(),
			Height:   f.Height(),
		})
	}
	return resp
}

// GetResponsiveImages lists the renditions of {conversion}; "original"
// addresses the original file.
func (h *Handlers) GetResponsiveImages(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMedia(w, r)
	if !ok {
		return
	}
	reg, ok := h.registered(w, r, m)
	if !ok {
		return
	}
	if reg.IsEmpty() {
		writeJSONError(w, "no responsive images for "+reg.Key(), http.StatusNotFound)
		return
	}
	writeJSONStatus(w, http.StatusOK, h.responsiveResponse(reg))
}

// RegenerateResponsiveImages rebuilds the renditions of {conversion}.
func (h *Handlers) RegenerateResponsiveImages(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMedia(w, r)
	if !ok {
		return
	}
	if err := h.manipulator.RegisterResponsiveImages(r.Context(), m, conversionName(r)); err != nil {
		writeError(w, r, err)
		return
	}
	reg, ok := h.registered(w, r, m)
	if !ok {
		return
	}
	writeJSONStatus(w, http.StatusCreated, h.responsiveResponse(reg))
}

// DeleteResponsiveImages removes the renditions of {conversion} from
// storage and from the record.
func (h *Handlers) DeleteResponsiveImages(w http.ResponseWriter, r *http.Request) {
	m, ok := h.loadMedia(w, r)
	if !ok {
		return
	}
	reg, ok := h.registered(w, r, m)
	if !ok {
		return
	}
	if err := reg.Delete(r.Context(), h.fs, h.store); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
