package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"media-conversions/internal/conversion"
	"media-conversions/internal/filesystem"
	"media-conversions/internal/logging"
	"media-conversions/internal/manipulator"
	"media-conversions/internal/media"
	"media-conversions/internal/urlgen"
)

// originalAlias addresses the original file in {conversion} route segments.
const originalAlias = "original"

func writeJSON(w http.ResponseWriter, v any) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatus writes v with the given status code.
func writeJSONStatus(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatus(w, statusCode, map[string]string{"error": message})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, media.ErrNotFound), errors.Is(err, filesystem.ErrFileNotFound),
		errors.Is(err, conversion.ErrUnknownConversion):
		return http.StatusNotFound
	case errors.Is(err, urlgen.ErrTemporaryURLUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, conversion.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, manipulator.ErrSourceUnavailable):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, filesystem.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError logs server-side failures and writes err as JSON.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Error("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		logging.Debug("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSONError(w, err.Error(), status)
}

// mediaID parses the {id} route variable.
func mediaID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// conversionName returns the {conversion} route variable with the original
// alias mapped to "".
func conversionName(r *http.Request) string {
	name := mux.Vars(r)["conversion"]
	if name == originalAlias || name == media.OriginalResponsiveKey {
		return ""
	}
	return name
}

// splitList parses comma separated query values, dropping blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func queryBool(r *http.Request, key string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(key))
	return err == nil && b
}

// loadMedia fetches the {id} record, writing the error response itself
// when it fails.
func (h *Handlers) loadMedia(w http.ResponseWriter, r *http.Request) (*media.Media, bool) {
	id, ok := mediaID(r)
	if !ok {
		writeJSONError(w, "invalid media id", http.StatusBadRequest)
		return nil, false
	}
	m, err := h.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return m, true
}
