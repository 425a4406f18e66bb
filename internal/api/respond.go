package api

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/isuku/isuku-dispatch/internal/matching"
	"github.com/isuku/isuku-dispatch/internal/store"
)

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, RequestID: requestIDFrom(r.Context())})
}

// fail maps a store or matching error onto a response. Unknown errors are
// logged and reported as 500 without detail.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case eris.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not found")
	case eris.Is(err, store.ErrPickupAssigned):
		writeError(w, r, http.StatusConflict, "pickup already assigned")
	case eris.Is(err, store.ErrCollectorUnavailable):
		writeError(w, r, http.StatusConflict, "collector unavailable")
	case eris.Is(err, matching.ErrMissingLocation):
		writeError(w, r, http.StatusBadRequest, "location not set")
	default:
		s.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, eris.Errorf("invalid id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// radiusParam reads max_distance, falling back to def.
func radiusParam(r *http.Request, def float64) (float64, error) {
	raw := r.URL.Query().Get("max_distance")
	if raw == "" {
		return def, nil
	}
	km, err := strconv.ParseFloat(raw, 64)
	if err != nil || km <= 0 || math.IsNaN(km) || math.IsInf(km, 0) {
		return 0, eris.Errorf("max_distance must be a positive number, got %q", raw)
	}
	return km, nil
}

func validCoords(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
