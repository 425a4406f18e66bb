package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/isuku/isuku-dispatch/internal/matching"
	"github.com/isuku/isuku-dispatch/internal/model"
)

type nearbyCollectorsResponse struct {
	Count   int                       `json:"count"`
	Results []matching.CollectorMatch `json:"results"`
}

type nearbyPickupsResponse struct {
	Count   int                    `json:"count"`
	Results []matching.PickupMatch `json:"results"`
}

// nearbyCollectors handles GET /api/v1/collectors/nearby?lat=&lon=&max_distance=.
func (s *Server) nearbyCollectors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawLat, rawLon := q.Get("lat"), q.Get("lon")
	if rawLat == "" || rawLon == "" {
		writeError(w, r, http.StatusBadRequest, "lat and lon are required")
		return
	}
	lat, errLat := strconv.ParseFloat(rawLat, 64)
	lon, errLon := strconv.ParseFloat(rawLon, 64)
	if errLat != nil || errLon != nil || !validCoords(lat, lon) {
		writeError(w, r, http.StatusBadRequest, "lat and lon must be valid decimal degrees")
		return
	}
	radius, err := radiusParam(r, s.defaultRadius)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	matches, err := s.matcher.FindNearbyCollectors(r.Context(), lat, lon, radius)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nearbyCollectorsResponse{Count: len(matches), Results: matches})
}

type createCollectorRequest struct {
	Name            string   `json:"name"`
	PhoneNumber     string   `json:"phone_number"`
	LicenseNumber   string   `json:"license_number"`
	VehicleNumber   string   `json:"vehicle_number"`
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	ServiceRadiusKM *float64 `json:"service_radius_km"`
	Available       *bool    `json:"is_available"`
}

// createCollector handles POST /api/v1/collectors.
func (s *Server) createCollector(w http.ResponseWriter, r *http.Request) {
	var req createCollectorRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.PhoneNumber) == "" {
		writeError(w, r, http.StatusBadRequest, "name and phone_number are required")
		return
	}

	c := model.NewCollector(strings.TrimSpace(req.Name), strings.TrimSpace(req.PhoneNumber))
	c.LicenseNumber = strings.TrimSpace(req.LicenseNumber)
	c.VehicleNumber = strings.TrimSpace(req.VehicleNumber)
	if req.Available != nil {
		c.Available = *req.Available
	}
	if req.ServiceRadiusKM != nil {
		if *req.ServiceRadiusKM <= 0 {
			writeError(w, r, http.StatusBadRequest, "service_radius_km must be positive")
			return
		}
		c.ServiceRadiusKM = *req.ServiceRadiusKM
	}
	if msg := applyLocation(&c.Location, req.Latitude, req.Longitude, false); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}

	if err := s.store.CreateCollector(r.Context(), &c); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// updateCollectorLocation handles PUT /api/v1/collectors/{id}/location.
func (s *Server) updateCollectorLocation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req locationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := s.store.GetCollector(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if msg := applyLocation(&c.Location, req.Latitude, req.Longitude, true); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}
	if err := s.store.SaveCollector(r.Context(), c); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type availabilityRequest struct {
	Available *bool `json:"is_available"`
}

// updateCollectorAvailability handles PUT /api/v1/collectors/{id}/availability.
func (s *Server) updateCollectorAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req availabilityRequest
	if err := decodeBody(r, &req); err != nil || req.Available == nil {
		writeError(w, r, http.StatusBadRequest, "is_available is required")
		return
	}

	c, err := s.store.GetCollector(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c.Available = *req.Available
	if err := s.store.SaveCollector(r.Context(), c); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// nearbyPickups handles GET /api/v1/collectors/{id}/pickups/nearby.
func (s *Server) nearbyPickups(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	radius, err := radiusParam(r, s.defaultRadius)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	c, err := s.store.GetCollector(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	matches, err := s.matcher.PickupsNear(r.Context(), c.Location, radius)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nearbyPickupsResponse{Count: len(matches), Results: matches})
}

// applyLocation sets loc from an optional coordinate pair and returns a
// client-facing message when the pair is unusable.
func applyLocation(loc *model.Location, lat, lon *float64, required bool) string {
	switch {
	case lat == nil && lon == nil:
		if required {
			return "latitude and longitude are required"
		}
		return ""
	case lat == nil || lon == nil:
		return "latitude and longitude must be given together"
	case !validCoords(*lat, *lon):
		return "latitude and longitude must be valid decimal degrees"
	}
	loc.SetLocation(*lat, *lon)
	return ""
}
