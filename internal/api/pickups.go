package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/isuku/isuku-dispatch/internal/model"
	"github.com/isuku/isuku-dispatch/pkg/geocode"
)

type createPickupRequest struct {
	HouseholdID int64    `json:"household_id"`
	Address     string   `json:"address"`
	City        string   `json:"city"`
	Country     string   `json:"country"`
	Notes       string   `json:"notes"`
	QuantityKG  float64  `json:"quantity_kg"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type pickupResponse struct {
	Pickup   *model.PickupRequest `json:"pickup"`
	Assigned bool                 `json:"assigned"`
	// AssignError is set when auto-assignment failed on a store error rather
	// than finding no collector.
	AssignError string `json:"assign_error,omitempty"`
}

// createPickup handles POST /api/v1/pickups. A pickup without coordinates is
// geocoded from its address; a located pickup is auto-assigned straight away.
func (s *Server) createPickup(w http.ResponseWriter, r *http.Request) {
	var req createPickupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HouseholdID <= 0 || strings.TrimSpace(req.Address) == "" {
		writeError(w, r, http.StatusBadRequest, "household_id and address are required")
		return
	}
	if req.QuantityKG < 0 {
		writeError(w, r, http.StatusBadRequest, "quantity_kg must not be negative")
		return
	}

	p := model.NewPickupRequest(req.HouseholdID, strings.TrimSpace(req.Address))
	p.Notes = req.Notes
	p.QuantityKG = req.QuantityKG
	if msg := applyLocation(&p.Location, req.Latitude, req.Longitude, false); msg != "" {
		writeError(w, r, http.StatusBadRequest, msg)
		return
	}
	if !p.HasLocation() && s.geocoder != nil {
		res, err := s.geocoder.Geocode(r.Context(), geocode.AddressInput{
			Street:  p.Address,
			City:    req.City,
			Country: req.Country,
		})
		switch {
		case err != nil:
			s.log.Warn("geocode failed", zap.String("address", p.Address), zap.Error(err))
		case res.Matched:
			p.SetLocation(res.Latitude, res.Longitude)
		}
	}

	if err := s.store.CreatePickup(r.Context(), &p); err != nil {
		s.fail(w, r, err)
		return
	}

	assigned, err := s.matcher.AutoAssignCollector(r.Context(), &p)
	resp := pickupResponse{Pickup: &p, Assigned: assigned}
	if err != nil {
		// The pickup exists; assignment can be retried through auto-assign.
		s.log.Error("auto-assign after create failed", zap.Int64("pickup_id", p.ID), zap.Error(err))
		resp.AssignError = "auto-assign failed, retry with POST /api/v1/pickups/{id}/auto-assign"
	}
	writeJSON(w, http.StatusCreated, resp)
}

// getPickup handles GET /api/v1/pickups/{id}.
func (s *Server) getPickup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.store.GetPickup(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type assignRequest struct {
	CollectorID int64 `json:"collector_id"`
}

type assignResponse struct {
	Pickup     *model.PickupRequest `json:"pickup"`
	Assignment *model.Assignment    `json:"assignment"`
}

// assignPickup handles POST /api/v1/pickups/{id}/assign: a collector taking a
// pickup for themselves.
func (s *Server) assignPickup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req assignRequest
	if err := decodeBody(r, &req); err != nil || req.CollectorID <= 0 {
		writeError(w, r, http.StatusBadRequest, "collector_id is required")
		return
	}

	p, err := s.store.GetPickup(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !p.Status.IsOpen() {
		writeError(w, r, http.StatusConflict, "pickup is "+string(p.Status))
		return
	}
	c, err := s.store.GetCollector(r.Context(), req.CollectorID)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	a, err := s.matcher.AssignCollector(r.Context(), p, *c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, assignResponse{Pickup: p, Assignment: a})
}

// autoAssignPickup handles POST /api/v1/pickups/{id}/auto-assign.
func (s *Server) autoAssignPickup(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := s.store.GetPickup(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if p.Assigned() {
		writeError(w, r, http.StatusConflict, "pickup already assigned")
		return
	}
	if !p.Status.IsOpen() {
		writeError(w, r, http.StatusConflict, "pickup is "+string(p.Status))
		return
	}

	assigned, err := s.matcher.AutoAssignCollector(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pickupResponse{Pickup: p, Assigned: assigned})
}

type assignmentsResponse struct {
	Count       int                `json:"count"`
	Assignments []model.Assignment `json:"assignments"`
}

// listAssignments handles GET /api/v1/pickups/{id}/assignments.
func (s *Server) listAssignments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetPickup(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	history, err := s.store.ListAssignments(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if history == nil {
		history = []model.Assignment{}
	}
	writeJSON(w, http.StatusOK, assignmentsResponse{Count: len(history), Assignments: history})
}
