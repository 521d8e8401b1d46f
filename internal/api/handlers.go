// Lumigrid - Smart Streetlight Telemetry and Detection Dashboard
// Copyright 2026 Lumigrid Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lumigrid/lumigrid

package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/lumigrid/lumigrid/internal/detection"
	"github.com/lumigrid/lumigrid/internal/logging"
)

const maxRequestBodySize = 64 * 1024

var validate = validator.New()

// apiError is the error payload shape.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// response is the envelope for all JSON endpoints.
type response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *apiError   `json:"error,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, resp *response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Err(err).Msg("failed to encode response")
	}
}

func respondData(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, &response{Success: true, Data: data})
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, &response{
		Success: false,
		Error:   &apiError{Code: code, Message: message},
	})
}

// healthLive reports process liveness.
func (rt *Router) healthLive(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(rt.started).Seconds()),
	})
}

// healthReady reports readiness including the upstream link state. The
// server is ready to serve cached state even while the link is down, so
// this stays 200; the connected flag is informational.
func (rt *Router) healthReady(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"connected": rt.store.Connected(),
		"clients":   rt.hub.ClientCount(),
	})
}

// getDashboard returns the full dashboard view.
func (rt *Router) getDashboard(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, rt.store.View())
}

// listStreetlights returns the projected entity states.
func (rt *Router) listStreetlights(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, rt.store.View().Entities)
}

// getStreetlight returns one projected entity.
func (rt *Router) getStreetlight(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entity, ok := rt.store.Entity(id)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "unknown streetlight "+id)
		return
	}
	respondData(w, http.StatusOK, entity)
}

// getSnapshot serves the latest camera frame, or 204 when none has
// arrived yet so the dashboard can render its placeholder.
func (rt *Router) getSnapshot(w http.ResponseWriter, _ *http.Request) {
	frame, updatedAt, ok := rt.frames.Read()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.Header().Set("Last-Modified", updatedAt.Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(frame); err != nil {
		logging.Err(err).Msg("failed to write snapshot frame")
	}
}

// listAlerts returns the alert window, newest first.
func (rt *Router) listAlerts(w http.ResponseWriter, _ *http.Request) {
	respondData(w, http.StatusOK, rt.reconciler.Alerts())
}

// getAlert returns one alert by ID.
func (rt *Router) getAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	alert, ok := rt.reconciler.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "unknown alert "+id)
		return
	}
	respondData(w, http.StatusOK, alert)
}

// updateAlertRequest is the PATCH body for alert updates.
type updateAlertRequest struct {
	Status      *string `json:"status" validate:"omitempty,oneof=active investigating resolved"`
	Severity    *string `json:"severity" validate:"omitempty,oneof=critical high medium low"`
	Description *string `json:"description" validate:"omitempty,max=1024"`
}

// updateAlert applies a partial update to an alert.
func (rt *Router) updateAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateAlertRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	upd := detection.Update{}
	if req.Status != nil {
		s := detection.Status(*req.Status)
		upd.Status = &s
	}
	if req.Severity != nil {
		s := detection.Severity(*req.Severity)
		upd.Severity = &s
	}
	upd.Description = req.Description

	alert, err := rt.reconciler.Update(id, upd)
	if err != nil {
		if errors.Is(err, detection.ErrAlertNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "unknown alert "+id)
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_update", err.Error())
		return
	}

	respondData(w, http.StatusOK, alert)
}

// dispatchAlertRequest is the POST body for responder dispatch. The body
// is optional; an absent or empty action selects the default unit.
type dispatchAlertRequest struct {
	Action string `json:"action" validate:"omitempty,max=64"`
}

// dispatchAlert requests responders for an alert.
func (rt *Router) dispatchAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dispatchAlertRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	alert, err := rt.reconciler.Dispatch(r.Context(), id, req.Action)
	switch {
	case err == nil:
		respondData(w, http.StatusOK, alert)
	case errors.Is(err, detection.ErrAlertNotFound):
		respondError(w, http.StatusNotFound, "not_found", "unknown alert "+id)
	case errors.Is(err, detection.ErrNotDispatchable):
		respondError(w, http.StatusConflict, "not_dispatchable", err.Error())
	default:
		respondError(w, http.StatusBadGateway, "dispatch_failed", err.Error())
	}
}

// decodeBody reads and decodes a JSON request body with a size cap. An
// empty body leaves dst untouched.
func decodeBody(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}
