// Package incidents serves the incident lifecycle endpoints.
package incidents

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/pulsewatch/internal/api/middleware"
	"github.com/good-yellow-bee/pulsewatch/internal/incident"
	"github.com/good-yellow-bee/pulsewatch/internal/models"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeNotFound      = "NOT_FOUND"
	errCodeConflict      = "CONFLICT"
	errCodeInternalError = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

func jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

type Handler struct {
	incidents *incident.Service
}

func NewHandler(svc *incident.Service) *Handler {
	return &Handler{incidents: svc}
}

// List returns a project's incidents, optionally filtered by query params.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	q := r.URL.Query()

	filter := storage.IncidentFilter{
		Status:    models.IncidentStatus(q.Get("status")),
		Severity:  models.Severity(q.Get("severity")),
		ServiceID: q.Get("service_id"),
		RuleID:    q.Get("rule_id"),
	}
	if filter.Status != "" && !models.ValidStatus(filter.Status) {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid status filter")
		return
	}
	if filter.Severity != "" && !models.ValidSeverity(filter.Severity) {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid severity filter")
		return
	}

	list, err := h.incidents.List(r.Context(), projectID, filter)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "listing incidents failed")
		return
	}
	jsonOK(w, list)
}

// Get returns one incident.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	inc, err := h.incidents.Get(r.Context(), chi.URLParam(r, "projectID"), chi.URLParam(r, "incidentID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, inc)
}

type statusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus drives the incident state machine.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}
	next := models.IncidentStatus(req.Status)
	if !models.ValidStatus(next) {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid status")
		return
	}

	inc, err := h.incidents.UpdateStatus(r.Context(),
		chi.URLParam(r, "projectID"), chi.URLParam(r, "incidentID"), next)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, inc)
}

type severityRequest struct {
	Severity string `json:"severity"`
}

// UpdateSeverity re-classifies an incident.
func (h *Handler) UpdateSeverity(w http.ResponseWriter, r *http.Request) {
	var req severityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}
	severity := models.Severity(req.Severity)
	if !models.ValidSeverity(severity) {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid severity")
		return
	}

	inc, err := h.incidents.ChangeSeverity(r.Context(),
		chi.URLParam(r, "projectID"), chi.URLParam(r, "incidentID"), severity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, inc)
}

type noteRequest struct {
	Content string `json:"content"`
}

// AddNote attaches an immutable note authored by the current user.
func (h *Handler) AddNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "content is required")
		return
	}

	note, err := h.incidents.AddNote(r.Context(),
		chi.URLParam(r, "projectID"), chi.URLParam(r, "incidentID"),
		middleware.GetUserID(r.Context()), req.Content)
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonCreated(w, note)
}

// Notes lists an incident's notes in creation order.
func (h *Handler) Notes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.incidents.Notes(r.Context(),
		chi.URLParam(r, "projectID"), chi.URLParam(r, "incidentID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, notes)
}

// Timeline lists an incident's events in append order.
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	events, err := h.incidents.Timeline(r.Context(),
		chi.URLParam(r, "projectID"), chi.URLParam(r, "incidentID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	jsonOK(w, events)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var transition *models.TransitionError
	switch {
	case errors.Is(err, incident.ErrNotFound):
		jsonError(w, http.StatusNotFound, errCodeNotFound, "incident not found")
	case errors.As(err, &transition):
		jsonError(w, http.StatusConflict, errCodeConflict, transition.Error())
	default:
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "incident operation failed")
	}
}
