// Package rules serves alert rule management endpoints.
package rules

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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
	store storage.Storage
}

func NewHandler(store storage.Storage) *Handler {
	return &Handler{store: store}
}

type ruleRequest struct {
	ServiceID       string   `json:"service_id"`
	Name            string   `json:"name"`
	MetricName      string   `json:"metric_name"`
	Aggregation     string   `json:"aggregation"`
	Operator        string   `json:"operator"`
	Threshold       float64  `json:"threshold"`
	WindowMinutes   int      `json:"window_minutes"`
	DurationMinutes int      `json:"duration_minutes"`
	Severity        string   `json:"severity"`
	NotifyChannels  []string `json:"notify_channels"`
}

func (req *ruleRequest) toModel(projectID string) *models.AlertRule {
	rule := models.NewAlertRule(projectID, req.ServiceID, req.Name, req.MetricName)
	rule.Aggregation = models.AggregationKind(req.Aggregation)
	rule.Operator = models.CompareOp(req.Operator)
	rule.Threshold = req.Threshold
	rule.WindowMinutes = req.WindowMinutes
	rule.DurationMinutes = req.DurationMinutes
	rule.Severity = models.Severity(req.Severity)
	if req.NotifyChannels != nil {
		rule.NotifyChannels = req.NotifyChannels
	}
	return rule
}

// List returns every rule in the project.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	rules, err := h.store.Rules().ListByProject(r.Context(), projectID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "listing rules failed")
		return
	}
	jsonOK(w, rules)
}

// Get returns a single rule, scoped to the project.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.lookup(w, r)
	if !ok {
		return
	}
	jsonOK(w, rule)
}

// Create validates and stores a new rule.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}

	rule := req.toModel(projectID)
	rule.ID = uuid.New().String()
	if err := rule.Validate(); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	if !h.serviceInProject(r, projectID, rule.ServiceID) {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "service does not belong to project")
		return
	}

	if err := h.store.Rules().Create(r.Context(), rule); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "creating rule failed")
		return
	}
	jsonCreated(w, rule)
}

// Update replaces a rule's definition.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	existing, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}

	rule := req.toModel(existing.ProjectID)
	rule.ID = existing.ID
	rule.Enabled = existing.Enabled
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()
	if err := rule.Validate(); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}
	if !h.serviceInProject(r, rule.ProjectID, rule.ServiceID) {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "service does not belong to project")
		return
	}

	if err := h.store.Rules().Update(r.Context(), rule); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "updating rule failed")
		return
	}
	jsonOK(w, rule)
}

type enableRequest struct {
	Enabled bool `json:"enabled"`
}

// SetEnabled toggles a rule on or off without touching its definition.
func (h *Handler) SetEnabled(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req enableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}

	if err := h.store.Rules().SetEnabled(r.Context(), rule.ID, req.Enabled); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "updating rule failed")
		return
	}
	rule.Enabled = req.Enabled
	jsonOK(w, rule)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*models.AlertRule, bool) {
	projectID := chi.URLParam(r, "projectID")
	ruleID := chi.URLParam(r, "ruleID")

	rule, err := h.store.Rules().GetByID(r.Context(), ruleID)
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "rule not found")
		return nil, false
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "loading rule failed")
		return nil, false
	}
	if rule.ProjectID != projectID {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "rule not found")
		return nil, false
	}
	return rule, true
}

func (h *Handler) serviceInProject(r *http.Request, projectID, serviceID string) bool {
	svc, err := h.store.Services().GetByID(r.Context(), serviceID)
	if err != nil {
		return false
	}
	return svc.ProjectID == projectID
}
