// Package projects serves project and service administration endpoints.
package projects

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/good-yellow-bee/pulsewatch/internal/api/middleware"
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

func jsonNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

type Handler struct {
	store storage.Storage
}

func NewHandler(store storage.Storage) *Handler {
	return &Handler{store: store}
}

type projectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// createdProject carries the plaintext ingest key. It is returned exactly
// once at creation or rotation; only the hash is stored.
type createdProject struct {
	*models.Project
	APIKey string `json:"api_key"`
}

// List returns all projects.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.Projects().List(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "listing projects failed")
		return
	}
	jsonOK(w, list)
}

// Get returns one project.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	project, ok := h.lookup(w, r)
	if !ok {
		return
	}
	jsonOK(w, project)
}

// Create stores a new project and returns its ingest API key.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "name is required")
		return
	}

	key, err := generateAPIKey()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "generating API key failed")
		return
	}

	project := models.NewProject(req.Name, req.Description)
	project.ID = uuid.New().String()
	project.APIKeyHash = middleware.HashAPIKey(key)

	if err := h.store.Projects().Create(r.Context(), project); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "creating project failed")
		return
	}
	jsonCreated(w, createdProject{Project: project, APIKey: key})
}

// Update changes a project's name and description.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	project, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req projectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "name is required")
		return
	}

	project.Name = req.Name
	project.Description = req.Description
	project.UpdatedAt = time.Now()
	if err := h.store.Projects().Update(r.Context(), project); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "updating project failed")
		return
	}
	jsonOK(w, project)
}

// RotateAPIKey replaces the ingest key and returns the new plaintext once.
// The previous key stops working immediately.
func (h *Handler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	project, ok := h.lookup(w, r)
	if !ok {
		return
	}

	key, err := generateAPIKey()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "generating API key failed")
		return
	}

	project.APIKeyHash = middleware.HashAPIKey(key)
	project.UpdatedAt = time.Now()
	if err := h.store.Projects().Update(r.Context(), project); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "rotating API key failed")
		return
	}
	jsonOK(w, createdProject{Project: project, APIKey: key})
}

type serviceRequest struct {
	Name string `json:"name"`
}

// ListServices returns the project's services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	project, ok := h.lookup(w, r)
	if !ok {
		return
	}
	services, err := h.store.Services().ListByProject(r.Context(), project.ID)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "listing services failed")
		return
	}
	jsonOK(w, services)
}

// CreateService registers a monitored service under the project.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	project, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "name is required")
		return
	}

	svc := models.NewService(project.ID, req.Name)
	svc.ID = uuid.New().String()
	if err := h.store.Services().Create(r.Context(), svc); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "creating service failed")
		return
	}
	jsonCreated(w, svc)
}

// RemoveService detaches a service, disabling its alert rules. Historical
// incidents and telemetry are kept.
func (h *Handler) RemoveService(w http.ResponseWriter, r *http.Request) {
	project, ok := h.lookup(w, r)
	if !ok {
		return
	}

	serviceID := chi.URLParam(r, "serviceID")
	svc, err := h.store.Services().GetByID(r.Context(), serviceID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && svc.ProjectID != project.ID) {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "service not found")
		return
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "loading service failed")
		return
	}

	if err := h.store.Services().Remove(r.Context(), serviceID); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "removing service failed")
		return
	}
	jsonNoContent(w)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*models.Project, bool) {
	projectID := chi.URLParam(r, "projectID")
	project, err := h.store.Projects().GetByID(r.Context(), projectID)
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "project not found")
		return nil, false
	}
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "loading project failed")
		return nil, false
	}
	return project, true
}

func generateAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading randomness: %w", err)
	}
	return "pw_" + hex.EncodeToString(buf), nil
}
