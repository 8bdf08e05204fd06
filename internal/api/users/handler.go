// Package users serves account management endpoints.
package users

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/pulsewatch/internal/api/auth"
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
	errCodeUnauthorized  = "UNAUTHORIZED"
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

func jsonNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

type Handler struct {
	store storage.Storage
}

func NewHandler(store storage.Storage) *Handler {
	return &Handler{store: store}
}

// Me returns the authenticated user's own account.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.store.Users().GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "user not found")
		return
	}
	jsonOK(w, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword verifies the current password before replacing it.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}

	user, err := h.store.Users().GetByID(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "user not found")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		jsonError(w, http.StatusUnauthorized, errCodeUnauthorized, "current password is incorrect")
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "hashing password failed")
		return
	}
	user.PasswordHash = string(hash)
	user.UpdatedAt = time.Now()
	if err := h.store.Users().Update(r.Context(), user); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "updating user failed")
		return
	}
	jsonNoContent(w)
}

type createRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// Create registers a new account. Admin only.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Name == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "email and name are required")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, err.Error())
		return
	}

	if _, err := h.store.Users().GetByEmail(r.Context(), req.Email); err == nil {
		jsonError(w, http.StatusConflict, errCodeConflict, "email already registered")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "checking email failed")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "hashing password failed")
		return
	}

	user := models.NewUser(req.Email, req.Name, models.ParseRole(req.Role))
	user.ID = uuid.New().String()
	user.PasswordHash = string(hash)
	if err := h.store.Users().Create(r.Context(), user); err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "creating user failed")
		return
	}
	jsonCreated(w, user)
}

// List returns all accounts. Admin only.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.Users().List(r.Context())
	if err != nil {
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "listing users failed")
		return
	}
	jsonOK(w, list)
}
