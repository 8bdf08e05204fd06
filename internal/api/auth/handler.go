package auth

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/good-yellow-bee/pulsewatch/internal/metrics"
	"github.com/good-yellow-bee/pulsewatch/internal/storage"
)

// Handler handles authentication endpoints.
type Handler struct {
	storage        storage.Storage
	jwtService     *JWTService
	lockoutTracker *LockoutTracker
}

// NewHandler creates a new auth handler.
func NewHandler(store storage.Storage, jwt *JWTService, lockout *LockoutTracker) *Handler {
	return &Handler{
		storage:        store,
		jwtService:     jwt,
		lockoutTracker: lockout,
	}
}

// Response helpers local to this package to avoid an import cycle with api.

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

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeUnauthorized  = "UNAUTHORIZED"
	errCodeAccountLocked = "ACCOUNT_LOCKED"
	errCodeInternalError = "INTERNAL_ERROR"
)

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// Login authenticates a user and issues an access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "email and password required")
		return
	}

	if h.lockoutTracker.IsLocked(req.Email) {
		remaining := h.lockoutTracker.RemainingLockoutTime(req.Email)
		log.Printf("login blocked: account %s locked for %v", req.Email, remaining)
		jsonError(w, http.StatusTooManyRequests, errCodeAccountLocked,
			"account temporarily locked due to too many failed attempts")
		return
	}

	user, err := h.storage.Users().GetByEmail(r.Context(), req.Email)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("login: look up user %s: %v", req.Email, err)
		}
		h.failLogin(w, req.Email)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		h.failLogin(w, req.Email)
		return
	}

	token, err := h.jwtService.GenerateToken(user)
	if err != nil {
		log.Printf("login: generate token for %s: %v", user.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	h.lockoutTracker.RecordSuccess(req.Email)
	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()

	jsonOK(w, LoginResponse{
		AccessToken: token,
		ExpiresIn:   h.jwtService.TTLSeconds(),
		TokenType:   "Bearer",
	})
}

// failLogin records the failure and answers with the same message for
// unknown accounts and wrong passwords.
func (h *Handler) failLogin(w http.ResponseWriter, email string) {
	metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
	if h.lockoutTracker.RecordFailure(email) {
		jsonError(w, http.StatusTooManyRequests, errCodeAccountLocked,
			"account temporarily locked due to too many failed attempts")
		return
	}
	jsonError(w, http.StatusUnauthorized, errCodeUnauthorized, "invalid credentials")
}
