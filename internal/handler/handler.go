package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/honeynil/LibraryAuthService/internal/infrastructure/auth"
	service "github.com/honeynil/LibraryAuthService/internal/services"
	pkgerrors "github.com/honeynil/LibraryAuthService/pkg/errors"
)

const refreshCookieName = "refresh_token"

type Handler struct {
	service      service.AuthService
	refreshTTL   time.Duration
	cookieSecure bool
	validator    requestValidator
}

func NewHandler(s service.AuthService, refreshTTL time.Duration, cookieSecure bool) *Handler {
	return &Handler{service: s, refreshTTL: refreshTTL, cookieSecure: cookieSecure}
}

// envelope is the body shape of every auth response.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Reason  string      `json:"reason,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
	FullName string `json:"full_name" validate:"max=200"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RegisterCredentialRoutes registers the routes that accept a password.
// They sit behind the stricter rate limit.
func (h *Handler) RegisterCredentialRoutes(r *mux.Router) {
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
}

func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/refresh", h.Refresh).Methods(http.MethodPost)
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/me", h.Me).Methods(http.MethodGet)
	r.HandleFunc("/verify", h.Verify).Methods(http.MethodGet)
}

// RegisterAdminRoutes expects AuthMiddleware and AdminOnly in front.
func (h *Handler) RegisterAdminRoutes(r *mux.Router) {
	r.HandleFunc("/users/{id:[0-9]+}", h.GetUser).Methods(http.MethodGet)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Username and password are required", nil)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Username and password are required", fieldErrors(err))
		return
	}

	pair, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)
	h.writeJSON(w, http.StatusOK, "Login successful", pair)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Username, email, and password are required", nil)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.writeFail(w, http.StatusBadRequest, "Validation error", fieldErrors(err))
		return
	}

	pair, err := h.service.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.setRefreshCookie(w, pair.RefreshToken)
	h.writeJSON(w, http.StatusCreated, "User registered successfully", pair)
}

// Refresh accepts the refresh token from the JSON body or the cookie set at login.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeFail(w, http.StatusBadRequest, "Refresh token is required", nil)
		return
	}
	if req.RefreshToken == "" {
		if c, err := r.Cookie(refreshCookieName); err == nil {
			req.RefreshToken = c.Value
		}
	}
	if req.RefreshToken == "" {
		h.writeFail(w, http.StatusBadRequest, "Refresh token is required", nil)
		return
	}

	access, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, "Access token refreshed successfully", map[string]interface{}{
		"access_token": access,
		"token_type":   "Bearer",
	})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeFail(w, http.StatusUnauthorized, "Token is missing", nil)
		return
	}

	if err := h.service.Logout(r.Context(), claims.UserID); err != nil {
		h.writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	h.writeJSON(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeFail(w, http.StatusUnauthorized, "Token is missing", nil)
		return
	}

	user, err := h.service.CurrentUser(r.Context(), claims.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "User information retrieved successfully", user.View())
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeFail(w, http.StatusUnauthorized, "Token is missing", nil)
		return
	}
	h.writeJSON(w, http.StatusOK, "Token is valid", map[string]interface{}{
		"valid":    true,
		"user_id":  claims.UserID,
		"username": claims.Username,
		"is_admin": claims.IsAdmin,
	})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.writeFail(w, http.StatusBadRequest, "Invalid user id", nil)
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, "User information retrieved successfully", user.View())
}

func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     "/api/auth",
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// writeError maps service errors to a status and a fixed client message.
// Internal causes are logged, never rendered.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pkgerrors.ErrInvalidInput):
		h.writeFail(w, http.StatusBadRequest, "Invalid request", nil)
	case errors.Is(err, pkgerrors.ErrDuplicateUsername):
		h.writeFail(w, http.StatusConflict, "Username already exists", nil)
	case errors.Is(err, pkgerrors.ErrDuplicateEmail):
		h.writeFail(w, http.StatusConflict, "Email already exists", nil)
	case errors.Is(err, pkgerrors.ErrInvalidCredentials):
		h.writeFail(w, http.StatusUnauthorized, "Invalid username or password", nil)
	case errors.Is(err, pkgerrors.ErrTokenExpired),
		errors.Is(err, pkgerrors.ErrTokenMalformed),
		errors.Is(err, pkgerrors.ErrTokenWrongType),
		errors.Is(err, pkgerrors.ErrTokenRevoked),
		errors.Is(err, pkgerrors.ErrUserInactiveOrMissing):
		h.writeJSONBody(w, http.StatusUnauthorized, envelope{
			Message: "Invalid or expired refresh token",
			Reason:  pkgerrors.ClientReason(err),
		})
	case errors.Is(err, pkgerrors.ErrUserNotFound):
		h.writeFail(w, http.StatusNotFound, "User not found", nil)
	case errors.Is(err, pkgerrors.ErrRateLimited):
		h.writeFail(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
	default:
		slog.Error("request failed", "error", err)
		h.writeFail(w, http.StatusInternalServerError, "Internal server error", nil)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, message string, data interface{}) {
	h.writeJSONBody(w, status, envelope{Success: true, Message: message, Data: data})
}

func (h *Handler) writeFail(w http.ResponseWriter, status int, message string, fields map[string]string) {
	body := envelope{Message: message}
	if len(fields) > 0 {
		body.Errors = fields
	}
	h.writeJSONBody(w, status, body)
}

func (h *Handler) writeJSONBody(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
