package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/internal/service"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/httputil"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/middleware"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/validator"
)

// AuthHandler handles HTTP requests for auth endpoints.
type AuthHandler struct {
	service *service.AuthService
	cookies CookieConfig
	logger  *slog.Logger
}

// NewAuthHandler creates a new auth HTTP handler.
func NewAuthHandler(svc *service.AuthService, cookies CookieConfig, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: svc, cookies: cookies, logger: logger}
}

// --- Response types ---

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	User                 *domain.User `json:"user"`
	AccessToken          string       `json:"accessToken"`
	AccessTokenExpiresAt time.Time    `json:"accessTokenExpiresAt"`
}

// RefreshResponse is returned by refresh.
type RefreshResponse struct {
	AccessToken          string    `json:"accessToken"`
	AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt"`
}

// OKResponse acknowledges an operation with no other result.
type OKResponse struct {
	OK bool `json:"ok"`
}

// --- Handlers ---

// Signup handles POST /auth/signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupInput
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.Signup(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeAuthResult(w, http.StatusCreated, result)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginInput
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.Login(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.writeAuthResult(w, http.StatusOK, result)
}

// Refresh handles POST /auth/refresh. The refresh token is read from the
// cookie only; a body is ignored.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Refresh(r.Context(), readRefreshCookie(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if result.RefreshToken != "" {
		h.cookies.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiresAt)
	}

	httputil.WriteData(w, http.StatusOK, RefreshResponse{
		AccessToken:          result.AccessToken,
		AccessTokenExpiresAt: result.AccessExpiresAt,
	})
}

// Logout handles POST /auth/logout. It always succeeds and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), readRefreshCookie(r))
	h.cookies.clearRefreshCookie(w)
	httputil.WriteData(w, http.StatusOK, OKResponse{OK: true})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.Me(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, user)
}

// UpdateMe handles PUT /auth/me
func (h *AuthHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProfileInput
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), middleware.UserIDFromContext(r.Context()), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, user)
}

// ChangePassword handles POST /auth/change-password. Every session of the
// user is revoked, so the caller's cookie is cleared too.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req service.ChangePasswordInput
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.ChangePassword(r.Context(), middleware.UserIDFromContext(r.Context()), req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.cookies.clearRefreshCookie(w)
	httputil.WriteData(w, http.StatusOK, OKResponse{OK: true})
}

func (h *AuthHandler) writeAuthResult(w http.ResponseWriter, status int, result *service.AuthResult) {
	h.cookies.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiresAt)
	httputil.WriteData(w, status, AuthResponse{
		User:                 result.User,
		AccessToken:          result.AccessToken,
		AccessTokenExpiresAt: result.AccessExpiresAt,
	})
}

