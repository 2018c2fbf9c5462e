package http

import (
	"log/slog"
	"net/http"

	"github.com/Mukulsharnagat01/Collegedunia/internal/service"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/httputil"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/middleware"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/validator"
)

// AdminHandler serves the admin back-office user endpoints. Every route is
// mounted behind the admin role gate.
type AdminHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(svc *service.AuthService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: svc, logger: logger}
}

// GetUser handles GET /admin/users/{id}
func (h *AdminHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathUUID(w, r, "id")
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, user)
}

// SetRole handles PUT /admin/users/{id}/role
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathUUID(w, r, "id")
	if !ok {
		return
	}

	var req service.SetRoleInput
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	user, err := h.service.SetRole(r.Context(), middleware.UserIDFromContext(r.Context()), id.String(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, user)
}

// RevokeSessions handles POST /admin/users/{id}/sessions/revoke
func (h *AdminHandler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.PathUUID(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.RevokeSessions(r.Context(), middleware.UserIDFromContext(r.Context()), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, OKResponse{OK: true})
}
