package access

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storehub-platform/storehub/internal/authz"
	"github.com/storehub-platform/storehub/internal/platform/httpx"
	"github.com/storehub-platform/storehub/internal/shared"
)

// Handler exposes permission resolution endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers resolution routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/permissions/effective", h.effective)
}

// effective returns the caller's resolved decision in the tenant named by
// the tenant_id query parameter.
func (h *Handler) effective(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing caller identity")
		return
	}
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "tenant_id required")
		return
	}

	decision, err := h.service.EffectivePermissions(r.Context(), tenantID, actor.UserID)
	switch {
	case errors.Is(err, authz.ErrMembershipNotActive):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "no active membership in tenant")
		return
	case errors.Is(err, authz.ErrRoleNotFound), errors.Is(err, authz.ErrInheritanceCycle):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "authorization unavailable")
		return
	case err != nil:
		h.logger.Error("resolve effective permissions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, decision)
}
