package roles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/storehub-platform/storehub/internal/authz"
	"github.com/storehub-platform/storehub/internal/platform/httpx"
	"github.com/storehub-platform/storehub/internal/shared"
)

// Guard gates routes on the caller's effective permissions.
type Guard interface {
	RequirePermission(capability authz.Capability) func(http.Handler) http.Handler
}

// Handler manages role administration endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	guard     Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard Guard) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), guard: guard}
}

// MountRoutes registers role administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/roles/templates", h.listTemplates)

	r.Route("/tenants/{tenantID}/roles", func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.CapManageUsers))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{roleID}", h.get)
		r.Patch("/{roleID}", h.update)
		r.Delete("/{roleID}", h.remove)
		r.Post("/{roleID}/deactivate", h.deactivate)
		r.Post("/{roleID}/clone", h.clone)
	})
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"templates": h.service.Templates()})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.List(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Get(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "roleID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	input.TenantID = chi.URLParam(r, "tenantID")
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	role, err := h.service.Create(r.Context(), h.actorID(r), input)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var input UpdateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	role, err := h.service.Update(r.Context(), h.actorID(r), chi.URLParam(r, "tenantID"), chi.URLParam(r, "roleID"), input)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Deactivate(r.Context(), h.actorID(r), chi.URLParam(r, "tenantID"), chi.URLParam(r, "roleID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	err := h.service.Delete(r.Context(), h.actorID(r), chi.URLParam(r, "tenantID"), chi.URLParam(r, "roleID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type cloneRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

func (h *Handler) clone(w http.ResponseWriter, r *http.Request) {
	var input cloneRequest
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	role, err := h.service.Clone(r.Context(), h.actorID(r), chi.URLParam(r, "tenantID"), chi.URLParam(r, "roleID"), input.Name)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) actorID(r *http.Request) string {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.UserID
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidRoleDefinition):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role Definition", err.Error())
	case errors.Is(err, ErrSystemRoleImmutable):
		httpx.Problem(w, http.StatusForbidden, "System Role Immutable", err.Error())
	case errors.Is(err, ErrLevelNotPermitted):
		httpx.Problem(w, http.StatusForbidden, "Level Not Permitted", err.Error())
	case errors.Is(err, ErrNameTaken):
		httpx.Problem(w, http.StatusConflict, "Name Taken", err.Error())
	case errors.Is(err, ErrRoleInUse):
		httpx.Problem(w, http.StatusConflict, "Role In Use", err.Error())
	default:
		h.logger.Error("role administration", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
