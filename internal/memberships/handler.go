package memberships

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

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

// Handler manages tenant member endpoints.
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

// MountRoutes registers member administration routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/tenants/{tenantID}/members", func(r chi.Router) {
		r.Use(h.guard.RequirePermission(authz.CapManageUsers))
		r.Get("/", h.list)
		r.Post("/", h.add)
		r.Get("/{userID}", h.get)
		r.Patch("/{userID}", h.patch)
		r.Delete("/{userID}", h.remove)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))

	result, err := h.service.List(r.Context(), chi.URLParam(r, "tenantID"), page, perPage)
	if err != nil {
		h.logger.Error("list members", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Get(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) add(w http.ResponseWriter, r *http.Request) {
	var input AddInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	m, err := h.service.Add(r.Context(), h.actorID(r), chi.URLParam(r, "tenantID"), input)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	var input PatchInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}

	m, err := h.service.Patch(r.Context(), h.actorID(r), chi.URLParam(r, "tenantID"), chi.URLParam(r, "userID"), input)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	err := h.service.Remove(r.Context(), h.actorID(r), chi.URLParam(r, "tenantID"), chi.URLParam(r, "userID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) actorID(r *http.Request) string {
	actor, _ := shared.ActorFromContext(r.Context())
	return actor.UserID
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyMember):
		httpx.Problem(w, http.StatusConflict, "Already A Member", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		httpx.Problem(w, http.StatusConflict, "Invalid Status Transition", err.Error())
	case errors.Is(err, ErrRoleNotAssignable):
		httpx.Problem(w, http.StatusBadRequest, "Role Not Assignable", err.Error())
	case errors.Is(err, ErrRoleNotManageable):
		httpx.Problem(w, http.StatusForbidden, "Role Not Manageable", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("member administration", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
