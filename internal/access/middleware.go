package access

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storehub-platform/storehub/internal/authz"
	"github.com/storehub-platform/storehub/internal/observability"
	"github.com/storehub-platform/storehub/internal/platform/httpx"
	"github.com/storehub-platform/storehub/internal/shared"
)

// Guard provides route middleware that resolves the acting user's effective
// permissions in the target tenant. Every failure denies: a guard that cannot
// decide answers no.
type Guard struct {
	service *Service
	metrics *observability.Metrics
}

// NewGuard builds Guard instance.
func NewGuard(service *Service, metrics *observability.Metrics) *Guard {
	return &Guard{service: service, metrics: metrics}
}

// RequirePermission admits only callers whose resolved permissions grant the
// capability.
func (g *Guard) RequirePermission(capability authz.Capability) func(http.Handler) http.Handler {
	return g.require(func(decision authz.Decision) bool {
		return decision.Can(capability)
	})
}

// RequireLevel admits only callers whose resolved level meets the threshold.
func (g *Guard) RequireLevel(level int) func(http.Handler) http.Handler {
	return g.require(func(decision authz.Decision) bool {
		return authz.MeetsLevel(decision.Level, level)
	})
}

func (g *Guard) require(allowed func(authz.Decision) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing caller identity")
				return
			}
			tenantID := tenantFromRequest(r)
			if tenantID == "" {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "tenant not specified")
				return
			}

			decision, err := g.service.EffectivePermissions(r.Context(), tenantID, actor.UserID)
			if err != nil {
				g.respondResolveError(w, err)
				return
			}
			if !allowed(decision) {
				g.metrics.ObserveDecision("denied")
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
				return
			}
			g.metrics.ObserveDecision("granted")
			ctx := shared.ContextWithAuthority(r.Context(), shared.Authority{
				UserID: actor.UserID,
				Level:  decision.Level,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g *Guard) respondResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authz.ErrMembershipNotActive):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "no active membership in tenant")
	case errors.Is(err, authz.ErrRoleNotFound), errors.Is(err, authz.ErrInheritanceCycle):
		// Fail closed on integrity faults.
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "authorization unavailable")
	default:
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func tenantFromRequest(r *http.Request) string {
	if tenantID := chi.URLParam(r, "tenantID"); tenantID != "" {
		return tenantID
	}
	return r.URL.Query().Get("tenant_id")
}
