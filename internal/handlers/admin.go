package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

// AdminHandlers exposes staff views across every customer's orders.
type AdminHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminHandlers {
	return &AdminHandlers{authn: authn, orders: orders}
}

// Routes registers the /admin endpoints. Every route requires the admin role.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Use(auth.RequireRole(auth.RoleAdmin))
	r.Get("/orders", h.listOrders)
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	orders, err := h.orders.ListAll(ctx, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayloads(orders))
}
