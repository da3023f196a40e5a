package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/services"
)

const (
	maxOrderBodySize       int64 = 32 * 1024
	maxOrderUpdateBodySize int64 = 8 * 1024
)

type createOrderRequest struct {
	OrderItems      []createOrderItemRequest `json:"orderItems"`
	ShippingAddress shippingAddressPayload   `json:"shippingAddress"`
	PaymentMethod   string                   `json:"paymentMethod"`
}

type createOrderItemRequest struct {
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
}

type payOrderRequest struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
}

type updateOrderStatusRequest struct {
	Status         string  `json:"status"`
	TrackingNumber *string `json:"trackingNumber"`
	Notes          *string `json:"notes"`
}

// OrderHandlers exposes order placement, reads, payment confirmation and fulfilment updates.
type OrderHandlers struct {
	authn         *auth.Authenticator
	orders        services.OrderService
	idempotency   func(http.Handler) http.Handler
	createLimiter rateLimiter
}

// OrderOption customises OrderHandlers.
type OrderOption func(*OrderHandlers)

// WithOrderIdempotency wraps order creation with the idempotency middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithOrderCreateRateLimit throttles order creation per caller.
func WithOrderCreateRateLimit(perMinute int, clock func() time.Time) OrderOption {
	return func(h *OrderHandlers) {
		h.createLimiter = newKeyedRateLimiter(perMinute, 0, clock)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}

	create := []func(http.Handler) http.Handler{rateLimitMiddleware(h.createLimiter, userOrIPKey)}
	if h.idempotency != nil {
		create = append(create, h.idempotency)
	}
	r.With(create...).Post("/", h.createOrder)
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
	r.Put("/{orderID}/pay", h.payOrder)
	r.With(auth.RequireRole(auth.RoleAdmin)).Put("/{orderID}/status", h.updateStatus)
	r.Get("/{orderID}/invoice", h.getInvoice)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
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

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, maxOrderBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	cmd := services.CreateOrderCommand{
		Actor: actor,
		Items: make([]services.OrderItemInput, 0, len(req.OrderItems)),
		ShippingAddress: services.ShippingAddress{
			Street:  req.ShippingAddress.Street,
			City:    req.ShippingAddress.City,
			State:   req.ShippingAddress.State,
			ZipCode: req.ShippingAddress.ZipCode,
			Country: req.ShippingAddress.Country,
		},
		PaymentMethod: req.PaymentMethod,
	}
	for _, item := range req.OrderItems {
		cmd.Items = append(cmd.Items, services.OrderItemInput{
			ProductID: strings.TrimSpace(item.Product),
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.Create(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildOrderPayload(order))
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
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

	orders, err := h.orders.ListMine(ctx, actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayloads(orders))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.orders.Get(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")), actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) payOrder(w http.ResponseWriter, r *http.Request) {
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

	var req payOrderRequest
	if err := httpx.DecodeJSON(r, maxOrderUpdateBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.ConfirmPayment(ctx, services.ConfirmPaymentCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Actor:   actor,
		Receipt: services.PaymentResult{
			ID:           strings.TrimSpace(req.ID),
			Status:       strings.TrimSpace(req.Status),
			UpdateTime:   strings.TrimSpace(req.UpdateTime),
			EmailAddress: strings.TrimSpace(req.EmailAddress),
		},
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
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

	var req updateOrderStatusRequest
	if err := httpx.DecodeJSON(r, maxOrderUpdateBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID:        strings.TrimSpace(chi.URLParam(r, "orderID")),
		Actor:          actor,
		Status:         req.Status,
		TrackingNumber: req.TrackingNumber,
		Notes:          req.Notes,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func (h *OrderHandlers) getInvoice(w http.ResponseWriter, r *http.Request) {
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

	invoice, err := h.orders.Invoice(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")), actor)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, invoice)
}
