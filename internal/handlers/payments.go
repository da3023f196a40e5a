package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/services"
)

const (
	maxPaymentIntentBodySize int64 = 4 * 1024
	maxWebhookBodySize       int64 = 256 * 1024
	stripeSignatureHeader          = "Stripe-Signature"
)

type createPaymentIntentRequest struct {
	OrderID string `json:"orderId"`
}

type createPaymentIntentResponse struct {
	ClientSecret string `json:"clientSecret"`
	OrderID      string `json:"orderId"`
}

type webhookAckResponse struct {
	Received bool `json:"received"`
}

// PaymentHandlers issues payment intents for authenticated callers.
type PaymentHandlers struct {
	authn       *auth.Authenticator
	payments    services.PaymentService
	idempotency func(http.Handler) http.Handler
}

// PaymentOption customises PaymentHandlers.
type PaymentOption func(*PaymentHandlers)

// WithPaymentIdempotency wraps intent creation with the idempotency middleware.
func WithPaymentIdempotency(mw func(http.Handler) http.Handler) PaymentOption {
	return func(h *PaymentHandlers) {
		h.idempotency = mw
	}
}

// NewPaymentHandlers constructs a new PaymentHandlers instance.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentService, opts ...PaymentOption) *PaymentHandlers {
	h := &PaymentHandlers{authn: authn, payments: payments}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the authenticated /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	if h.idempotency != nil {
		r.With(h.idempotency).Post("/create-payment-intent", h.createPaymentIntent)
		return
	}
	r.Post("/create-payment-intent", h.createPaymentIntent)
}

func (h *PaymentHandlers) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		httpx.WriteError(ctx, w, httpx.NewError("payment_service_unavailable", "payment service unavailable", http.StatusServiceUnavailable))
		return
	}
	actor, ok := actorFromRequest(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	var req createPaymentIntentRequest
	if err := httpx.DecodeJSON(r, maxPaymentIntentBodySize, &req); err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.payments.CreateIntent(ctx, services.CreateIntentCommand{
		OrderID: strings.TrimSpace(req.OrderID),
		Actor:   actor,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, createPaymentIntentResponse{
		ClientSecret: result.ClientSecret,
		OrderID:      result.OrderID,
	})
}

// WebhookHandlers receives payment provider notifications. The routes carry no user auth; the
// provider signature over the raw body is the only credential.
type WebhookHandlers struct {
	webhooks services.WebhookService
	limiter  rateLimiter
}

// WebhookOption customises WebhookHandlers.
type WebhookOption func(*WebhookHandlers)

// WithWebhookRateLimit throttles deliveries per source address.
func WithWebhookRateLimit(perMinute, burst int, clock func() time.Time) WebhookOption {
	return func(h *WebhookHandlers) {
		h.limiter = newKeyedRateLimiter(perMinute, burst, clock)
	}
}

// NewWebhookHandlers constructs a new WebhookHandlers instance.
func NewWebhookHandlers(webhooks services.WebhookService, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{webhooks: webhooks}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the provider webhook endpoint.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.With(rateLimitMiddleware(h.limiter, clientIPKey)).Post("/webhook", h.stripeWebhook)
}

func (h *WebhookHandlers) stripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.webhooks == nil {
		httpx.WriteError(ctx, w, httpx.NewError("webhook_unavailable", "webhook processing unavailable", http.StatusServiceUnavailable))
		return
	}

	payload, err := httpx.ReadBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	result, err := h.webhooks.HandleStripeWebhook(ctx, payload, r.Header.Get(stripeSignatureHeader))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	observability.FromContext(ctx).Named("webhook").Debug("webhook processed",
		zap.String("eventId", result.EventID),
		zap.String("eventType", result.EventType),
		zap.String("outcome", result.Outcome),
	)
	writeJSONResponse(w, http.StatusOK, webhookAckResponse{Received: true})
}
