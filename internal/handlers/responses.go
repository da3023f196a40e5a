package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/auth"
	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/observability"
	"github.com/hanko-field/storefront/internal/services"
)

type orderItemPayload struct {
	Product  string  `json:"product"`
	Name     string  `json:"name"`
	Image    string  `json:"image,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type shippingAddressPayload struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

type paymentResultPayload struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	UpdateTime   string `json:"update_time"`
	EmailAddress string `json:"email_address"`
}

type orderUserPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

type orderPayload struct {
	ID              string                 `json:"id"`
	OrderNumber     string                 `json:"orderNumber"`
	User            orderUserPayload       `json:"user"`
	OrderItems      []orderItemPayload     `json:"orderItems"`
	ShippingAddress shippingAddressPayload `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	ItemsPrice      float64                `json:"itemsPrice"`
	TaxPrice        float64                `json:"taxPrice"`
	ShippingPrice   float64                `json:"shippingPrice"`
	TotalPrice      float64                `json:"totalPrice"`
	IsPaid          bool                   `json:"isPaid"`
	PaidAt          string                 `json:"paidAt,omitempty"`
	PaymentResult   *paymentResultPayload  `json:"paymentResult,omitempty"`
	Status          string                 `json:"status"`
	IsDelivered     bool                   `json:"isDelivered"`
	DeliveredAt     string                 `json:"deliveredAt,omitempty"`
	TrackingNumber  string                 `json:"trackingNumber,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
	CreatedAt       string                 `json:"createdAt"`
	UpdatedAt       string                 `json:"updatedAt,omitempty"`
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		User: orderUserPayload{
			ID:    order.UserID,
			Name:  order.Customer.Name,
			Email: order.Customer.Email,
		},
		OrderItems: make([]orderItemPayload, 0, len(order.Items)),
		ShippingAddress: shippingAddressPayload{
			Street:  order.ShippingAddress.Street,
			City:    order.ShippingAddress.City,
			State:   order.ShippingAddress.State,
			ZipCode: order.ShippingAddress.ZipCode,
			Country: order.ShippingAddress.Country,
		},
		PaymentMethod:  string(order.PaymentMethod),
		ItemsPrice:     majorUnits(order.Pricing.ItemsPrice),
		TaxPrice:       majorUnits(order.Pricing.TaxPrice),
		ShippingPrice:  majorUnits(order.Pricing.ShippingPrice),
		TotalPrice:     majorUnits(order.Pricing.TotalPrice),
		IsPaid:         order.IsPaid,
		PaidAt:         formatTimePtr(order.PaidAt),
		Status:         string(order.Status),
		IsDelivered:    order.IsDelivered,
		DeliveredAt:    formatTimePtr(order.DeliveredAt),
		TrackingNumber: order.TrackingNumber,
		Notes:          order.Notes,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.OrderItems = append(payload.OrderItems, orderItemPayload{
			Product:  item.ProductID,
			Name:     item.Name,
			Image:    item.Image,
			Price:    majorUnits(item.Price),
			Quantity: item.Quantity,
		})
	}
	if order.PaymentResult != nil {
		payload.PaymentResult = &paymentResultPayload{
			ID:           order.PaymentResult.ID,
			Status:       order.PaymentResult.Status,
			UpdateTime:   order.PaymentResult.UpdateTime,
			EmailAddress: order.PaymentResult.EmailAddress,
		}
	}
	return payload
}

func buildOrderPayloads(orders []services.Order) []orderPayload {
	out := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		out = append(out, buildOrderPayload(order))
	}
	return out
}

// majorUnits renders minor units as a decimal amount for clients.
func majorUnits(cents int64) float64 {
	return float64(cents) / 100
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

// actorFromRequest resolves the caller populated by the auth middleware.
func actorFromRequest(r *http.Request) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return services.Actor{}, false
	}
	return services.Actor{
		UserID:  strings.TrimSpace(identity.UID),
		Email:   strings.TrimSpace(identity.Email),
		Name:    strings.TrimSpace(identity.Name),
		IsAdmin: identity.IsAdmin(),
	}, true
}

func writeUnauthenticated(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "Not authorized, no token", http.StatusUnauthorized))
}

// writeServiceError maps service sentinels onto the error envelope. Anything unclassified is a
// 500 with a generic message; the cause only goes to the log.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", services.Message(err, services.ErrOrderInvalidInput), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", services.Message(err, services.ErrProductNotFound), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "Order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", services.Message(err, services.ErrOrderForbidden), http.StatusForbidden))
	case errors.Is(err, services.ErrOrderAlreadyPaid):
		httpx.WriteError(ctx, w, httpx.NewError("order_already_paid", services.Message(err, services.ErrOrderAlreadyPaid), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "Order was modified concurrently, please retry", http.StatusConflict))
	case errors.Is(err, services.ErrPaymentProvider):
		httpx.WriteError(ctx, w, httpx.NewError("payment_error", services.Message(err, services.ErrPaymentProvider), http.StatusBadRequest))
	case errors.Is(err, services.ErrWebhookPayload):
		httpx.WriteError(ctx, w, httpx.NewError("webhook_payload_invalid", "Webhook Error: "+services.Message(err, services.ErrWebhookPayload), http.StatusBadRequest))
	case errors.Is(err, services.ErrWebhookSignature):
		httpx.WriteError(ctx, w, httpx.NewError("webhook_signature_invalid", "Webhook Error: "+services.Message(err, services.ErrWebhookSignature), http.StatusBadRequest))
	default:
		observability.FromContext(ctx).Error("request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "Server error", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, httpx.ErrBodyTooLarge) {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "Request body too large", http.StatusRequestEntityTooLarge))
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
}
