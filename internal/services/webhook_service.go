package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
)

const webhookMeterName = "github.com/hanko-field/storefront/internal/services"

// Webhook outcomes recorded on the events counter and returned in WebhookResult.
const (
	WebhookOutcomePaid         = "paid"
	WebhookOutcomeAlreadyPaid  = "already_paid"
	WebhookOutcomeOrderMissing = "order_not_found"
	WebhookOutcomeUncorrelated = "uncorrelated"
	WebhookOutcomeFailed       = "payment_failed"
	WebhookOutcomeIgnored      = "ignored"
	WebhookOutcomeStoreError   = "store_error"
)

// WebhookServiceDeps bundles collaborators required to construct the webhook reconciler.
type WebhookServiceDeps struct {
	Provider payments.Provider
	Orders   repositories.OrderRepository
	Notifier OrderNotifier
	Events   OrderEventPublisher
	Meter    metric.Meter
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type webhookService struct {
	provider payments.Provider
	orders   repositories.OrderRepository
	notifier OrderNotifier
	events   OrderEventPublisher
	counter  metric.Int64Counter
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

var _ WebhookService = (*webhookService)(nil)

// NewWebhookService constructs the payment webhook reconciler.
func NewWebhookService(deps WebhookServiceDeps) (WebhookService, error) {
	if deps.Provider == nil {
		return nil, errors.New("webhook service: provider is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("webhook service: order repository is required")
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(webhookMeterName)
	}
	counter, err := meter.Int64Counter("storefront.webhook.events",
		metric.WithDescription("Payment webhook events by type and outcome"))
	if err != nil {
		return nil, err
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &webhookService{
		provider: deps.Provider,
		orders:   deps.Orders,
		notifier: deps.Notifier,
		events:   deps.Events,
		counter:  counter,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// HandleStripeWebhook verifies the payload and reconciles payment_intent events. Once the
// signature is valid the event is always acknowledged.
func (s *webhookService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error) {
	event, err := s.provider.ParseWebhook(payload, signature)
	if errors.Is(err, payments.ErrMalformedEvent) {
		s.logger(ctx, "webhook.payload.invalid", map[string]any{"error": err})
		s.record(ctx, "unknown", "malformed")
		return WebhookResult{}, fmt.Errorf("%w: %s", ErrWebhookPayload, "Unable to decode event payload")
	}
	if err != nil {
		s.logger(ctx, "webhook.signature.invalid", map[string]any{"error": err})
		s.record(ctx, "unverified", "rejected")
		return WebhookResult{}, &webhookSignatureError{cause: err}
	}

	result := WebhookResult{Received: true, EventID: event.ID, EventType: event.Type}
	switch event.Type {
	case payments.EventPaymentIntentSucceeded:
		result.Outcome = s.reconcileSucceeded(ctx, event)
	case payments.EventPaymentIntentFailed:
		fields := map[string]any{"eventId": event.ID}
		if event.Intent != nil {
			fields["paymentIntent"] = event.Intent.ID
			fields["orderId"] = event.Intent.Metadata[domain.MetadataOrderID]
			fields["reason"] = event.Intent.LastError
		}
		s.logger(ctx, "webhook.payment.failed", fields)
		result.Outcome = WebhookOutcomeFailed
	default:
		s.logger(ctx, "webhook.event.ignored", map[string]any{"eventId": event.ID, "type": event.Type})
		result.Outcome = WebhookOutcomeIgnored
	}

	s.record(ctx, event.Type, result.Outcome)
	return result, nil
}

func (s *webhookService) reconcileSucceeded(ctx context.Context, event payments.Event) string {
	if event.Intent == nil {
		s.logger(ctx, "webhook.intent.missing", map[string]any{"eventId": event.ID})
		return WebhookOutcomeUncorrelated
	}
	intent := event.Intent
	corr, ok := domain.CorrelationFromMetadata(intent.Metadata)
	if !ok {
		s.logger(ctx, "webhook.intent.uncorrelated", map[string]any{"paymentIntent": intent.ID})
		return WebhookOutcomeUncorrelated
	}

	order, err := s.orders.FindByID(ctx, corr.OrderID)
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "webhook.order.notFound", map[string]any{"orderId": corr.OrderID, "paymentIntent": intent.ID})
			return WebhookOutcomeOrderMissing
		}
		s.logger(ctx, "webhook.order.loadFailed", map[string]any{"orderId": corr.OrderID, "error": err})
		return WebhookOutcomeStoreError
	}
	if order.IsPaid {
		return WebhookOutcomeAlreadyPaid
	}

	now := s.clock()
	receipt := domain.PaymentResult{
		ID:           intent.ID,
		Status:       string(intent.Status),
		UpdateTime:   now.Format(time.RFC3339),
		EmailAddress: strings.TrimSpace(intent.ReceiptEmail),
	}
	updated, applied, err := markPaid(ctx, s.orders, order.ID, receipt, now)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return WebhookOutcomeOrderMissing
		}
		s.logger(ctx, "webhook.order.markPaidFailed", map[string]any{"orderId": order.ID, "error": err})
		return WebhookOutcomeStoreError
	}
	if !applied {
		return WebhookOutcomeAlreadyPaid
	}

	s.logger(ctx, "order.paid", map[string]any{
		"orderId":       updated.ID,
		"orderNumber":   updated.OrderNumber,
		"paymentIntent": intent.ID,
		"source":        "webhook",
	})
	if s.events != nil {
		if err := s.events.PublishOrderEvent(ctx, newOrderEvent(orderEventPaid, updated, now, map[string]string{"source": "webhook"})); err != nil {
			s.logger(ctx, "order.event.publishFailed", map[string]any{"orderId": updated.ID, "error": err})
		}
	}
	notifyPaid(ctx, s.notifier, s.logger, updated)
	return WebhookOutcomePaid
}

func (s *webhookService) record(ctx context.Context, eventType, outcome string) {
	s.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("outcome", outcome),
	))
}

type webhookSignatureError struct {
	cause error
}

func (e *webhookSignatureError) Error() string {
	return ErrWebhookSignature.Error() + ": " + e.message()
}

func (e *webhookSignatureError) Unwrap() []error { return []error{ErrWebhookSignature, e.cause} }

func (e *webhookSignatureError) message() string {
	if errors.Is(e.cause, payments.ErrWebhookNotConfigured) {
		return "Webhook secret not configured"
	}
	return e.cause.Error()
}
