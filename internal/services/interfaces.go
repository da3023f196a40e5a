package services

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderStatus        = domain.OrderStatus
	ShippingAddress    = domain.ShippingAddress
	PaymentResult      = domain.PaymentResult
	SystemHealthReport = domain.SystemHealthReport
)

// Actor identifies the authenticated caller of a service operation.
type Actor struct {
	UserID  string
	Email   string
	Name    string
	IsAdmin bool
}

// OrderService covers order placement, reads, payment confirmation and fulfilment updates.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	Get(ctx context.Context, orderID string, actor Actor) (Order, error)
	ListMine(ctx context.Context, actor Actor) ([]Order, error)
	ListAll(ctx context.Context, actor Actor) ([]Order, error)
	ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Invoice(ctx context.Context, orderID string, actor Actor) (InvoiceDocument, error)
}

// PaymentService issues provider payment intents for unpaid orders.
type PaymentService interface {
	CreateIntent(ctx context.Context, cmd CreateIntentCommand) (PaymentIntentResult, error)
}

// WebhookService reconciles provider notifications with stored orders.
type WebhookService interface {
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) (WebhookResult, error)
}

// SystemService exposes health information.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}

// OrderNotifier is told about orders that just became paid.
type OrderNotifier interface {
	NotifyOrderPaid(ctx context.Context, order Order) error
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// InvoiceArchive stores rendered invoice documents and returns their object path.
type InvoiceArchive interface {
	ArchiveInvoice(ctx context.Context, invoice InvoiceDocument) (string, error)
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	OrderID     string            `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	UserID      string            `json:"userId"`
	Status      string            `json:"status"`
	TotalPrice  int64             `json:"totalPrice"`
	OccurredAt  time.Time         `json:"occurredAt"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// OrderItemInput is a requested product and quantity.
type OrderItemInput struct {
	ProductID string
	Quantity  int
}

// CreateOrderCommand places a new order for Actor.
type CreateOrderCommand struct {
	Actor           Actor
	Items           []OrderItemInput
	ShippingAddress ShippingAddress
	PaymentMethod   string
}

// ConfirmPaymentCommand is the client-side mark-paid request.
type ConfirmPaymentCommand struct {
	OrderID string
	Actor   Actor
	Receipt PaymentResult
}

// UpdateOrderStatusCommand is a privileged fulfilment change. Nil pointers leave fields untouched.
type UpdateOrderStatusCommand struct {
	OrderID        string
	Actor          Actor
	Status         string
	TrackingNumber *string
	Notes          *string
}

// CreateIntentCommand requests a payment intent for an order.
type CreateIntentCommand struct {
	OrderID string
	Actor   Actor
}

// PaymentIntentResult is returned to the client to complete payment.
type PaymentIntentResult struct {
	ClientSecret string
	OrderID      string
}

// WebhookResult acknowledges a processed webhook.
type WebhookResult struct {
	Received  bool
	EventID   string
	EventType string
	Outcome   string
}
