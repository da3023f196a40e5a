package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates fulfilment states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order was placed and awaits payment or processing.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment succeeded. Only the payment transition sets it.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusProcessing indicates the order is being prepared.
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped indicates the order has been handed to a carrier.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered indicates the order reached the customer.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled.
	OrderStatusCancelled OrderStatus = "cancelled"
)

var adminSettableStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:    {},
	OrderStatusProcessing: {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
}

// ParseAdminOrderStatus validates statuses accepted by privileged status updates.
func ParseAdminOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := adminSettableStatuses[status]; !ok {
		return "", false
	}
	return status, true
}

// PaymentMethod enumerates the payment options offered at checkout.
type PaymentMethod string

const (
	PaymentMethodStripe         PaymentMethod = "stripe"
	PaymentMethodPayPal         PaymentMethod = "paypal"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// ParsePaymentMethod validates a client supplied payment method tag.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(raw)))
	switch method {
	case PaymentMethodStripe, PaymentMethodPayPal, PaymentMethodCashOnDelivery:
		return method, true
	default:
		return "", false
	}
}

// Order is the persisted order aggregate. Items, address and pricing are immutable after creation.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Customer        OrderCustomer
	Items           []OrderItem
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	Pricing         OrderPricing
	IsPaid          bool
	PaidAt          *time.Time
	PaymentResult   *PaymentResult
	Status          OrderStatus
	IsDelivered     bool
	DeliveredAt     *time.Time
	TrackingNumber  string
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OrderCustomer captures purchaser contact details at order time.
type OrderCustomer struct {
	Name  string
	Email string
}

// OrderItem is a snapshot of the catalog entry taken when the order was created.
type OrderItem struct {
	ProductID string
	Name      string
	Image     string
	Price     int64
	Quantity  int
}

// LineTotal returns price multiplied by quantity in minor units.
func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// ShippingAddress is captured once at checkout.
type ShippingAddress struct {
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
}

// OneLine renders the address the way it is attached to payment metadata.
func (a ShippingAddress) OneLine() string {
	return a.Street + ", " + a.City + ", " + a.State + " " + a.ZipCode + ", " + a.Country
}

// PaymentResult is the provider receipt stored when an order is marked paid.
type PaymentResult struct {
	ID           string
	Status       string
	UpdateTime   string
	EmailAddress string
}

// Product is the catalog view consumed by order creation.
type Product struct {
	ID    string
	Name  string
	Image string
	Price int64
	Stock int
}

// PaymentCorrelation links a provider transaction back to the owning order.
type PaymentCorrelation struct {
	OrderID     string
	OrderNumber string
	UserID      string
}

// Correlation metadata keys shared with the payment provider. Renaming them breaks reconciliation
// of intents created by earlier releases.
const (
	MetadataOrderID     = "orderId"
	MetadataOrderNumber = "orderNumber"
	MetadataUserID      = "userId"
)

// Metadata renders the correlation as provider metadata entries.
func (c PaymentCorrelation) Metadata() map[string]string {
	return map[string]string{
		MetadataOrderID:     c.OrderID,
		MetadataOrderNumber: c.OrderNumber,
		MetadataUserID:      c.UserID,
	}
}

// CorrelationFromMetadata resolves the typed correlation key from a provider metadata bag.
func CorrelationFromMetadata(metadata map[string]string) (PaymentCorrelation, bool) {
	if len(metadata) == 0 {
		return PaymentCorrelation{}, false
	}
	corr := PaymentCorrelation{
		OrderID:     strings.TrimSpace(metadata[MetadataOrderID]),
		OrderNumber: strings.TrimSpace(metadata[MetadataOrderNumber]),
		UserID:      strings.TrimSpace(metadata[MetadataUserID]),
	}
	if corr.OrderID == "" {
		return PaymentCorrelation{}, false
	}
	return corr, true
}

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// Health status values reported by readiness checks.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)
