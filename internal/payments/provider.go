// Package payments adapts the payment service provider used to collect card payments.
package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment intent states.
type Status string

const (
	// StatusPending indicates the intent awaits customer action or confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the provider captured the payment.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the provider reported a failure or the intent was cancelled.
	StatusFailed Status = "failed"
)

// Webhook event types the reconciler branches on.
const (
	EventPaymentIntentSucceeded = "payment_intent.succeeded"
	EventPaymentIntentFailed    = "payment_intent.payment_failed"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrWebhookNotConfigured is returned when no webhook signing secret is configured.
	ErrWebhookNotConfigured = errors.New("payments: webhook secret not configured")
	// ErrMalformedEvent is returned when a verified webhook payload cannot be decoded.
	ErrMalformedEvent = errors.New("payments: malformed webhook event")
)

// Address is a postal address in provider form.
type Address struct {
	Line1      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Customer is the provider-side customer record.
type Customer struct {
	ID    string
	Email string
	Name  string
}

// CustomerRequest creates a provider customer.
type CustomerRequest struct {
	Email   string
	Name    string
	Address Address
}

// Shipping is attached to payment intents for fraud screening and receipts.
type Shipping struct {
	Name    string
	Address Address
}

// IntentRequest captures the data needed to create a payment intent. Amount is in minor units.
type IntentRequest struct {
	Amount              int64
	Currency            string
	CustomerID          string
	Description         string
	StatementDescriptor string
	ReceiptEmail        string
	Shipping            *Shipping
	Metadata            map[string]string
	IdempotencyKey      string
}

// Intent is the normalised view of a provider payment intent.
type Intent struct {
	ID           string
	ClientSecret string
	Status       Status
	Amount       int64
	Currency     string
	ReceiptEmail string
	Metadata     map[string]string
	Created      time.Time
	LastError    string
}

// Event is a verified webhook notification.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	// Intent is set for payment_intent.* events.
	Intent *Intent
}

// Provider is the contract the order and webhook services depend on.
type Provider interface {
	FindCustomerByEmail(ctx context.Context, email string) (Customer, bool, error)
	CreateCustomer(ctx context.Context, req CustomerRequest) (Customer, error)
	CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error)
	GetPaymentIntent(ctx context.Context, intentID string) (Intent, error)
	// ParseWebhook verifies the signature over the raw payload before decoding it.
	ParseWebhook(payload []byte, signature string) (Event, error)
}

// ProviderError carries the provider's user-facing message.
type ProviderError struct {
	Op      string
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Op + ": " + e.Message
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error { return e.Err }
