package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"github.com/stripe/stripe-go/v78/customer"
	"github.com/stripe/stripe-go/v78/webhook"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeCustomerAPI interface {
	FindByEmail(ctx context.Context, email string) (*stripe.Customer, error)
	New(params *stripe.CustomerParams) (*stripe.Customer, error)
}

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeClients struct {
	customers stripeCustomerAPI
	intents   stripePaymentIntentAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey        string
	WebhookSecret string
	Backends      *stripe.Backends
	Logger        StripeLogger
	Clients       *stripeClients
}

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	api           stripeClients
	webhookSecret string
	logger        StripeLogger
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			customers: customerLister{client: sc.Customers},
			intents:   sc.PaymentIntents,
		}
	}
	if clients.customers == nil || clients.intents == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:           clients,
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		logger:        logger,
	}, nil
}

// FindCustomerByEmail returns the first customer registered with email.
func (p *StripeProvider) FindCustomerByEmail(ctx context.Context, email string) (Customer, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Customer{}, false, nil
	}
	c, err := p.api.customers.FindByEmail(ctx, email)
	if err != nil {
		return Customer{}, false, providerError("stripe: list customers", err)
	}
	if c == nil {
		return Customer{}, false, nil
	}
	return Customer{ID: c.ID, Email: c.Email, Name: c.Name}, true, nil
}

// CreateCustomer registers a new customer with name, email and address.
func (p *StripeProvider) CreateCustomer(ctx context.Context, req CustomerRequest) (Customer, error) {
	params := &stripe.CustomerParams{
		Email:   stripe.String(req.Email),
		Name:    stripe.String(req.Name),
		Address: addressParams(req.Address),
	}
	params.Context = ctx
	c, err := p.api.customers.New(params)
	if err != nil {
		return Customer{}, providerError("stripe: create customer", err)
	}
	p.logger(ctx, "payments.stripe.customer.created", map[string]any{"customerId": c.ID})
	return Customer{ID: c.ID, Email: c.Email, Name: c.Name}, nil
}

// CreatePaymentIntent creates a card payment intent.
func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if req.Amount <= 0 {
		return Intent{}, errors.New("stripe: amount must be positive")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.StatementDescriptor != "" {
		params.StatementDescriptorSuffix = stripe.String(req.StatementDescriptor)
	}
	if req.ReceiptEmail != "" {
		params.ReceiptEmail = stripe.String(req.ReceiptEmail)
	}
	if req.Shipping != nil {
		params.Shipping = &stripe.ShippingDetailsParams{
			Name:    stripe.String(req.Shipping.Name),
			Address: addressParams(req.Shipping.Address),
		}
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Intent{}, providerError("stripe: create payment intent", err)
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
	})
	return stripeIntent(intent), nil
}

// GetPaymentIntent retrieves a payment intent by id.
func (p *StripeProvider) GetPaymentIntent(ctx context.Context, intentID string) (Intent, error) {
	intentID = strings.TrimSpace(intentID)
	if intentID == "" {
		return Intent{}, errors.New("stripe: payment intent id is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.api.intents.Get(intentID, params)
	if err != nil {
		return Intent{}, providerError("stripe: get payment intent", err)
	}
	return stripeIntent(intent), nil
}

// ParseWebhook verifies the Stripe-Signature header against the raw payload and decodes the event.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (Event, error) {
	if p.webhookSecret == "" {
		return Event{}, ErrWebhookNotConfigured
	}
	evt, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := Event{
		ID:      evt.ID,
		Type:    string(evt.Type),
		Created: time.Unix(evt.Created, 0).UTC(),
	}
	if strings.HasPrefix(out.Type, "payment_intent.") && evt.Data != nil {
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(evt.Data.Raw, &intent); err != nil {
			return Event{}, fmt.Errorf("%w: decode payment intent: %v", ErrMalformedEvent, err)
		}
		converted := stripeIntent(&intent)
		out.Intent = &converted
	}
	return out, nil
}

func stripeIntent(intent *stripe.PaymentIntent) Intent {
	if intent == nil {
		return Intent{}
	}
	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	}

	out := Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       status,
		Amount:       intent.Amount,
		Currency:     strings.ToLower(string(intent.Currency)),
		ReceiptEmail: intent.ReceiptEmail,
		Metadata:     intent.Metadata,
	}
	if intent.Created > 0 {
		out.Created = time.Unix(intent.Created, 0).UTC()
	}
	if intent.LastPaymentError != nil {
		out.LastError = intent.LastPaymentError.Msg
		if intent.Status == stripe.PaymentIntentStatusRequiresPaymentMethod {
			out.Status = StatusFailed
		}
	}
	return out
}

func addressParams(addr Address) *stripe.AddressParams {
	return &stripe.AddressParams{
		Line1:      stripe.String(addr.Line1),
		City:       stripe.String(addr.City),
		State:      stripe.String(addr.State),
		PostalCode: stripe.String(addr.PostalCode),
		Country:    stripe.String(addr.Country),
	}
}

func providerError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return &ProviderError{Op: op, Message: stripeErr.Msg, Err: err}
	}
	return &ProviderError{Op: op, Err: err}
}

// customerLister adapts the Stripe customer client's list iterator.
type customerLister struct {
	client *customer.Client
}

func (c customerLister) FindByEmail(ctx context.Context, email string) (*stripe.Customer, error) {
	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	iter := c.client.List(params)
	if iter.Next() {
		return iter.Customer(), nil
	}
	return nil, iter.Err()
}

func (c customerLister) New(params *stripe.CustomerParams) (*stripe.Customer, error) {
	return c.client.New(params)
}
