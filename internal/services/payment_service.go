package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
)

// Provider metadata values are capped at 500 characters.
const maxMetadataValue = 500

// PaymentServiceDeps bundles collaborators required to construct the payment service.
type PaymentServiceDeps struct {
	Orders              repositories.OrderRepository
	Provider            payments.Provider
	Currency            string
	StoreName           string
	StatementDescriptor string
	Logger              func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	orders     repositories.OrderRepository
	provider   payments.Provider
	currency   string
	storeName  string
	descriptor string
	logger     func(context.Context, string, map[string]any)
}

var _ PaymentService = (*paymentService)(nil)

// NewPaymentService constructs the payment intent issuer.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Orders == nil {
		return nil, errors.New("payment service: order repository is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("payment service: provider is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currencyCode := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currencyCode == "" {
		currencyCode = "usd"
	}
	storeName := strings.TrimSpace(deps.StoreName)
	if storeName == "" {
		storeName = "Storefront"
	}
	return &paymentService{
		orders:     deps.Orders,
		provider:   deps.Provider,
		currency:   currencyCode,
		storeName:  storeName,
		descriptor: strings.TrimSpace(deps.StatementDescriptor),
		logger:     logger,
	}, nil
}

// CreateIntent issues a payment intent for an unpaid order owned by the actor. The order itself
// is never modified.
func (s *paymentService) CreateIntent(ctx context.Context, cmd CreateIntentCommand) (PaymentIntentResult, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return PaymentIntentResult{}, fmt.Errorf("%w: Order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return PaymentIntentResult{}, fmt.Errorf("%w: Order not found", ErrOrderNotFound)
		}
		return PaymentIntentResult{}, fmt.Errorf("payment: load order: %w", err)
	}
	// Ownership is checked before paid state.
	if order.UserID != cmd.Actor.UserID {
		return PaymentIntentResult{}, fmt.Errorf("%w: Access denied", ErrOrderForbidden)
	}
	if order.IsPaid {
		return PaymentIntentResult{}, fmt.Errorf("%w: Order already paid", ErrOrderAlreadyPaid)
	}

	email := firstNonEmpty(order.Customer.Email, cmd.Actor.Email)
	name := firstNonEmpty(order.Customer.Name, cmd.Actor.Name)
	address := providerAddress(order.ShippingAddress)
	customerID := s.resolveCustomer(ctx, order, email, name, address)

	corr := domain.PaymentCorrelation{OrderID: order.ID, OrderNumber: order.OrderNumber, UserID: order.UserID}
	metadata := corr.Metadata()
	metadata["items"] = truncate(itemNames(order.Items), maxMetadataValue)
	metadata["itemCount"] = strconv.Itoa(len(order.Items))
	metadata["customerEmail"] = email
	metadata["customerName"] = name
	metadata["customerAddress"] = truncate(order.ShippingAddress.OneLine(), maxMetadataValue)

	req := payments.IntentRequest{
		Amount:              order.Pricing.TotalPrice,
		Currency:            s.currency,
		CustomerID:          customerID,
		Description:         fmt.Sprintf("%s purchase - Order #%s", s.storeName, order.OrderNumber),
		StatementDescriptor: s.descriptor,
		Shipping:            &payments.Shipping{Name: name, Address: address},
		Metadata:            metadata,
	}
	req.IdempotencyKey = intentIdempotencyKey(order.ID, req)

	intent, err := s.provider.CreatePaymentIntent(ctx, req)
	if err != nil {
		s.logger(ctx, "payment.intent.failed", map[string]any{
			"orderId": order.ID,
			"error":   err,
		})
		var perr *payments.ProviderError
		if errors.As(err, &perr) && perr.Message != "" {
			return PaymentIntentResult{}, fmt.Errorf("%w: %s", ErrPaymentProvider, perr.Message)
		}
		return PaymentIntentResult{}, fmt.Errorf("payment: create intent: %w", err)
	}

	s.logger(ctx, "payment.intent.created", map[string]any{
		"orderId":       order.ID,
		"paymentIntent": intent.ID,
		"amount":        order.Pricing.TotalPrice,
	})
	return PaymentIntentResult{ClientSecret: intent.ClientSecret, OrderID: order.ID}, nil
}

// resolveCustomer reuses a provider customer with the same email or creates one. Failures are
// logged and the intent is created without a customer.
func (s *paymentService) resolveCustomer(ctx context.Context, order Order, email, name string, address payments.Address) string {
	if email == "" {
		return ""
	}
	existing, found, err := s.provider.FindCustomerByEmail(ctx, email)
	if err == nil && found {
		return existing.ID
	}
	if err == nil {
		created, createErr := s.provider.CreateCustomer(ctx, payments.CustomerRequest{Email: email, Name: name, Address: address})
		if createErr == nil {
			return created.ID
		}
		err = createErr
	}
	s.logger(ctx, "payment.customer.failed", map[string]any{
		"orderId": order.ID,
		"error":   err,
	})
	return ""
}

// intentIdempotencyKey is stable for identical requests and changes whenever any parameter sent
// to the provider changes, since the provider rejects a reused key carrying different parameters.
func intentIdempotencyKey(orderID string, req payments.IntentRequest) string {
	h := sha256.New()
	write := func(parts ...string) {
		for _, part := range parts {
			h.Write([]byte(part))
			h.Write([]byte{0})
		}
	}
	write(strconv.FormatInt(req.Amount, 10), req.Currency, req.CustomerID, req.Description, req.StatementDescriptor, req.ReceiptEmail)
	if req.Shipping != nil {
		a := req.Shipping.Address
		write(req.Shipping.Name, a.Line1, a.City, a.State, a.PostalCode, a.Country)
	}
	keys := make([]string, 0, len(req.Metadata))
	for k := range req.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		write(k, req.Metadata[k])
	}
	return fmt.Sprintf("pi-%s-%d-%s", orderID, req.Amount, hex.EncodeToString(h.Sum(nil))[:16])
}

func providerAddress(addr ShippingAddress) payments.Address {
	return payments.Address{
		Line1:      addr.Street,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.ZipCode,
		Country:    addr.Country,
	}
}

func itemNames(items []OrderItem) string {
	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	return strings.Join(names, ", ")
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}
