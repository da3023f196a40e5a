package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/currency"
	"golang.org/x/text/unicode/norm"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/payments"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	orderEventCreated       = "order.created"
	orderEventStatusChanged = "order.status.changed"
	orderEventPaid          = "order.paid"

	orderIDPrefix       = "ord_"
	defaultOrderPrefix  = "ORD"
	defaultCountry      = "US"
	maxNotesLength      = 2000
	maxTrackingLength   = 120
	orderCounterPattern = "orders_%d"
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Products     repositories.ProductRepository
	Counters     repositories.CounterRepository
	Payments     payments.Provider
	Notifier     OrderNotifier
	Events       OrderEventPublisher
	NumberPrefix string
	Currency     currency.Unit
	Clock        func() time.Time
	IDGenerator  func() string
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	counters repositories.CounterRepository
	payments payments.Provider
	notifier OrderNotifier
	events   OrderEventPublisher
	prefix   string
	currency currency.Unit
	notes    *bluemonday.Policy
	clock    func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return orderIDPrefix + strings.ToLower(ulid.Make().String())
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	prefix := strings.ToUpper(strings.TrimSpace(deps.NumberPrefix))
	if prefix == "" {
		prefix = defaultOrderPrefix
	}
	unit := deps.Currency
	if unit == (currency.Unit{}) {
		unit = currency.USD
	}

	return &orderService{
		orders:   deps.Orders,
		products: deps.Products,
		counters: deps.Counters,
		payments: deps.Payments,
		notifier: deps.Notifier,
		events:   deps.Events,
		prefix:   prefix,
		currency: unit,
		notes:    bluemonday.StrictPolicy(),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// Create validates the request against the catalog, snapshots items, prices the order and
// decrements stock atomically before persisting it.
func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.Actor.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: Not authorized", ErrOrderForbidden)
	}
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: Order items are required", ErrOrderInvalidInput)
	}
	address, err := normaliseAddress(cmd.ShippingAddress)
	if err != nil {
		return Order{}, err
	}
	method, ok := domain.ParsePaymentMethod(cmd.PaymentMethod)
	if !ok {
		return Order{}, fmt.Errorf("%w: Invalid payment method", ErrOrderInvalidInput)
	}

	ids := make([]string, 0, len(cmd.Items))
	requested := make(map[string]int, len(cmd.Items))
	for _, item := range cmd.Items {
		id := strings.TrimSpace(item.ProductID)
		if id == "" {
			return Order{}, fmt.Errorf("%w: Product is required for every item", ErrOrderInvalidInput)
		}
		if item.Quantity < 1 {
			return Order{}, fmt.Errorf("%w: Quantity must be at least 1", ErrOrderInvalidInput)
		}
		if item.Quantity > domain.MaxLineQuantity || requested[id] > domain.MaxLineQuantity-item.Quantity {
			return Order{}, fmt.Errorf("%w: Quantity for %s exceeds %d", ErrOrderInvalidInput, id, domain.MaxLineQuantity)
		}
		if _, seen := requested[id]; !seen {
			ids = append(ids, id)
		}
		requested[id] += item.Quantity
	}

	catalog, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return Order{}, fmt.Errorf("order: load products: %w", err)
	}

	items := make([]domain.OrderItem, 0, len(cmd.Items))
	adjustments := make([]repositories.StockAdjustment, 0, len(cmd.Items))
	for _, input := range cmd.Items {
		id := strings.TrimSpace(input.ProductID)
		product, ok := catalog[id]
		if !ok {
			return Order{}, fmt.Errorf("%w: Product %s not found", ErrProductNotFound, id)
		}
		if product.Stock < requested[id] {
			return Order{}, insufficientStock(product.Name, product.Stock)
		}
		items = append(items, domain.OrderItem{
			ProductID: product.ID,
			Name:      product.Name,
			Image:     product.Image,
			Price:     product.Price,
			Quantity:  input.Quantity,
		})
		adjustments = append(adjustments, repositories.StockAdjustment{ProductID: id, Quantity: input.Quantity})
	}

	pricing, err := domain.CalculatePricing(domain.PriceLinesFromItems(items))
	if err != nil {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderInvalidInput, err.Error())
	}

	now := s.clock()
	number, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}

	if err := s.products.DecrementStock(ctx, adjustments); err != nil {
		return Order{}, s.mapStockError(err, catalog)
	}

	order := Order{
		ID:              s.newID(),
		OrderNumber:     number,
		UserID:          userID,
		Customer:        domain.OrderCustomer{Name: strings.TrimSpace(cmd.Actor.Name), Email: strings.TrimSpace(cmd.Actor.Email)},
		Items:           items,
		ShippingAddress: address,
		PaymentMethod:   method,
		Pricing:         pricing,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		if restoreErr := s.products.RestoreStock(context.WithoutCancel(ctx), adjustments); restoreErr != nil {
			s.logger(ctx, "order.create.restoreStockFailed", map[string]any{
				"orderNumber": number,
				"error":       restoreErr,
			})
		}
		if isRepoConflict(err) {
			return Order{}, fmt.Errorf("%w: order %s already exists", ErrOrderConflict, order.ID)
		}
		return Order{}, fmt.Errorf("order: insert: %w", err)
	}

	s.logger(ctx, "order.created", map[string]any{
		"orderId":     order.ID,
		"orderNumber": order.OrderNumber,
		"itemCount":   len(order.Items),
		"totalPrice":  order.Pricing.TotalPrice,
	})
	s.publish(ctx, orderEventCreated, order, nil)
	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderID string, actor Actor) (Order, error) {
	order, err := s.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != actor.UserID && !actor.IsAdmin {
		return Order{}, fmt.Errorf("%w: Access denied", ErrOrderForbidden)
	}
	return order, nil
}

func (s *orderService) ListMine(ctx context.Context, actor Actor) ([]Order, error) {
	userID := strings.TrimSpace(actor.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: Not authorized", ErrOrderForbidden)
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("order: list by user: %w", err)
	}
	return orders, nil
}

func (s *orderService) ListAll(ctx context.Context, actor Actor) ([]Order, error) {
	if !actor.IsAdmin {
		return nil, fmt.Errorf("%w: Not authorized as an admin", ErrOrderForbidden)
	}
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("order: list all: %w", err)
	}
	return orders, nil
}

// ConfirmPayment is the client-side counterpart of webhook reconciliation. Both go through the
// same conditional MarkPaid, so only the first writer applies the transition.
func (s *orderService) ConfirmPayment(ctx context.Context, cmd ConfirmPaymentCommand) (Order, error) {
	order, err := s.load(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != cmd.Actor.UserID {
		return Order{}, fmt.Errorf("%w: Access denied", ErrOrderForbidden)
	}
	if order.IsPaid {
		return order, nil
	}

	receipt := domain.PaymentResult{
		ID:           strings.TrimSpace(cmd.Receipt.ID),
		Status:       strings.TrimSpace(cmd.Receipt.Status),
		UpdateTime:   strings.TrimSpace(cmd.Receipt.UpdateTime),
		EmailAddress: strings.TrimSpace(cmd.Receipt.EmailAddress),
	}

	switch order.PaymentMethod {
	case domain.PaymentMethodStripe:
		verified, err := s.verifyStripeReceipt(ctx, order, receipt)
		if err != nil {
			return Order{}, err
		}
		receipt = verified
	case domain.PaymentMethodCashOnDelivery:
		return Order{}, fmt.Errorf("%w: Cash on delivery orders are settled on delivery", ErrOrderInvalidInput)
	default:
		if receipt.ID == "" {
			return Order{}, fmt.Errorf("%w: Payment id is required", ErrOrderInvalidInput)
		}
	}

	now := s.clock()
	if receipt.UpdateTime == "" {
		receipt.UpdateTime = now.Format(time.RFC3339)
	}
	updated, applied, err := markPaid(ctx, s.orders, order.ID, receipt, now)
	if err != nil {
		return Order{}, err
	}
	if applied {
		s.logger(ctx, "order.paid", map[string]any{"orderId": updated.ID, "source": "client", "paymentId": receipt.ID})
		s.publish(ctx, orderEventPaid, updated, map[string]string{"source": "client"})
		notifyPaid(ctx, s.notifier, s.logger, updated)
	}
	return updated, nil
}

func (s *orderService) verifyStripeReceipt(ctx context.Context, order Order, receipt domain.PaymentResult) (domain.PaymentResult, error) {
	if receipt.ID == "" {
		return domain.PaymentResult{}, fmt.Errorf("%w: Payment id is required", ErrOrderInvalidInput)
	}
	if s.payments == nil {
		return domain.PaymentResult{}, errors.New("order: payment provider not configured")
	}
	intent, err := s.payments.GetPaymentIntent(ctx, receipt.ID)
	if err != nil {
		s.logger(ctx, "order.payment.verifyFailed", map[string]any{
			"orderId":       order.ID,
			"paymentIntent": receipt.ID,
			"error":         err,
		})
		var perr *payments.ProviderError
		if errors.As(err, &perr) && perr.Message != "" {
			return domain.PaymentResult{}, fmt.Errorf("%w: %s", ErrPaymentProvider, perr.Message)
		}
		return domain.PaymentResult{}, fmt.Errorf("order: verify payment: %w", err)
	}
	corr, ok := domain.CorrelationFromMetadata(intent.Metadata)
	if !ok || corr.OrderID != order.ID {
		return domain.PaymentResult{}, fmt.Errorf("%w: Payment does not belong to this order", ErrOrderInvalidInput)
	}
	if intent.Status != payments.StatusSucceeded {
		return domain.PaymentResult{}, fmt.Errorf("%w: Payment has not succeeded", ErrOrderInvalidInput)
	}
	email := intent.ReceiptEmail
	if email == "" {
		email = receipt.EmailAddress
	}
	return domain.PaymentResult{
		ID:           intent.ID,
		Status:       string(intent.Status),
		UpdateTime:   receipt.UpdateTime,
		EmailAddress: email,
	}, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	if !cmd.Actor.IsAdmin {
		return Order{}, fmt.Errorf("%w: Not authorized as an admin", ErrOrderForbidden)
	}
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: Order not found", ErrOrderNotFound)
	}
	status, ok := domain.ParseAdminOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: Invalid status", ErrOrderInvalidInput)
	}

	update := repositories.OrderStatusUpdate{Status: status, UpdatedAt: s.clock()}
	if cmd.TrackingNumber != nil {
		tracking := strings.TrimSpace(*cmd.TrackingNumber)
		if len(tracking) > maxTrackingLength {
			return Order{}, fmt.Errorf("%w: Tracking number is too long", ErrOrderInvalidInput)
		}
		if tracking != "" {
			update.TrackingNumber = &tracking
		}
	}
	if cmd.Notes != nil {
		notes := strings.TrimSpace(s.notes.Sanitize(*cmd.Notes))
		if len(notes) > maxNotesLength {
			return Order{}, fmt.Errorf("%w: Notes are too long", ErrOrderInvalidInput)
		}
		if notes != "" {
			update.Notes = &notes
		}
	}

	order, err := s.orders.UpdateStatus(ctx, orderID, update)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: Order not found", ErrOrderNotFound)
		}
		return Order{}, fmt.Errorf("order: update status: %w", err)
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"orderId": order.ID,
		"status":  string(order.Status),
		"actorId": cmd.Actor.UserID,
	})
	s.publish(ctx, orderEventStatusChanged, order, map[string]string{"actorId": cmd.Actor.UserID})
	return order, nil
}

func (s *orderService) Invoice(ctx context.Context, orderID string, actor Actor) (InvoiceDocument, error) {
	order, err := s.Get(ctx, orderID, actor)
	if err != nil {
		return InvoiceDocument{}, err
	}
	return BuildInvoice(order, s.currency), nil
}

func (s *orderService) load(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: Order not found", ErrOrderNotFound)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, fmt.Errorf("%w: Order not found", ErrOrderNotFound)
		}
		return Order{}, fmt.Errorf("order: load %s: %w", orderID, err)
	}
	return order, nil
}

// nextOrderNumber formats <prefix>-<yyyy>-<seq:06d> from a per-year counter.
func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, fmt.Sprintf(orderCounterPattern, now.Year()), 1)
	if err != nil {
		return "", fmt.Errorf("order: allocate order number: %w", err)
	}
	return fmt.Sprintf("%s-%d-%06d", s.prefix, now.Year(), seq), nil
}

func (s *orderService) mapStockError(err error, catalog map[string]domain.Product) error {
	invErr, ok := repositories.AsInventoryError(err)
	if !ok {
		return fmt.Errorf("order: decrement stock: %w", err)
	}
	switch invErr.Code {
	case repositories.InventoryErrorProductNotFound:
		return fmt.Errorf("%w: Product %s not found", ErrProductNotFound, invErr.ProductID)
	case repositories.InventoryErrorInsufficientStock:
		name := invErr.Name
		if name == "" {
			name = catalog[invErr.ProductID].Name
		}
		return insufficientStock(name, invErr.Available)
	default:
		return fmt.Errorf("%w: %s", ErrOrderInvalidInput, invErr.Message)
	}
}

func (s *orderService) publish(ctx context.Context, eventType string, order Order, attrs map[string]string) {
	if s.events == nil {
		return
	}
	event := newOrderEvent(eventType, order, s.clock(), attrs)
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publishFailed", map[string]any{
			"orderId": order.ID,
			"type":    eventType,
			"error":   err,
		})
	}
}

func newOrderEvent(eventType string, order Order, now time.Time, attrs map[string]string) OrderEvent {
	return OrderEvent{
		ID:          "evt_" + strings.ToLower(ulid.Make().String()),
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalPrice:  order.Pricing.TotalPrice,
		OccurredAt:  now,
		Attributes:  attrs,
	}
}

// markPaid performs the guarded paid transition shared by client confirmation and webhooks.
func markPaid(ctx context.Context, orders repositories.OrderRepository, orderID string, receipt domain.PaymentResult, now time.Time) (Order, bool, error) {
	order, applied, err := orders.MarkPaid(ctx, orderID, repositories.MarkPaidParams{
		PaidAt:  now,
		Status:  domain.OrderStatusConfirmed,
		Receipt: receipt,
	})
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, false, fmt.Errorf("%w: Order not found", ErrOrderNotFound)
		}
		return Order{}, false, fmt.Errorf("order: mark paid: %w", err)
	}
	return order, applied, nil
}

func notifyPaid(ctx context.Context, notifier OrderNotifier, logger func(context.Context, string, map[string]any), order Order) {
	if notifier == nil {
		return
	}
	if err := notifier.NotifyOrderPaid(ctx, order); err != nil {
		logger(ctx, "order.notify.failed", map[string]any{
			"orderId": order.ID,
			"error":   err,
		})
	}
}

func normaliseAddress(addr ShippingAddress) (ShippingAddress, error) {
	clean := func(v string) string { return norm.NFC.String(strings.TrimSpace(v)) }
	out := ShippingAddress{
		Street:  clean(addr.Street),
		City:    clean(addr.City),
		State:   clean(addr.State),
		ZipCode: clean(addr.ZipCode),
		Country: strings.ToUpper(clean(addr.Country)),
	}
	switch {
	case out.Street == "":
		return ShippingAddress{}, fmt.Errorf("%w: Street address is required", ErrOrderInvalidInput)
	case out.City == "":
		return ShippingAddress{}, fmt.Errorf("%w: City is required", ErrOrderInvalidInput)
	case out.State == "":
		return ShippingAddress{}, fmt.Errorf("%w: State is required", ErrOrderInvalidInput)
	case out.ZipCode == "":
		return ShippingAddress{}, fmt.Errorf("%w: Zip code is required", ErrOrderInvalidInput)
	}
	if out.Country == "" {
		out.Country = defaultCountry
	}
	return out, nil
}

func insufficientStock(name string, available int) error {
	return fmt.Errorf("%w: Insufficient stock for %s. Available: %d", ErrOrderInvalidInput, name, available)
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
