package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Orders() OrderRepository
	Products() ProductRepository
	Counters() CounterRepository
	Ping(ctx context.Context) error
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists orders. Orders are never deleted.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
	// MarkPaid applies the payment transition only when the stored order is unpaid. When the order
	// is already paid it returns the stored order with applied=false.
	MarkPaid(ctx context.Context, orderID string, params MarkPaidParams) (order domain.Order, applied bool, err error)
	UpdateStatus(ctx context.Context, orderID string, update OrderStatusUpdate) (domain.Order, error)
}

// MarkPaidParams carries the fields written by the payment transition.
type MarkPaidParams struct {
	PaidAt  time.Time
	Status  domain.OrderStatus
	Receipt domain.PaymentResult
}

// OrderStatusUpdate carries a privileged fulfilment change. Nil pointers leave fields untouched.
type OrderStatusUpdate struct {
	Status         domain.OrderStatus
	TrackingNumber *string
	Notes          *string
	UpdatedAt      time.Time
}

// ProductRepository exposes the catalog operations order creation depends on.
type ProductRepository interface {
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
	// DecrementStock lowers stock for every adjustment only if each product has at least the
	// requested quantity. Either all adjustments apply or none do; failures are *InventoryError.
	DecrementStock(ctx context.Context, adjustments []StockAdjustment) error
	RestoreStock(ctx context.Context, adjustments []StockAdjustment) error
}

// StockAdjustment describes a quantity change for a single product.
type StockAdjustment struct {
	ProductID string
	Quantity  int
}

// CounterRepository issues monotonically increasing sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository collects dependency status for readiness checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// ApplyStatusUpdate mutates order with update. IsDelivered and DeliveredAt are set on the first
// transition to delivered only.
func ApplyStatusUpdate(order *domain.Order, update OrderStatusUpdate) {
	now := update.UpdatedAt.UTC()
	order.Status = update.Status
	if update.TrackingNumber != nil {
		order.TrackingNumber = trimSpace(*update.TrackingNumber)
	}
	if update.Notes != nil {
		order.Notes = *update.Notes
	}
	if update.Status == domain.OrderStatusDelivered && !order.IsDelivered {
		order.IsDelivered = true
		order.DeliveredAt = &now
	}
	order.UpdatedAt = now
}
