// Package memory provides process-local repositories for development and tests. Every operation
// holds a single mutex, so the conditional writes are trivially atomic.
package memory

import (
	"context"
	"sort"
	"sync"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// Registry keeps orders, products and counters in memory.
type Registry struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	products map[string]domain.Product
	counters map[string]int64
}

var (
	_ repositories.Registry          = (*Registry)(nil)
	_ repositories.OrderRepository   = (*orderRepository)(nil)
	_ repositories.ProductRepository = (*productRepository)(nil)
	_ repositories.CounterRepository = (*counterRepository)(nil)
)

// NewRegistry returns an empty registry seeded with products.
func NewRegistry(products ...domain.Product) *Registry {
	r := &Registry{
		orders:   make(map[string]domain.Order),
		products: make(map[string]domain.Product),
		counters: make(map[string]int64),
	}
	for _, p := range products {
		r.products[p.ID] = p
	}
	return r
}

func (r *Registry) Orders() repositories.OrderRepository     { return &orderRepository{r} }
func (r *Registry) Products() repositories.ProductRepository { return &productRepository{r} }
func (r *Registry) Counters() repositories.CounterRepository { return &counterRepository{r} }
func (r *Registry) Ping(context.Context) error               { return nil }
func (r *Registry) Close(context.Context) error              { return nil }

// PutProduct inserts or replaces a catalog entry.
func (r *Registry) PutProduct(p domain.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
}

type orderRepository struct{ r *Registry }

func (o *orderRepository) Insert(_ context.Context, order domain.Order) error {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	if _, exists := o.r.orders[order.ID]; exists {
		return conflict("orders.insert", order.ID)
	}
	o.r.orders[order.ID] = cloneOrder(order)
	return nil
}

func (o *orderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	order, ok := o.r.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", orderID)
	}
	return cloneOrder(order), nil
}

func (o *orderRepository) ListByUser(_ context.Context, userID string) ([]domain.Order, error) {
	return o.list(func(order domain.Order) bool { return order.UserID == userID }), nil
}

func (o *orderRepository) ListAll(context.Context) ([]domain.Order, error) {
	return o.list(func(domain.Order) bool { return true }), nil
}

func (o *orderRepository) list(keep func(domain.Order) bool) []domain.Order {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	result := make([]domain.Order, 0, len(o.r.orders))
	for _, order := range o.r.orders {
		if keep(order) {
			result = append(result, cloneOrder(order))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result
}

func (o *orderRepository) MarkPaid(_ context.Context, orderID string, params repositories.MarkPaidParams) (domain.Order, bool, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	order, ok := o.r.orders[orderID]
	if !ok {
		return domain.Order{}, false, notFound("orders.markPaid", orderID)
	}
	if order.IsPaid {
		return cloneOrder(order), false, nil
	}
	paidAt := params.PaidAt.UTC()
	receipt := params.Receipt
	order.IsPaid = true
	order.PaidAt = &paidAt
	order.Status = params.Status
	order.PaymentResult = &receipt
	order.UpdatedAt = paidAt
	o.r.orders[orderID] = order
	return cloneOrder(order), true, nil
}

func (o *orderRepository) UpdateStatus(_ context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	o.r.mu.Lock()
	defer o.r.mu.Unlock()
	order, ok := o.r.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.updateStatus", orderID)
	}
	repositories.ApplyStatusUpdate(&order, update)
	o.r.orders[orderID] = order
	return cloneOrder(order), nil
}

type productRepository struct{ r *Registry }

func (p *productRepository) FindByIDs(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	result := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, ok := p.r.products[id]; ok {
			result[id] = product
		}
	}
	return result, nil
}

func (p *productRepository) DecrementStock(_ context.Context, adjustments []repositories.StockAdjustment) error {
	const op = "products.decrementStock"
	merged, err := repositories.MergeAdjustments(op, adjustments)
	if err != nil {
		return err
	}
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	for _, adj := range merged {
		product, ok := p.r.products[adj.ProductID]
		if !ok {
			return repositories.ProductNotFound(op, adj.ProductID)
		}
		if product.Stock < adj.Quantity {
			return repositories.InsufficientStock(op, adj.ProductID, product.Name, product.Stock)
		}
	}
	for _, adj := range merged {
		product := p.r.products[adj.ProductID]
		product.Stock -= adj.Quantity
		p.r.products[adj.ProductID] = product
	}
	return nil
}

func (p *productRepository) RestoreStock(_ context.Context, adjustments []repositories.StockAdjustment) error {
	const op = "products.restoreStock"
	merged, err := repositories.MergeAdjustments(op, adjustments)
	if err != nil {
		return err
	}
	p.r.mu.Lock()
	defer p.r.mu.Unlock()
	for _, adj := range merged {
		product, ok := p.r.products[adj.ProductID]
		if !ok {
			return repositories.ProductNotFound(op, adj.ProductID)
		}
		product.Stock += adj.Quantity
		p.r.products[adj.ProductID] = product
	}
	return nil
}

type counterRepository struct{ r *Registry }

func (c *counterRepository) Next(_ context.Context, counterID string, step int64) (int64, error) {
	id, increment, err := repositories.ValidateCounterID("counters.next", counterID, step)
	if err != nil {
		return 0, err
	}
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.counters[id] += increment
	return c.r.counters[id], nil
}

func cloneOrder(order domain.Order) domain.Order {
	out := order
	out.Items = append([]domain.OrderItem(nil), order.Items...)
	if order.PaidAt != nil {
		paidAt := *order.PaidAt
		out.PaidAt = &paidAt
	}
	if order.DeliveredAt != nil {
		deliveredAt := *order.DeliveredAt
		out.DeliveredAt = &deliveredAt
	}
	if order.PaymentResult != nil {
		receipt := *order.PaymentResult
		out.PaymentResult = &receipt
	}
	return out
}
