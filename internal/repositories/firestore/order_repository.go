package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const ordersCollection = "orders"

type orderDocument struct {
	OrderNumber     string                 `firestore:"orderNumber"`
	UserID          string                 `firestore:"userId"`
	CustomerName    string                 `firestore:"customerName,omitempty"`
	CustomerEmail   string                 `firestore:"customerEmail,omitempty"`
	Items           []orderItemDocument    `firestore:"orderItems"`
	ShippingAddress addressDocument        `firestore:"shippingAddress"`
	PaymentMethod   string                 `firestore:"paymentMethod"`
	ItemsPrice      int64                  `firestore:"itemsPrice"`
	TaxPrice        int64                  `firestore:"taxPrice"`
	ShippingPrice   int64                  `firestore:"shippingPrice"`
	TotalPrice      int64                  `firestore:"totalPrice"`
	IsPaid          bool                   `firestore:"isPaid"`
	PaidAt          *time.Time             `firestore:"paidAt,omitempty"`
	PaymentResult   *paymentResultDocument `firestore:"paymentResult,omitempty"`
	Status          string                 `firestore:"status"`
	IsDelivered     bool                   `firestore:"isDelivered"`
	DeliveredAt     *time.Time             `firestore:"deliveredAt,omitempty"`
	TrackingNumber  string                 `firestore:"trackingNumber,omitempty"`
	Notes           string                 `firestore:"notes,omitempty"`
	CreatedAt       time.Time              `firestore:"createdAt"`
	UpdatedAt       time.Time              `firestore:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `firestore:"product"`
	Name      string `firestore:"name"`
	Image     string `firestore:"image,omitempty"`
	Price     int64  `firestore:"price"`
	Quantity  int    `firestore:"quantity"`
}

type addressDocument struct {
	Street  string `firestore:"street"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	ZipCode string `firestore:"zipCode"`
	Country string `firestore:"country"`
}

type paymentResultDocument struct {
	ID           string `firestore:"id"`
	Status       string `firestore:"status"`
	UpdateTime   string `firestore:"update_time"`
	EmailAddress string `firestore:"email_address,omitempty"`
}

// OrderRepository implements repositories.OrderRepository on Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
	}, nil
}

// Insert creates the order document; an existing id is a conflict.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.orders.Create(ctx, order.ID, newOrderDocument(order))
}

// FindByID loads the order by internal id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(orderID), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", strings.TrimSpace(userID)).OrderBy("createdAt", firestore.Desc)
	})
}

// ListAll returns every order, newest first.
func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("createdAt", firestore.Desc)
	})
}

func (r *OrderRepository) list(ctx context.Context, build pfirestore.QueryBuilder) ([]domain.Order, error) {
	orders := make([]domain.Order, 0)
	err := r.orders.Query(ctx, build, func(id string, doc orderDocument) {
		orders = append(orders, doc.toDomain(id))
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// MarkPaid flips isPaid inside a transaction so concurrent writers observe a single transition.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, params repositories.MarkPaidParams) (domain.Order, bool, error) {
	ref, err := r.orders.Doc(ctx, orderID)
	if err != nil {
		return domain.Order{}, false, err
	}

	var (
		result  domain.Order
		applied bool
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		applied = false
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return pfirestore.NotFound("", orderID)
			}
			return err
		}
		doc, err := pfirestore.Decode[orderDocument](snap)
		if err != nil {
			return err
		}
		if doc.IsPaid {
			result = doc.toDomain(orderID)
			return nil
		}

		paidAt := params.PaidAt.UTC()
		receipt := newPaymentResultDocument(params.Receipt)
		doc.IsPaid = true
		doc.PaidAt = &paidAt
		doc.Status = string(params.Status)
		doc.PaymentResult = receipt
		doc.UpdatedAt = paidAt

		if err := tx.Update(ref, []firestore.Update{
			{Path: "isPaid", Value: true},
			{Path: "paidAt", Value: paidAt},
			{Path: "status", Value: doc.Status},
			{Path: "paymentResult", Value: receipt},
			{Path: "updatedAt", Value: paidAt},
		}); err != nil {
			return err
		}
		result = doc.toDomain(orderID)
		applied = true
		return nil
	})
	if err != nil {
		return domain.Order{}, false, pfirestore.WrapError("orders.markPaid", err)
	}
	return result, applied, nil
}

// UpdateStatus applies a privileged fulfilment change. Delivery timestamps are written once.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	ref, err := r.orders.Doc(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var result domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return pfirestore.NotFound("", orderID)
			}
			return err
		}
		doc, err := pfirestore.Decode[orderDocument](snap)
		if err != nil {
			return err
		}

		now := update.UpdatedAt.UTC()
		doc.applyStatusUpdate(update, now)
		updates := []firestore.Update{
			{Path: "status", Value: doc.Status},
			{Path: "trackingNumber", Value: doc.TrackingNumber},
			{Path: "notes", Value: doc.Notes},
			{Path: "isDelivered", Value: doc.IsDelivered},
			{Path: "updatedAt", Value: now},
		}
		if doc.DeliveredAt != nil {
			updates = append(updates, firestore.Update{Path: "deliveredAt", Value: *doc.DeliveredAt})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}
		result = doc.toDomain(orderID)
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.updateStatus", err)
	}
	return result, nil
}

func (d *orderDocument) applyStatusUpdate(update repositories.OrderStatusUpdate, now time.Time) {
	d.Status = string(update.Status)
	if update.TrackingNumber != nil {
		d.TrackingNumber = strings.TrimSpace(*update.TrackingNumber)
	}
	if update.Notes != nil {
		d.Notes = *update.Notes
	}
	if update.Status == domain.OrderStatusDelivered && !d.IsDelivered {
		d.IsDelivered = true
		d.DeliveredAt = &now
	}
	d.UpdatedAt = now
}

func newOrderDocument(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	return orderDocument{
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CustomerName:  order.Customer.Name,
		CustomerEmail: order.Customer.Email,
		Items:         items,
		ShippingAddress: addressDocument{
			Street:  order.ShippingAddress.Street,
			City:    order.ShippingAddress.City,
			State:   order.ShippingAddress.State,
			ZipCode: order.ShippingAddress.ZipCode,
			Country: order.ShippingAddress.Country,
		},
		PaymentMethod:  string(order.PaymentMethod),
		ItemsPrice:     order.Pricing.ItemsPrice,
		TaxPrice:       order.Pricing.TaxPrice,
		ShippingPrice:  order.Pricing.ShippingPrice,
		TotalPrice:     order.Pricing.TotalPrice,
		IsPaid:         order.IsPaid,
		PaidAt:         order.PaidAt,
		PaymentResult:  paymentResultPointer(order.PaymentResult),
		Status:         string(order.Status),
		IsDelivered:    order.IsDelivered,
		DeliveredAt:    order.DeliveredAt,
		TrackingNumber: order.TrackingNumber,
		Notes:          order.Notes,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
}

func paymentResultPointer(result *domain.PaymentResult) *paymentResultDocument {
	if result == nil {
		return nil
	}
	return newPaymentResultDocument(*result)
}

func newPaymentResultDocument(result domain.PaymentResult) *paymentResultDocument {
	return &paymentResultDocument{
		ID:           result.ID,
		Status:       result.Status,
		UpdateTime:   result.UpdateTime,
		EmailAddress: result.EmailAddress,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Price:     item.Price,
			Quantity:  item.Quantity,
		})
	}
	order := domain.Order{
		ID:          id,
		OrderNumber: d.OrderNumber,
		UserID:      d.UserID,
		Customer:    domain.OrderCustomer{Name: d.CustomerName, Email: d.CustomerEmail},
		Items:       items,
		ShippingAddress: domain.ShippingAddress{
			Street:  d.ShippingAddress.Street,
			City:    d.ShippingAddress.City,
			State:   d.ShippingAddress.State,
			ZipCode: d.ShippingAddress.ZipCode,
			Country: d.ShippingAddress.Country,
		},
		PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		Pricing: domain.OrderPricing{
			ItemsPrice:    d.ItemsPrice,
			TaxPrice:      d.TaxPrice,
			ShippingPrice: d.ShippingPrice,
			TotalPrice:    d.TotalPrice,
		},
		IsPaid:         d.IsPaid,
		PaidAt:         d.PaidAt,
		Status:         domain.OrderStatus(d.Status),
		IsDelivered:    d.IsDelivered,
		DeliveredAt:    d.DeliveredAt,
		TrackingNumber: d.TrackingNumber,
		Notes:          d.Notes,
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
	if d.PaymentResult != nil {
		order.PaymentResult = &domain.PaymentResult{
			ID:           d.PaymentResult.ID,
			Status:       d.PaymentResult.Status,
			UpdateTime:   d.PaymentResult.UpdateTime,
			EmailAddress: d.PaymentResult.EmailAddress,
		}
	}
	return order
}
