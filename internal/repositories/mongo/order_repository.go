package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type orderDocument struct {
	ID              string                 `bson:"_id"`
	OrderNumber     string                 `bson:"orderNumber"`
	UserID          string                 `bson:"userId"`
	CustomerName    string                 `bson:"customerName,omitempty"`
	CustomerEmail   string                 `bson:"customerEmail,omitempty"`
	Items           []orderItemDocument    `bson:"orderItems"`
	ShippingAddress shippingAddressDoc     `bson:"shippingAddress"`
	PaymentMethod   string                 `bson:"paymentMethod"`
	ItemsPrice      int64                  `bson:"itemsPrice"`
	TaxPrice        int64                  `bson:"taxPrice"`
	ShippingPrice   int64                  `bson:"shippingPrice"`
	TotalPrice      int64                  `bson:"totalPrice"`
	IsPaid          bool                   `bson:"isPaid"`
	PaidAt          *time.Time             `bson:"paidAt,omitempty"`
	PaymentResult   *paymentResultDocument `bson:"paymentResult,omitempty"`
	Status          string                 `bson:"status"`
	IsDelivered     bool                   `bson:"isDelivered"`
	DeliveredAt     *time.Time             `bson:"deliveredAt,omitempty"`
	TrackingNumber  string                 `bson:"trackingNumber,omitempty"`
	Notes           string                 `bson:"notes,omitempty"`
	CreatedAt       time.Time              `bson:"createdAt"`
	UpdatedAt       time.Time              `bson:"updatedAt"`
}

type orderItemDocument struct {
	ProductID string `bson:"product"`
	Name      string `bson:"name"`
	Image     string `bson:"image,omitempty"`
	Price     int64  `bson:"price"`
	Quantity  int    `bson:"quantity"`
}

type shippingAddressDoc struct {
	Street  string `bson:"street"`
	City    string `bson:"city"`
	State   string `bson:"state"`
	ZipCode string `bson:"zipCode"`
	Country string `bson:"country"`
}

type paymentResultDocument struct {
	ID           string `bson:"id"`
	Status       string `bson:"status"`
	UpdateTime   string `bson:"update_time,omitempty"`
	EmailAddress string `bson:"email_address,omitempty"`
}

// OrderRepository stores orders in the "orders" collection.
type OrderRepository struct {
	orders *mongo.Collection
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository binds the repository to db.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{orders: db.Collection(ordersCollection)}
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	_, err := r.orders.InsertOne(ctx, newOrderDocument(order))
	return wrapError("orders.insert", err)
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	var doc orderDocument
	if err := r.orders.FindOne(ctx, bson.M{"_id": orderID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, notFound("orders.get", orderID)
		}
		return domain.Order{}, wrapError("orders.get", err)
	}
	return doc.toDomain(), nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.list(ctx, "orders.listByUser", bson.M{"userId": userID})
}

func (r *OrderRepository) ListAll(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx, "orders.listAll", bson.M{})
}

func (r *OrderRepository) list(ctx context.Context, op string, filter bson.M) ([]domain.Order, error) {
	cursor, err := r.orders.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapError(op, err)
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.toDomain())
	}
	return orders, nil
}

// MarkPaid matches on isPaid=false so only one writer observes the transition.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, params repositories.MarkPaidParams) (domain.Order, bool, error) {
	const op = "orders.markPaid"
	paidAt := params.PaidAt.UTC()
	receipt := newPaymentResultDocument(params.Receipt)

	var doc orderDocument
	err := r.orders.FindOneAndUpdate(ctx,
		bson.M{"_id": orderID, "isPaid": false},
		bson.M{"$set": bson.M{
			"isPaid":        true,
			"paidAt":        paidAt,
			"status":        string(params.Status),
			"paymentResult": receipt,
			"updatedAt":     paidAt,
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err == nil {
		return doc.toDomain(), true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Order{}, false, wrapError(op, err)
	}

	current, err := r.FindByID(ctx, orderID)
	if err != nil {
		var repoErr *Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.Order{}, false, notFound(op, orderID)
		}
		return domain.Order{}, false, err
	}
	return current, false, nil
}

// UpdateStatus writes the fulfilment fields. The delivery flag is set by a second update guarded on
// isDelivered=false so concurrent deliveries keep the first timestamp.
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID string, update repositories.OrderStatusUpdate) (domain.Order, error) {
	const op = "orders.updateStatus"
	now := update.UpdatedAt.UTC()
	set := bson.M{"status": string(update.Status), "updatedAt": now}
	if update.TrackingNumber != nil {
		set["trackingNumber"] = strings.TrimSpace(*update.TrackingNumber)
	}
	if update.Notes != nil {
		set["notes"] = *update.Notes
	}

	res, err := r.orders.UpdateOne(ctx, bson.M{"_id": orderID}, bson.M{"$set": set})
	if err != nil {
		return domain.Order{}, wrapError(op, err)
	}
	if res.MatchedCount == 0 {
		return domain.Order{}, notFound(op, orderID)
	}

	if update.Status == domain.OrderStatusDelivered {
		_, err := r.orders.UpdateOne(ctx,
			bson.M{"_id": orderID, "isDelivered": false},
			bson.M{"$set": bson.M{"isDelivered": true, "deliveredAt": now}},
		)
		if err != nil {
			return domain.Order{}, wrapError(op, err)
		}
	}
	return r.FindByID(ctx, orderID)
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
	doc := orderDocument{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		CustomerName:  order.Customer.Name,
		CustomerEmail: order.Customer.Email,
		Items:         items,
		ShippingAddress: shippingAddressDoc{
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
		Status:         string(order.Status),
		IsDelivered:    order.IsDelivered,
		DeliveredAt:    order.DeliveredAt,
		TrackingNumber: order.TrackingNumber,
		Notes:          order.Notes,
		CreatedAt:      order.CreatedAt.UTC(),
		UpdatedAt:      order.UpdatedAt.UTC(),
	}
	if order.PaymentResult != nil {
		doc.PaymentResult = newPaymentResultDocument(*order.PaymentResult)
	}
	return doc
}

func newPaymentResultDocument(result domain.PaymentResult) *paymentResultDocument {
	return &paymentResultDocument{
		ID:           result.ID,
		Status:       result.Status,
		UpdateTime:   result.UpdateTime,
		EmailAddress: result.EmailAddress,
	}
}

func (d orderDocument) toDomain() domain.Order {
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
		ID:          d.ID,
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
		Status:         domain.OrderStatus(d.Status),
		IsDelivered:    d.IsDelivered,
		TrackingNumber: d.TrackingNumber,
		Notes:          d.Notes,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
	if d.PaidAt != nil {
		paidAt := d.PaidAt.UTC()
		order.PaidAt = &paidAt
	}
	if d.DeliveredAt != nil {
		deliveredAt := d.DeliveredAt.UTC()
		order.DeliveredAt = &deliveredAt
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
