package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

type productDocument struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Image     string    `bson:"image,omitempty"`
	Price     int64     `bson:"price"`
	Stock     int       `bson:"countInStock"`
	UpdatedAt time.Time `bson:"updatedAt,omitempty"`
}

// ProductRepository reads the catalog and adjusts stock with conditional updates.
type ProductRepository struct {
	products *mongo.Collection
	now      func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository binds the repository to db.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{products: db.Collection(productsCollection), now: time.Now}
}

func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	const op = "products.findByIDs"
	result := make(map[string]domain.Product, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}
	cursor, err := r.products.Find(ctx, bson.M{"_id": bson.M{"$in": productIDs}})
	if err != nil {
		return nil, wrapError(op, err)
	}
	defer cursor.Close(ctx)

	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, wrapError(op, err)
	}
	for _, doc := range docs {
		result[doc.ID] = domain.Product{ID: doc.ID, Name: doc.Name, Image: doc.Image, Price: doc.Price, Stock: doc.Stock}
	}
	return result, nil
}

// DecrementStock applies "$inc -n only if countInStock >= n" per product. When any product cannot
// be decremented, the adjustments already applied are reverted before the error is returned.
func (r *ProductRepository) DecrementStock(ctx context.Context, adjustments []repositories.StockAdjustment) error {
	const op = "products.decrementStock"
	merged, err := repositories.MergeAdjustments(op, adjustments)
	if err != nil {
		return err
	}

	applied := make([]repositories.StockAdjustment, 0, len(merged))
	for _, adj := range merged {
		res, err := r.products.UpdateOne(ctx,
			bson.M{"_id": adj.ProductID, "countInStock": bson.M{"$gte": adj.Quantity}},
			bson.M{
				"$inc": bson.M{"countInStock": -adj.Quantity},
				"$set": bson.M{"updatedAt": r.now().UTC()},
			},
		)
		if err == nil && res.MatchedCount == 1 {
			applied = append(applied, adj)
			continue
		}
		if err == nil {
			err = r.shortfall(ctx, op, adj.ProductID)
		} else {
			err = wrapError(op, err)
		}
		if len(applied) > 0 {
			if restoreErr := r.RestoreStock(context.WithoutCancel(ctx), applied); restoreErr != nil {
				return errors.Join(err, restoreErr)
			}
		}
		return err
	}
	return nil
}

func (r *ProductRepository) shortfall(ctx context.Context, op, productID string) error {
	var doc productDocument
	err := r.products.FindOne(ctx, bson.M{"_id": productID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repositories.ProductNotFound(op, productID)
	}
	if err != nil {
		return wrapError(op, err)
	}
	return repositories.InsufficientStock(op, productID, doc.Name, doc.Stock)
}

func (r *ProductRepository) RestoreStock(ctx context.Context, adjustments []repositories.StockAdjustment) error {
	const op = "products.restoreStock"
	merged, err := repositories.MergeAdjustments(op, adjustments)
	if err != nil {
		return err
	}
	var errs []error
	for _, adj := range merged {
		_, err := r.products.UpdateOne(ctx,
			bson.M{"_id": adj.ProductID},
			bson.M{
				"$inc": bson.M{"countInStock": adj.Quantity},
				"$set": bson.M{"updatedAt": r.now().UTC()},
			},
		)
		if err != nil {
			errs = append(errs, wrapError(op, err))
		}
	}
	return errors.Join(errs...)
}
