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

const productsCollection = "products"

type productDocument struct {
	Name      string    `firestore:"name"`
	Image     string    `firestore:"image,omitempty"`
	Price     int64     `firestore:"price"`
	Stock     int       `firestore:"stock"`
	UpdatedAt time.Time `firestore:"updatedAt,omitempty"`
}

// ProductRepository exposes catalog reads and transactional stock adjustments.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.Collection[productDocument]
	now      func() time.Time
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewCollection[productDocument](provider, productsCollection),
		now:      time.Now,
	}, nil
}

// FindByIDs loads the requested products from one consistent snapshot. Unknown ids are absent
// from the result.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ref, err := r.products.Doc(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	result := make(map[string]domain.Product, len(refs))
	if len(refs) == 0 {
		return result, nil
	}

	// A read-only transaction gives every product the same snapshot.
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		clear(result)
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		for _, snap := range snaps {
			if snap == nil || !snap.Exists() {
				continue
			}
			doc, err := pfirestore.Decode[productDocument](snap)
			if err != nil {
				return err
			}
			result[snap.Ref.ID] = doc.toDomain(snap.Ref.ID)
		}
		return nil
	}, pfirestore.WithReadOnly())
	if err != nil {
		return nil, pfirestore.WrapError("products.findByIDs", err)
	}
	return result, nil
}

// DecrementStock reads every product inside one transaction, verifies availability and only then
// writes the new stock values. Any shortfall aborts the whole transaction.
func (r *ProductRepository) DecrementStock(ctx context.Context, adjustments []repositories.StockAdjustment) error {
	const op = "products.decrementStock"
	merged, err := repositories.MergeAdjustments(op, adjustments)
	if err != nil {
		return err
	}
	refs := make([]*firestore.DocumentRef, 0, len(merged))
	for _, adj := range merged {
		ref, err := r.products.Doc(ctx, adj.ProductID)
		if err != nil {
			return err
		}
		refs = append(refs, ref)
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		next := make([]int, len(merged))
		for i, snap := range snaps {
			adj := merged[i]
			if snap == nil || !snap.Exists() {
				return repositories.ProductNotFound(op, adj.ProductID)
			}
			doc, err := pfirestore.Decode[productDocument](snap)
			if err != nil {
				return err
			}
			if doc.Stock < adj.Quantity {
				return repositories.InsufficientStock(op, adj.ProductID, doc.Name, doc.Stock)
			}
			next[i] = doc.Stock - adj.Quantity
		}

		now := r.now().UTC()
		for i, ref := range refs {
			if err := tx.Update(ref, []firestore.Update{
				{Path: "stock", Value: next[i]},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapInventoryError(op, err)
}

// RestoreStock returns previously decremented quantities.
func (r *ProductRepository) RestoreStock(ctx context.Context, adjustments []repositories.StockAdjustment) error {
	const op = "products.restoreStock"
	merged, err := repositories.MergeAdjustments(op, adjustments)
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := r.now().UTC()
		for _, adj := range merged {
			ref, err := r.products.Doc(ctx, adj.ProductID)
			if err != nil {
				return err
			}
			if err := tx.Update(ref, []firestore.Update{
				{Path: "stock", Value: firestore.Increment(adj.Quantity)},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return wrapInventoryError(op, err)
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:    id,
		Name:  d.Name,
		Image: d.Image,
		Price: d.Price,
		Stock: d.Stock,
	}
}

func wrapInventoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	if invErr, ok := repositories.AsInventoryError(err); ok {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
