package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/hanko-field/storefront/internal/repositories"
)

// Registry bundles the MongoDB repositories behind repositories.Registry.
type Registry struct {
	client   *mongo.Client
	orders   *OrderRepository
	products *ProductRepository
	counters *CounterRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry wires every repository onto db. The registry owns client and disconnects it on Close.
func NewRegistry(client *mongo.Client, db *mongo.Database) (*Registry, error) {
	if client == nil || db == nil {
		return nil, errors.New("mongo registry requires client and database")
	}
	return &Registry{
		client:   client,
		orders:   NewOrderRepository(db),
		products: NewProductRepository(db),
		counters: NewCounterRepository(db),
	}, nil
}

func (r *Registry) Orders() repositories.OrderRepository     { return r.orders }
func (r *Registry) Products() repositories.ProductRepository { return r.products }
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// Ping checks the primary is reachable.
func (r *Registry) Ping(ctx context.Context) error {
	return wrapError("mongo.ping", r.client.Ping(ctx, readpref.Primary()))
}

// Close disconnects the client.
func (r *Registry) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}
