package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanko-field/storefront/internal/platform/config"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/idempotency"
	"github.com/hanko-field/storefront/internal/repositories"
	firestoreRepo "github.com/hanko-field/storefront/internal/repositories/firestore"
	"github.com/hanko-field/storefront/internal/repositories/memory"
	mongoRepo "github.com/hanko-field/storefront/internal/repositories/mongo"
)

const mongoConnectTimeout = 10 * time.Second

// OpenRegistry connects the order store selected by cfg.Store.Driver. The firestore provider is
// reused when the caller already holds one.
func OpenRegistry(ctx context.Context, cfg config.Config, provider *pfirestore.Provider) (repositories.Registry, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case config.StoreDriverFirestore, "":
		if provider == nil {
			provider = pfirestore.NewProvider(cfg.Firestore)
		}
		reg, err := firestoreRepo.NewRegistry(provider)
		if err != nil {
			return nil, err
		}
		return reg, nil
	case config.StoreDriverMongo:
		client, db, err := mongoRepo.Connect(ctx, mongoRepo.Config{
			URI:            cfg.Mongo.URI,
			Database:       cfg.Mongo.Database,
			ConnectTimeout: mongoConnectTimeout,
		})
		if err != nil {
			return nil, err
		}
		reg, err := mongoRepo.NewRegistry(client, db)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return reg, nil
	case config.StoreDriverMemory:
		return memory.NewRegistry(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// IdempotencyBackend is the selected store plus a release hook for its client.
type IdempotencyBackend struct {
	Store idempotency.Store
	Close func() error
}

// OpenIdempotencyStore builds the store selected by cfg.Idempotency.Backend.
func OpenIdempotencyStore(cfg config.Config, provider *pfirestore.Provider) (IdempotencyBackend, error) {
	noop := func() error { return nil }
	switch strings.ToLower(strings.TrimSpace(cfg.Idempotency.Backend)) {
	case config.IdempotencyBackendMemory, "":
		return IdempotencyBackend{Store: idempotency.NewMemoryStore(), Close: noop}, nil
	case config.IdempotencyBackendFirestore:
		if provider == nil {
			provider = pfirestore.NewProvider(cfg.Firestore)
		}
		return IdempotencyBackend{Store: idempotency.NewFirestoreStore(provider), Close: noop}, nil
	case config.IdempotencyBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return IdempotencyBackend{Store: idempotency.NewRedisStore(client), Close: client.Close}, nil
	default:
		return IdempotencyBackend{}, fmt.Errorf("unsupported idempotency backend %q", cfg.Idempotency.Backend)
	}
}
