package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const countersCollection = "counters"

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// CounterRepository implements repositories.CounterRepository backed by Firestore transactions.
type CounterRepository struct {
	provider *pfirestore.Provider
	counters *pfirestore.Collection[counterDocument]
}

var _ repositories.CounterRepository = (*CounterRepository)(nil)

// NewCounterRepository constructs a Firestore-backed counter repository.
func NewCounterRepository(provider *pfirestore.Provider) (*CounterRepository, error) {
	if provider == nil {
		return nil, errors.New("counter repository requires firestore provider")
	}
	return &CounterRepository{
		provider: provider,
		counters: pfirestore.NewCollection[counterDocument](provider, countersCollection),
	}, nil
}

// Next atomically increments the counter identified by counterID and returns the new value.
func (r *CounterRepository) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	const op = "counters.next"
	id, increment, err := repositories.ValidateCounterID(op, counterID, step)
	if err != nil {
		return 0, err
	}
	ref, err := r.counters.Doc(ctx, id)
	if err != nil {
		return 0, err
	}

	var nextValue int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		snap, err := tx.Get(ref)
		if err != nil {
			if !pfirestore.IsNotFound(err) {
				return err
			}
			nextValue = increment
			return tx.Create(ref, counterDocument{CurrentValue: nextValue, UpdatedAt: now})
		}

		doc, err := pfirestore.Decode[counterDocument](snap)
		if err != nil {
			return fmt.Errorf("decode counter %s: %w", id, err)
		}
		nextValue = doc.CurrentValue + increment
		return tx.Set(ref, counterDocument{CurrentValue: nextValue, UpdatedAt: now})
	})
	if err != nil {
		return 0, pfirestore.WrapError(op, err)
	}
	return nextValue, nil
}
