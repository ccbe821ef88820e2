package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/athena-pocket/backend/internal/storage"
	"github.com/athena-pocket/backend/pkg/payment"
)

// KVPaymentStateRepository stores simulator state, one document per provider.
type KVPaymentStateRepository struct {
	store storage.Storage
}

var _ payment.StateStore = (*KVPaymentStateRepository)(nil)

func NewKVPaymentStateRepository(store storage.Storage) *KVPaymentStateRepository {
	return &KVPaymentStateRepository{store: store}
}

func paymentStateKey(p payment.Provider) string {
	return storage.KeyPayments + "_" + string(p)
}

func (r *KVPaymentStateRepository) LoadState(ctx context.Context, p payment.Provider) (*payment.State, error) {
	key := paymentStateKey(p)
	b, err := r.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var st payment.State
	if err := json.Unmarshal(b, &st); err != nil {
		slog.Warn("corrupted payment state, falling back to empty", "key", key, "error", err)
		return nil, nil
	}
	return &st, nil
}

func (r *KVPaymentStateRepository) SaveState(ctx context.Context, p payment.Provider, st *payment.State) error {
	key := paymentStateKey(p)
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return r.store.Set(ctx, key, b)
}
