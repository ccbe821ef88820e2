package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/athena-pocket/backend/internal/storage"
)

// kvCollection mirrors a whole collection as one JSON array under a storage key.
// Callers serialise load→modify→save with their own mutex.
type kvCollection[T any] struct {
	store storage.Storage
	key   string
}

// load returns the stored items. A missing key is an empty collection; so is
// a corrupted document, which is logged and overwritten on the next save.
func (c kvCollection[T]) load(ctx context.Context) ([]T, error) {
	b, err := c.store.Get(ctx, c.key)
	if errors.Is(err, storage.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []T
	if err := json.Unmarshal(b, &items); err != nil {
		slog.Warn("corrupted collection, falling back to empty", "key", c.key, "error", err)
		return nil, nil
	}
	return items, nil
}

func (c kvCollection[T]) save(ctx context.Context, items []T) error {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c.key, err)
	}
	return c.store.Set(ctx, c.key, b)
}

// paginate applies limit/offset to a slice; limit <= 0 means no limit.
func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
