package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"backtest-lab/internal/storage"
)

// Codec adapts a byte-oriented storage.KVStore into a Cache[V] by JSON
// encoding values. Keys are namespaced with prefix so several codecs can
// share one store.
type Codec[V any] struct {
	store  storage.KVStore
	prefix string
}

// NewCodec wraps store. prefix may be empty.
func NewCodec[V any](store storage.KVStore, prefix string) *Codec[V] {
	return &Codec[V]{store: store, prefix: prefix}
}

var _ Cache[int] = (*Codec[int])(nil)

func (c *Codec[V]) key(k string) string {
	return c.prefix + k
}

func (c *Codec[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V

	data, err := c.store.Get(ctx, c.key(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("cache get %s: %w", key, err)
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return zero, false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return v, true, nil
}

func (c *Codec[V]) Set(ctx context.Context, key string, value V) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.store.Set(ctx, c.key(key), data); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *Codec[V]) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, c.key(key))
}

func (c *Codec[V]) Contains(ctx context.Context, key string) (bool, error) {
	return c.store.Contains(ctx, c.key(key))
}

// Clear empties the underlying store, including keys of other prefixes.
func (c *Codec[V]) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}
