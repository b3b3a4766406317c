// Package store persists namespaced collections on a pluggable storage medium.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/identity"
)

// Medium is a durable string key-value store.
type Medium interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
}

// Pinger is implemented by media that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Key builds the storage key of a collection within a namespace.
func Key(collection string, ns identity.Namespace) string {
	return collection + "/" + ns.String()
}

// Collection stores a JSON encoded slice of T per namespace.
type Collection[T any] struct {
	name   string
	medium Medium
	logger *slog.Logger
}

func NewCollection[T any](name string, medium Medium, logger *slog.Logger) *Collection[T] {
	return &Collection[T]{
		name:   name,
		medium: medium,
		logger: logger.With("component", "store", "collection", name),
	}
}

func (c *Collection[T]) Name() string {
	return c.name
}

// Load returns the collection persisted for ns. Missing, unreachable and corrupt
// collections load as empty; failures are logged, never returned.
func (c *Collection[T]) Load(ctx context.Context, ns identity.Namespace) []T {
	items, err := c.Fetch(ctx, ns)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to read collection", "key", Key(c.name, ns), "error", err)
		return []T{}
	}
	return items
}

// Fetch is Load for callers that must not mistake an unreachable medium for an empty
// collection: a failed read is returned. Corrupt payloads still load as empty.
func (c *Collection[T]) Fetch(ctx context.Context, ns identity.Namespace) ([]T, error) {
	key := Key(c.name, ns)
	raw, found, err := c.medium.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storeerrors.ErrStorageUnavailable, key, err)
	}
	if !found || raw == "" {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		c.logger.ErrorContext(ctx, "discarding unreadable collection", "key", key,
			"error", fmt.Errorf("%w: %w", storeerrors.ErrStorageCorrupt, err))
		return []T{}, nil
	}
	if items == nil {
		return []T{}, nil
	}
	return items, nil
}

// Save replaces the collection persisted for ns.
func (c *Collection[T]) Save(ctx context.Context, ns identity.Namespace, items []T) error {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode collection %s: %w", c.name, err)
	}
	key := Key(c.name, ns)
	if err := c.medium.Set(ctx, key, string(data)); err != nil {
		return fmt.Errorf("failed to save collection %s: %w", key, err)
	}
	return nil
}
