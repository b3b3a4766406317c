package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// NatsKV implements Medium on a JetStream key-value bucket.
// Keys are base64url encoded since bucket keys only allow a restricted charset.
type NatsKV struct {
	kv jetstream.KeyValue
}

func NewNatsKV(kv jetstream.KeyValue) *NatsKV {
	return &NatsKV{kv: kv}
}

func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (n *NatsKV) Get(ctx context.Context, key string) (string, bool, error) {
	entry, err := n.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read entry %s: %w", key, err)
	}
	return string(entry.Value()), true, nil
}

func (n *NatsKV) Set(ctx context.Context, key, value string) error {
	if _, err := n.kv.Put(ctx, encodeKey(key), []byte(value)); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", key, err)
	}
	return nil
}

func (n *NatsKV) Ping(ctx context.Context) error {
	_, err := n.kv.Status(ctx)
	return err
}
