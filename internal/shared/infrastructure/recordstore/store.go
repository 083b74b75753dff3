// Package recordstore persists the engine's durable entities as opaque
// records keyed by identifier, e.g. "ledger" or "nagSchedule/<taskId>".
package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// ErrEmptyKey is returned when a record key is blank.
var ErrEmptyKey = errors.New("record key is empty")

// Store is a key-value record store.
// Implementations join a transaction carried in ctx when they support one.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes the key; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns every key with the prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Key joins a collection and an identifier, e.g. Key("goal", id).
func Key(collection, id string) string {
	return collection + "/" + id
}

// Collection returns the prefix matching every key of a collection.
func Collection(name string) string {
	return name + "/"
}

// IDFromKey strips the collection prefix from a key.
func IDFromKey(key string) string {
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// GetJSON loads the record at key into v.
func GetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode record %s: %w", key, err)
	}
	return nil
}

// PutJSON stores v as JSON at key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}

func checkKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	return nil
}
