// Package blob fetches and deletes uploaded document bytes by key.
package blob

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("blob not found")

// Store is the blob collaborator. DeleteMany reports how many keys were
// removed along with the failure for every key that was not.
type Store interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	DeleteMany(ctx context.Context, keys []string) (int, map[string]error)
}
