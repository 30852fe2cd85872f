package blob

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"marginalia/api/internal/logging"
)

type countingStore struct {
	data    map[string][]byte
	fetches int
}

func (s *countingStore) Fetch(_ context.Context, key string) ([]byte, error) {
	s.fetches++
	data, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (s *countingStore) DeleteMany(_ context.Context, keys []string) (int, map[string]error) {
	for _, k := range keys {
		delete(s.data, k)
	}
	return len(keys), nil
}

type mapCache struct {
	items  map[string][]byte
	getErr error
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *mapCache) Set(_ context.Context, key string, value []byte) error {
	m.items[key] = value
	return nil
}

func (m *mapCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

func TestCachedFetchReadsThrough(t *testing.T) {
	inner := &countingStore{data: map[string][]byte{"k": []byte("pdf")}}
	cache := &mapCache{items: map[string][]byte{}}
	c := NewCached(inner, cache, logging.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		data, err := c.Fetch(ctx, "k")
		require.NoError(t, err)
		require.Equal(t, []byte("pdf"), data)
	}
	require.Equal(t, 1, inner.fetches)

	n, failures := c.DeleteMany(ctx, []string{"k"})
	require.Equal(t, 1, n)
	require.Empty(t, failures)
	require.NotContains(t, cache.items, "k")

	_, err := c.Fetch(ctx, "k")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCachedFetchFallsThroughOnCacheError(t *testing.T) {
	inner := &countingStore{data: map[string][]byte{"k": []byte("pdf")}}
	c := NewCached(inner, &mapCache{items: map[string][]byte{}, getErr: errors.New("redis down")}, logging.Discard())

	data, err := c.Fetch(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, []byte("pdf"), data)
}
