package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	data map[string]string
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.data[key], nil
}

func (f *fakeRedis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.data[key] = value
	return nil
}

func (f *fakeRedis) Rename(ctx context.Context, key, newKey string) error {
	v, ok := f.data[key]
	if !ok {
		return errors.New("ERR no such key")
	}
	delete(f.data, key)
	f.data[newKey] = v
	return nil
}

func TestRedisStoreRoundTrip(t *testing.T) {
	fake := newFakeRedis()
	key := StateKey("dogelayer", "5Hotkey")
	store, err := NewRedisStore(fake, key)
	require.NoError(t, err)
	assert.Equal(t, "dogelayer:5Hotkey:state", key)

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(context.Background(), sampleState()))
	assert.NotContains(t, fake.data[key], `"scores"`, "snapshot should be compressed")

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), loaded.LastScoredEpoch)
	assert.Len(t, loaded.Scores, 2)
}

func TestRedisStoreCorruptSnapshot(t *testing.T) {
	fake := newFakeRedis()
	store, err := NewRedisStore(fake, "k")
	require.NoError(t, err)

	fake.data["k"] = "not zstd"
	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)

	moved, err := store.Quarantine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "not zstd", fake.data[moved])
	_, ok := fake.data["k"]
	assert.False(t, ok)
}

func TestRedisStoreTransportErrorIsNotCorruption(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("connection refused")
	store, err := NewRedisStore(fake, "k")
	require.NoError(t, err)

	_, err = store.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCorrupt)
	assert.NotErrorIs(t, err, ErrNotFound)
}
