package state

import (
	"context"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/dogelayer/validator/internal/utils/redis"
)

// RedisStore keeps a zstd compressed snapshot under one key. A single SET
// replaces it atomically.
type RedisStore struct {
	client  redis.RedisInterface
	key     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// StateKey returns the key a validator's snapshot is stored under.
func StateKey(prefix, hotkey string) string {
	return fmt.Sprintf("%s:%s:state", prefix, hotkey)
}

func NewRedisStore(client redis.RedisInterface, key string) (*RedisStore, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &RedisStore{client: client, key: key, encoder: encoder, decoder: decoder}, nil
}

func (r *RedisStore) Describe() string {
	return "redis:" + r.key
}

func (r *RedisStore) Load(ctx context.Context) (*ValidatorState, error) {
	raw, err := r.client.Get(ctx, r.key)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", r.key, err)
	}
	if raw == "" {
		return nil, ErrNotFound
	}

	data, err := r.decoder.DecodeAll([]byte(raw), nil)
	if err != nil {
		return nil, &CorruptionError{Location: r.Describe(), Err: fmt.Errorf("decompress: %w", err)}
	}
	return decode(data, r.Describe())
}

func (r *RedisStore) Save(ctx context.Context, st *ValidatorState) error {
	stamp(st)
	data, err := encode(st)
	if err != nil {
		return err
	}
	compressed := r.encoder.EncodeAll(data, nil)
	if err := r.client.Set(ctx, r.key, string(compressed), 0); err != nil {
		return fmt.Errorf("set %s: %w", r.key, err)
	}
	log.Debug().Str("key", r.key).Int("bytes", len(data)).Int("compressed", len(compressed)).Msg("validator state saved")
	return nil
}

func (r *RedisStore) Quarantine(ctx context.Context) (string, error) {
	dst := fmt.Sprintf("%s:corrupt-%d", r.key, time.Now().Unix())
	if err := r.client.Rename(ctx, r.key, dst); err != nil {
		return "", fmt.Errorf("rename %s: %w", r.key, err)
	}
	return dst, nil
}
