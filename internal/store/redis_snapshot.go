package store

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/jobmap/pkg/errors"
)

// KeyValue is the subset of pkg/redis.Client the snapshot store uses.
type KeyValue interface {
	GetMany(ctx context.Context, keys ...string) ([]string, bool, error)
	SetMany(ctx context.Context, pairs map[string]string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisSnapshotStore keeps the records under Key and the timestamp under
// Key + ":timestamp".
type RedisSnapshotStore struct {
	kv  KeyValue
	key string
}

func NewRedisSnapshotStore(kv KeyValue, key string) *RedisSnapshotStore {
	return &RedisSnapshotStore{kv: kv, key: key}
}

func (r *RedisSnapshotStore) timestampKey() string { return r.key + ":timestamp" }

func (r *RedisSnapshotStore) Read(ctx context.Context) (*Snapshot, error) {
	values, ok, err := r.kv.GetMany(ctx, r.key, r.timestampKey())
	if err != nil {
		return nil, fmt.Errorf("reading snapshot from redis: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrSnapshotAbsent
	}
	return decodeSnapshot([]byte(values[0]), values[1])
}

func (r *RedisSnapshotStore) Write(ctx context.Context, snap *Snapshot) error {
	records, ts, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := r.kv.SetMany(ctx, map[string]string{
		r.key:            string(records),
		r.timestampKey(): ts,
	}, 0); err != nil {
		return fmt.Errorf("writing snapshot to redis: %w", err)
	}
	return nil
}

func (r *RedisSnapshotStore) Clear(ctx context.Context) error {
	if err := r.kv.Del(ctx, r.key, r.timestampKey()); err != nil {
		return fmt.Errorf("clearing snapshot in redis: %w", err)
	}
	return nil
}
