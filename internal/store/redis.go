package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stackmesh/tradepilot/internal/logger"
	"github.com/stackmesh/tradepilot/pkg/errors"
)

// DefaultCallTimeout bounds every store round trip. A call without a timeout
// would let a hung connection stall the single poll loop indefinitely.
const DefaultCallTimeout = 5 * time.Second

// RedisStore implements Store on top of a Redis client.
type RedisStore struct {
	client      redis.UniversalClient
	callTimeout time.Duration
	log         *logger.Logger
}

// NewRedisStore creates a RedisStore around an existing client.
func NewRedisStore(client redis.UniversalClient, log *logger.Logger) *RedisStore {
	return &RedisStore{
		client:      client,
		callTimeout: DefaultCallTimeout,
		log:         log,
	}
}

// redisOptions builds the dial options for one Redis endpoint. Password
// is empty for unauthenticated deployments.
func redisOptions(addr, password string, db int) *redis.Options {
	return &redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}
}

// NewRedisStoreFromAddr dials Redis at addr and verifies connectivity.
func NewRedisStoreFromAddr(ctx context.Context, addr, password string, db int, log *logger.Logger) (*RedisStore, error) {
	client := redis.NewClient(redisOptions(addr, password, db))

	s := NewRedisStore(client, log)
	if err := s.Ping(ctx); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to connect to redis at %s", addr)
	}

	log.Info("Connected to shared store", zap.String("addr", addr), zap.Int("db", db))

	return s, nil
}

func (s *RedisStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.callTimeout)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", errors.Newf(errors.ErrCodeKeyNotFound, "key %s not found", key)
		}

		return "", errors.Wrapf(errors.ErrCodeStoreReadFailed, err, "failed to get key %s", key)
	}

	return value, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrapf(errors.ErrCodeStoreWriteFailed, err, "failed to set key %s", key)
	}

	return nil
}

// SetNX implements Store.
func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(errors.ErrCodeStoreWriteFailed, err, "failed to setnx key %s", key)
	}

	return ok, nil
}

// GetJSON implements Store.
func (s *RedisStore) GetJSON(ctx context.Context, key string, dest any) error {
	value, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return errors.Wrapf(errors.ErrCodeDecodeFailed, err, "failed to decode key %s", key)
	}

	return nil
}

// SetJSON implements Store.
func (s *RedisStore) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeDecodeFailed, err, "failed to encode key %s", key)
	}

	return s.Set(ctx, key, string(data), ttl)
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to delete keys", err)
	}

	return nil
}

// Keys implements Store.
func (s *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var keys []string

	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreReadFailed, err, "failed to scan pattern %s", pattern)
	}

	return keys, nil
}

// Publish implements Store.
func (s *RedisStore) Publish(ctx context.Context, channel, message string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Publish(ctx, channel, message).Err(); err != nil {
		return errors.Wrapf(errors.ErrCodeStoreWriteFailed, err, "failed to publish on %s", channel)
	}

	return nil
}

// Subscribe implements Store. The returned channel closes when the
// subscription is cancelled or the connection drops.
func (s *RedisStore) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	pubsub := s.client.Subscribe(ctx, channel)

	// Force the subscription to be established so errors surface here
	// rather than as a silently empty channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()

		return nil, nil, errors.Wrapf(errors.ErrCodeStoreUnavailable, err, "failed to subscribe to %s", channel)
	}

	out := make(chan string)

	go func() {
		defer close(out)

		for msg := range pubsub.Channel() {
			select {
			case out <- msg.Payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		if err := pubsub.Close(); err != nil {
			s.log.Warn("Failed to close subscription", zap.String("channel", channel), zap.Error(err))
		}
	}

	return out, cancel, nil
}

// Ping implements Store.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreUnavailable, "store unreachable", err)
	}

	return nil
}

// Verify RedisStore implements the Store interface.
var _ Store = (*RedisStore)(nil)
