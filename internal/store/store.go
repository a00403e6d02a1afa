// Package store abstracts the shared key/value and publish-subscribe store
// that every process treats as the only source of cross-process truth.
package store

import (
	"context"
	"time"
)

// Store is the shared state store contract. All operations are context-bound;
// implementations must enforce a per-call timeout so a hung store call can
// never stall a poll loop.
type Store interface {
	// Get returns the string value at key. Returns an error with
	// errors.ErrCodeKeyNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	// Set writes a string value. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes the value only if the key does not exist. Returns true
	// when the write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// GetJSON unmarshals the value at key into dest.
	GetJSON(ctx context.Context, key string, dest any) error
	// SetJSON marshals v and writes it at key.
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	// Keys returns all keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// Publish sends a message on a pub/sub channel.
	Publish(ctx context.Context, channel, message string) error
	// Subscribe returns a channel of messages for the given pub/sub channel
	// and a cancel function that releases the subscription.
	Subscribe(ctx context.Context, channel string) (<-chan string, func(), error)
	// Ping verifies connectivity.
	Ping(ctx context.Context) error
}
