package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedisOptionsCarryCredentials(t *testing.T) {
	options := redisOptions("redis.internal:6379", "s3cret", 2)

	assert.Equal(t, "redis.internal:6379", options.Addr)
	assert.Equal(t, "s3cret", options.Password)
	assert.Equal(t, 2, options.DB)
}

func TestRedisOptionsUnauthenticated(t *testing.T) {
	options := redisOptions("localhost:6379", "", 0)

	assert.Empty(t, options.Password)
	assert.Equal(t, 0, options.DB)
}
