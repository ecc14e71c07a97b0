package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_Pings(t *testing.T) {
	rdb := setupTestClient(t)

	pong, err := rdb.Ping(context.Background()).Result()
	require.NoError(t, err)
	assert.Equal(t, "PONG", pong)
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(context.Background(), "not-a-redis-url", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse redis URL")
}
