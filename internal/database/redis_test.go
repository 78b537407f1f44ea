package database

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClients(t *testing.T) {
	mr := miniredis.RunT(t)

	clients, err := NewRedisClients("redis://" + mr.Addr())
	require.NoError(t, err)
	defer clients.Close()

	assert.NotSame(t, clients.Queue, clients.PubSub)
}

func TestNewRedisClients_BadURL(t *testing.T) {
	_, err := NewRedisClients("not a url")
	assert.Error(t, err)
}
