package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/storage/postgres"
)

func TestOpenUnreachable(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:          "127.0.0.1",
		Port:          1,
		User:          "nobody",
		Name:          "nothing",
		SSLMode:       "disable",
		MaxConns:      1,
		HealthTimeout: 500 * time.Millisecond,
	}
	start := time.Now()
	pool, err := postgres.Open(context.Background(), cfg)
	require.Error(t, err)
	assert.Nil(t, pool)
	assert.Contains(t, err.Error(), "127.0.0.1:1 not ready")
	assert.Less(t, time.Since(start), 5*time.Second)
}
