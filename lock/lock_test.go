package lock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	release, err := l.Acquire(ctx)
	require.NoError(t, err)

	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, ErrHeld)

	release()
	release()

	release, err = l.Acquire(ctx)
	require.NoError(t, err)
	release()
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	_, err := NewRedis(context.Background(), "not-a-url")
	assert.Error(t, err)
}
