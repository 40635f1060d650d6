package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := newRedisCache([]string{mr.Addr()})
	require.NoError(t, err)
	return c
}

func TestSetAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	err := c.Set(ctx, "availability:car_1", "calendar", 10*time.Minute)
	assert.NoError(t, err)

	var got string
	err = c.Get(ctx, "availability:car_1", &got)
	assert.NoError(t, err)
	assert.Equal(t, "calendar", got)
}

func TestGetMissIsNotAnError(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var got string
	err := c.Get(ctx, "availability:missing", &got)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Set(ctx, "availability:car_2", "calendar", 10*time.Minute))
	assert.NoError(t, c.Delete(ctx, "availability:car_2"))

	var got string
	assert.NoError(t, c.Get(ctx, "availability:car_2", &got))
	assert.Empty(t, got)
}
