package resource

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(50))
	require.NoError(t, c.AcquireMemory(40))
	assert.Equal(t, int64(90), c.MemoryUsage())

	err := c.AcquireMemory(20)
	assert.ErrorIs(t, err, ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), c.MemoryUsage())

	c.ReleaseMemory(50)
	assert.Equal(t, int64(40), c.MemoryUsage())
	require.NoError(t, c.AcquireMemory(20))
	assert.Equal(t, int64(60), c.MemoryUsage())
}

func TestController_UnlimitedMemory(t *testing.T) {
	c := NewController(Config{})
	require.NoError(t, c.AcquireMemory(1000))
	assert.Equal(t, int64(1000), c.MemoryUsage())
	c.ReleaseMemory(500)
	assert.Equal(t, int64(500), c.MemoryUsage())
	assert.Zero(t, c.MemoryLimit())
}

func TestCharge(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})
	ch := c.NewCharge()
	require.NoError(t, ch.Add(60))
	require.NoError(t, ch.Add(30))
	assert.ErrorIs(t, ch.Add(20), ErrMemoryLimitExceeded)
	assert.Equal(t, int64(90), ch.Bytes())

	ch.Release()
	assert.Zero(t, c.MemoryUsage())
	assert.Zero(t, ch.Bytes())
}

func TestController_Background(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 1})
	require.NoError(t, c.AcquireBackground(context.Background()))
	assert.False(t, c.TryAcquireBackground())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireBackground(ctx))

	c.ReleaseBackground()
	assert.True(t, c.TryAcquireBackground())
}

func TestController_RowsLargerThanBurst(t *testing.T) {
	c := NewController(Config{RowsPerSec: 1_000_000})
	require.NoError(t, c.AcquireRows(context.Background(), 1_500_000))
}

func TestController_NilChecks(t *testing.T) {
	var c *Controller
	assert.NoError(t, c.AcquireMemory(10))
	assert.NoError(t, c.AcquireRows(context.Background(), 10))
	assert.NoError(t, c.AcquireIO(context.Background(), 10))
	assert.True(t, c.TryAcquireIO(10))
	assert.True(t, c.TryAcquireBackground())
	c.ReleaseMemory(10)
	c.ReleaseBackground()
	ch := c.NewCharge()
	require.NoError(t, ch.Add(5))
	ch.Release()
}

func TestRateLimitedReader(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 512)
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	r := NewRateLimitedReader(context.Background(), bytes.NewReader(data), c)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	plain := bytes.NewReader(data)
	assert.Same(t, plain, NewRateLimitedReader(context.Background(), plain, nil))
}
