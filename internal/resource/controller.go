package resource

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when memory limit would be exceeded.
var ErrMemoryLimitExceeded = errors.New("memory limit exceeded")

// Config holds resource limits.
type Config struct {
	// MemoryLimitBytes is the hard limit for memory held by pending
	// corrections. If 0, usage is only tracked.
	MemoryLimitBytes int64

	// MaxBackgroundWorkers is the maximum number of concurrent maintenance
	// jobs. If 0, defaults to 1.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec bounds backup copy throughput. If 0, unlimited.
	IOLimitBytesPerSec int64

	// RowsPerSec bounds the rate of corrected index rows. If 0, unlimited.
	RowsPerSec int64
}

// Controller manages the resources of maintenance work.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	bgSem *semaphore.Weighted

	ioLimiter  *rate.Limiter
	rowLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}

	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	if cfg.RowsPerSec > 0 {
		c.rowLimiter = rate.NewLimiter(rate.Limit(cfg.RowsPerSec), int(cfg.RowsPerSec))
	}

	return c
}

// Config returns the limits the controller was created with.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireMemory reserves memory without blocking. It returns
// ErrMemoryLimitExceeded if the limit would be exceeded.
func (c *Controller) AcquireMemory(bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil && !c.memSem.TryAcquire(bytes) {
		return ErrMemoryLimitExceeded
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the current memory usage in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the configured memory limit in bytes (0 if unlimited).
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireBackground reserves a maintenance slot, blocking while all slots
// are busy.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.bgSem.Acquire(ctx, 1)
}

// TryAcquireBackground reserves a maintenance slot without blocking.
func (c *Controller) TryAcquireBackground() bool {
	if c == nil {
		return true
	}
	return c.bgSem.TryAcquire(1)
}

// ReleaseBackground releases a maintenance slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgSem.Release(1)
}

// AcquireIO waits until the IO limit allows n bytes.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil {
		return nil
	}
	return waitN(ctx, c.ioLimiter, n)
}

// TryAcquireIO acquires IO tokens without blocking.
func (c *Controller) TryAcquireIO(n int) bool {
	if c == nil || c.ioLimiter == nil {
		return true
	}
	return c.ioLimiter.AllowN(time.Now(), n)
}

// AcquireRows waits until the row limit allows n corrected rows.
func (c *Controller) AcquireRows(ctx context.Context, n int) error {
	if c == nil {
		return nil
	}
	return waitN(ctx, c.rowLimiter, n)
}

// waitN splits n into burst sized chunks; rate.Limiter rejects requests
// larger than its burst.
func waitN(ctx context.Context, l *rate.Limiter, n int) error {
	if l == nil || n <= 0 {
		return nil
	}
	burst := l.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := l.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Charge accumulates memory reservations and releases them at once.
type Charge struct {
	c     *Controller
	bytes int64
}

// NewCharge returns an empty charge against c.
func (c *Controller) NewCharge() *Charge { return &Charge{c: c} }

// Add reserves n more bytes.
func (ch *Charge) Add(n int64) error {
	if err := ch.c.AcquireMemory(n); err != nil {
		return err
	}
	if n > 0 {
		ch.bytes += n
	}
	return nil
}

// Bytes returns the bytes reserved so far.
func (ch *Charge) Bytes() int64 { return ch.bytes }

// Release returns every reserved byte.
func (ch *Charge) Release() {
	ch.c.ReleaseMemory(ch.bytes)
	ch.bytes = 0
}
