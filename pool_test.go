package bpush_test

import (
	"sync"
	"testing"

	"github.com/advdv/bpush"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counter struct {
	n     int
	reset int
}

func (c *counter) Reset() { c.n = 0; c.reset++ }

func TestPoolReuse(t *testing.T) {
	pool := bpush.NewPool(func() *counter { return &counter{} })

	c1, err := pool.Borrow()
	require.NoError(t, err)
	c1.n = 42

	require.NoError(t, pool.Release(c1))

	c2, err := pool.Borrow()
	require.NoError(t, err)
	require.Same(t, c1, c2)
	require.Zero(t, c2.n, "no residual state after re-borrow")
	require.Equal(t, 1, c2.reset)

	assert.Equal(t, bpush.PoolStats{Created: 1, Idle: 0, Lent: 1}, pool.Stats())
}

func TestPoolGrowsWithoutBlocking(t *testing.T) {
	pool := bpush.NewPool(func() *counter { return &counter{} })

	a, err := pool.Borrow()
	require.NoError(t, err)
	b, err := pool.Borrow()
	require.NoError(t, err)
	require.NotSame(t, a, b)

	assert.Equal(t, bpush.PoolStats{Created: 2, Idle: 0, Lent: 2}, pool.Stats())
}

func TestPoolDoubleRelease(t *testing.T) {
	pool := bpush.NewPool(func() *counter { return &counter{} })

	c, err := pool.Borrow()
	require.NoError(t, err)
	require.NoError(t, pool.Release(c))
	require.ErrorIs(t, pool.Release(c), bpush.ErrNotBorrowed)
	require.ErrorIs(t, pool.Release(&counter{}), bpush.ErrNotBorrowed)

	assert.Equal(t, 1, pool.Stats().Idle)
}

func TestPoolFactoryFaults(t *testing.T) {
	t.Run("panic", func(t *testing.T) {
		pool := bpush.NewPool(func() *counter { panic("no more") })

		_, err := pool.Borrow()
		require.ErrorContains(t, err, "pool factory panicked: no more")
		assert.Zero(t, pool.Stats().Created)
	})

	t.Run("nil instance", func(t *testing.T) {
		pool := bpush.NewPool(func() *counter { return nil })

		_, err := pool.Borrow()
		require.ErrorContains(t, err, "zero instance")
	})
}

type badReset struct{ x int }

func (*badReset) Reset() { panic("cannot reset") }

func TestPoolDropsInstanceWithPanickingReset(t *testing.T) {
	pool := bpush.NewPool(func() *badReset { return &badReset{} })

	b, err := pool.Borrow()
	require.NoError(t, err)
	require.ErrorContains(t, pool.Release(b), "cannot reset")

	assert.Equal(t, bpush.PoolStats{Created: 1, Idle: 0, Lent: 0}, pool.Stats())
}

func TestPoolConcurrentBorrowers(t *testing.T) {
	pool := bpush.NewPool(func() *counter { return &counter{} })

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for range 100 {
				c, err := pool.Borrow()
				if !assert.NoError(t, err) {
					return
				}

				if !assert.Zero(t, c.n, "instance must be exclusively owned") {
					return
				}

				c.n++
				c.n--
				c.n = 1

				assert.NoError(t, pool.Release(c))
			}
		}()
	}

	wg.Wait()

	stats := pool.Stats()
	assert.Zero(t, stats.Lent)
	assert.Equal(t, stats.Created, stats.Idle)
	assert.LessOrEqual(t, stats.Created, 16)
}
