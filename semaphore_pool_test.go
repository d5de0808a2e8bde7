package vcm

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func TestSemaphorePoolRecycle(t *testing.T) {
	device := &fakeDevice{}
	pool := newSemaphorePool(testLogger(), device, true)

	first, res, err := pool.Acquire()
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	second, _, err := pool.Acquire()
	require.NoError(t, err)
	require.Len(t, device.semaphores, 2)

	require.NoError(t, pool.Release(first))
	require.Equal(t, PoolStats{Available: 1, InUse: 1, Created: 2}, pool.Stats())

	recycled, _, err := pool.Acquire()
	require.NoError(t, err)
	require.Same(t, first.(*fakeSemaphore), recycled.(*fakeSemaphore))
	require.Len(t, device.semaphores, 2)

	require.NoError(t, pool.Release(second))
	require.NoError(t, pool.Release(recycled))
	require.Equal(t, PoolStats{Available: 2, InUse: 0, Created: 2}, pool.Stats())
}

func TestSemaphorePoolUntrackedRelease(t *testing.T) {
	device := &fakeDevice{}
	pool := newSemaphorePool(testLogger(), device, true)

	err := pool.Release(&fakeSemaphore{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSemaphorePoolDestroy(t *testing.T) {
	device := &fakeDevice{}
	pool := newSemaphorePool(testLogger(), device, true)

	held, _, err := pool.Acquire()
	require.NoError(t, err)

	require.NoError(t, pool.Destroy())
	require.True(t, held.(*fakeSemaphore).destroyed)

	require.ErrorIs(t, pool.Destroy(), ErrDestroyed)
	_, _, err = pool.Acquire()
	require.ErrorIs(t, err, ErrDestroyed)
}

// A device that destroys the pool between Acquire's unlocked native create
// and its bookkeeping relock.
type semaphoreDestroyRacingDevice struct {
	fakeDevice
	pool *SemaphorePool
}

func (d *semaphoreDestroyRacingDevice) CreateSemaphore() (Semaphore, common.VkResult, error) {
	semaphore, res, err := d.fakeDevice.CreateSemaphore()
	_ = d.pool.Destroy()
	return semaphore, res, err
}

func TestSemaphorePoolDestroyRacingAcquire(t *testing.T) {
	device := &semaphoreDestroyRacingDevice{}
	pool := newSemaphorePool(testLogger(), device, true)
	device.pool = pool

	_, _, err := pool.Acquire()
	require.ErrorIs(t, err, ErrDestroyed)

	// The destroyed pool never tracked the fresh semaphore, so Acquire must
	// destroy it rather than leak it.
	require.Len(t, device.semaphores, 1)
	require.True(t, device.semaphores[0].destroyed)
	require.Equal(t, PoolStats{}, pool.Stats())
}
