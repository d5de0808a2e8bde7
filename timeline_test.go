package vcm

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func TestTimelineSemaphoreSignalAdvances(t *testing.T) {
	handle := &fakeTimeline{value: 5}
	semaphore := newTimelineSemaphore(testLogger(), handle, 5)

	res, err := semaphore.Signal(9)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, uint64(9), semaphore.LastSignaled())
	require.Equal(t, uint64(9), handle.value)

	value, _, err := semaphore.CounterValue()
	require.NoError(t, err)
	require.Equal(t, uint64(9), value)
}

func TestTimelineSemaphoreRejectsNonMonotonicSignal(t *testing.T) {
	handle := &fakeTimeline{value: 5}
	semaphore := newTimelineSemaphore(testLogger(), handle, 5)

	_, err := semaphore.Signal(5)
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = semaphore.Signal(3)
	require.ErrorIs(t, err, ErrInvalidState)

	// The device never saw either attempt.
	require.Equal(t, uint64(5), handle.value)
	require.Equal(t, uint64(5), semaphore.LastSignaled())
}

func TestTimelineSemaphoreFailedSignalIsRetryable(t *testing.T) {
	handle := &fakeTimeline{value: 5, signalErr: errors.New("device lost")}
	semaphore := newTimelineSemaphore(testLogger(), handle, 5)

	_, err := semaphore.Signal(9)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrInvalidState)

	// The failed signal must not advance the cache, or the retry below
	// would be rejected as non-monotonic.
	require.Equal(t, uint64(5), semaphore.LastSignaled())

	handle.signalErr = nil
	_, err = semaphore.Signal(9)
	require.NoError(t, err)
	require.Equal(t, uint64(9), semaphore.LastSignaled())
	require.Equal(t, uint64(9), handle.value)
}

func TestTimelineSemaphoreWait(t *testing.T) {
	handle := &fakeTimeline{value: 5}
	semaphore := newTimelineSemaphore(testLogger(), handle, 5)

	res, err := semaphore.Wait(5, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)

	res, err = semaphore.Wait(6, time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, core1_0.VKTimeout, res)

	handle.value = 6
	_, err = semaphore.Wait(6, time.Millisecond)
	require.NoError(t, err)
}

func TestTimelineSemaphoreDestroy(t *testing.T) {
	handle := &fakeTimeline{}
	semaphore := newTimelineSemaphore(testLogger(), handle, 0)
	semaphore.Destroy()
	require.True(t, handle.destroyed)
}
