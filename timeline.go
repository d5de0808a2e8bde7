package vcm

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// TimelineSemaphore exposes a monotonically increasing counter through a
// single semaphore object. The lastSignaled value is a local cache of the
// last value this process signaled- it is not authoritative, because other
// queues may advance the counter. Use CounterValue for cross-thread
// observation.
type TimelineSemaphore struct {
	logger *slog.Logger
	handle TimelineSemaphoreHandle

	lastSignaled atomic.Uint64
}

func newTimelineSemaphore(logger *slog.Logger, handle TimelineSemaphoreHandle, initialValue uint64) *TimelineSemaphore {
	semaphore := &TimelineSemaphore{
		logger: logger,
		handle: handle,
	}
	semaphore.lastSignaled.Store(initialValue)
	return semaphore
}

// Signal advances the counter to value from the host. Timeline counters only
// move forward: signaling a value at or below the last host-signaled value is
// a state violation and is rejected before touching the device.
func (s *TimelineSemaphore) Signal(value uint64) (common.VkResult, error) {
	s.logger.Debug("TimelineSemaphore::Signal")

	if last := s.lastSignaled.Load(); value <= last {
		return core1_0.VKErrorUnknown, errors.Wrapf(ErrInvalidState,
			"timeline value %d does not advance the counter past %d", value, last)
	}

	res, err := s.handle.Signal(value)
	if err != nil {
		return res, errors.Wrapf(err, "failed to signal timeline value %d", value)
	}

	// The cache advances only once the device has accepted the signal, so a
	// failed signal can be retried with the same value.
	for {
		last := s.lastSignaled.Load()
		if value <= last || s.lastSignaled.CompareAndSwap(last, value) {
			break
		}
	}
	return res, nil
}

// Wait blocks until the counter reaches value or the timeout elapses. Timeout
// is reported as an error matching ErrTimeout and is retryable.
func (s *TimelineSemaphore) Wait(value uint64, timeout time.Duration) (common.VkResult, error) {
	s.logger.Debug("TimelineSemaphore::Wait")

	res, err := s.handle.WaitValue(value, timeout)
	if err != nil {
		return res, errors.Wrapf(err, "failed to wait for timeline value %d", value)
	}
	if res == core1_0.VKTimeout {
		return res, errors.Wrapf(ErrTimeout, "timeline counter did not reach %d within %s", value, timeout)
	}
	return res, nil
}

// CounterValue queries the authoritative counter from the device.
func (s *TimelineSemaphore) CounterValue() (uint64, common.VkResult, error) {
	return s.handle.CounterValue()
}

// LastSignaled returns the cached last value signaled by this process.
func (s *TimelineSemaphore) LastSignaled() uint64 {
	return s.lastSignaled.Load()
}

// Destroy destroys the underlying semaphore object.
func (s *TimelineSemaphore) Destroy() {
	s.logger.Debug("TimelineSemaphore::Destroy")
	s.handle.Destroy()
}
