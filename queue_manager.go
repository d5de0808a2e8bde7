package vcm

import (
	"log/slog"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/petermattis/goid"
	"github.com/vkngwrapper/arsenal/vcm/internal/utils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// QueueCommandManager multiplexes ThreadPools by calling-goroutine identity.
// The map is guarded by a read/write mutex that covers structural mutation
// only: once a goroutine has obtained its pool, it records into it with no
// further locking. This accepts one extra native pool per goroutine in
// exchange for zero lock contention on the recording hot path.
//
// Callers may cache the *ThreadPool returned by ThreadPool to skip the map
// lookup entirely, as long as the cached pointer stays on the goroutine that
// looked it up.
type QueueCommandManager struct {
	logger *slog.Logger
	device Device
	queue  Queue

	mutex     utils.OptionalRWMutex
	pools     *swiss.Map[int64, *ThreadPool]
	destroyed bool
}

// NewQueueCommandManager creates a manager whose thread pools allocate from
// the queue's family.
func NewQueueCommandManager(logger *slog.Logger, device Device, queue Queue) *QueueCommandManager {
	return &QueueCommandManager{
		logger: logger,
		device: device,
		queue:  queue,

		// Structural mutation is rare and cross-goroutine, so the map mutex
		// is always on.
		mutex: utils.OptionalRWMutex{UseMutex: true},
		pools: swiss.NewMap[int64, *ThreadPool](8),
	}
}

// Queue returns the queue this manager's pools record for.
func (m *QueueCommandManager) Queue() Queue { return m.queue }

// ThreadPool returns the calling goroutine's pool, creating it lazily on
// first request.
func (m *QueueCommandManager) ThreadPool() (*ThreadPool, common.VkResult, error) {
	id := goid.Get()

	m.mutex.RLock()
	if m.destroyed {
		m.mutex.RUnlock()
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrDestroyed, "QueueCommandManager::ThreadPool")
	}
	pool, ok := m.pools.Get(id)
	m.mutex.RUnlock()
	if ok {
		return pool, core1_0.VKSuccess, nil
	}

	m.logger.Debug("QueueCommandManager::ThreadPool creating pool",
		slog.Int64("goroutine", id), slog.Int("queueFamily", m.queue.FamilyIndex()))

	native, res, err := m.device.CreateCommandPool(m.queue.FamilyIndex())
	if err != nil {
		return nil, res, errors.Wrapf(ErrResourceCreation, "vkCreateCommandPool returned %s", res.String())
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.destroyed {
		native.Destroy()
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrDestroyed, "QueueCommandManager::ThreadPool")
	}
	// Another request from this goroutine cannot have raced us here, but be
	// tolerant of it anyway rather than leak the map entry.
	if existing, ok := m.pools.Get(id); ok {
		native.Destroy()
		return existing, core1_0.VKSuccess, nil
	}

	pool = newThreadPool(m.logger, native)
	m.pools.Put(id, pool)
	return pool, res, nil
}

// Acquire is shorthand for ThreadPool().Acquire().
func (m *QueueCommandManager) Acquire() (*ManagedCommandBuffer, common.VkResult, error) {
	pool, res, err := m.ThreadPool()
	if err != nil {
		return nil, res, err
	}
	return pool.Acquire()
}

// Release returns a buffer to the pool that owns it. Must be called from the
// goroutine that acquired the buffer.
func (m *QueueCommandManager) Release(buffer *ManagedCommandBuffer) error {
	if buffer == nil || buffer.owner == nil {
		return errors.Wrap(ErrNotFound, "QueueCommandManager::Release")
	}
	return buffer.owner.Release(buffer)
}

// ResetAll bulk-resets every thread pool. All worker goroutines must have
// finished recording- this is an end-of-frame (or shutdown) operation that
// invalidates any outstanding buffer.
func (m *QueueCommandManager) ResetAll() error {
	m.logger.Debug("QueueCommandManager::ResetAll")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.destroyed {
		return errors.Wrap(ErrDestroyed, "QueueCommandManager::ResetAll")
	}

	var firstErr error
	m.pools.Iter(func(id int64, pool *ThreadPool) bool {
		_, err := pool.ResetAll()
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return false
	})
	return firstErr
}

// BuildStatsString writes per-goroutine pool counts as a JSON object keyed by
// goroutine id.
func (m *QueueCommandManager) BuildStatsString(writer *jwriter.Writer) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	obj := writer.Object()
	defer obj.End()

	m.pools.Iter(func(id int64, pool *ThreadPool) bool {
		poolObj := obj.Name(strconv.FormatInt(id, 10)).Object()
		pool.printJSON(&poolObj)
		poolObj.End()
		return false
	})
}

// Destroy tears down every thread pool and their native command pools. All
// worker goroutines must have finished with their pools.
func (m *QueueCommandManager) Destroy() error {
	m.logger.Debug("QueueCommandManager::Destroy")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.destroyed {
		return errors.Wrap(ErrDestroyed, "QueueCommandManager::Destroy")
	}

	m.pools.Iter(func(id int64, pool *ThreadPool) bool {
		pool.destroy()
		return false
	})
	m.pools = swiss.NewMap[int64, *ThreadPool](0)
	m.destroyed = true
	return nil
}
