package vcm

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/core/v2/common"
)

// SyncManagerCreateOptions contains optional settings when creating a
// SyncManager. It is valid to leave all the fields blank.
type SyncManagerCreateOptions struct {
	// Flags indicates specific behaviors to activate or deactivate
	Flags CreateFlags
}

// SyncManager owns one fence pool and one semaphore pool for a device, and
// creates timeline semaphores. Unlike the per-thread command pools, the sync
// pools are shared across goroutines (a submitting goroutine and a polling
// goroutine, typically) and every operation takes the pool mutex.
type SyncManager struct {
	logger *slog.Logger
	device Device

	fences     *FencePool
	semaphores *SemaphorePool
}

// NewSyncManager creates a SyncManager for the provided device.
func NewSyncManager(logger *slog.Logger, device Device, options SyncManagerCreateOptions) *SyncManager {
	useMutex := options.Flags&CreateExternallySynchronized == 0

	return &SyncManager{
		logger:     logger,
		device:     device,
		fences:     newFencePool(logger, device, useMutex),
		semaphores: newSemaphorePool(logger, device, useMutex),
	}
}

// FencePool returns the manager's fence pool.
func (m *SyncManager) FencePool() *FencePool { return m.fences }

// SemaphorePool returns the manager's semaphore pool.
func (m *SyncManager) SemaphorePool() *SemaphorePool { return m.semaphores }

// AcquireFence returns a pooled fence, creating one if none are available.
func (m *SyncManager) AcquireFence(signaled bool) (Fence, common.VkResult, error) {
	return m.fences.Acquire(signaled)
}

// ReleaseFence returns a fence to the pool.
func (m *SyncManager) ReleaseFence(fence Fence) error {
	return m.fences.Release(fence)
}

// WaitForFence blocks until the fence signals or the timeout elapses, then
// releases it. On timeout the fence remains in-use and the error matches
// ErrTimeout.
func (m *SyncManager) WaitForFence(fence Fence, timeout time.Duration) (common.VkResult, error) {
	return m.fences.WaitAndRelease(fence, timeout)
}

// AcquireSemaphore returns a pooled semaphore, creating one if none are
// available.
func (m *SyncManager) AcquireSemaphore() (Semaphore, common.VkResult, error) {
	return m.semaphores.Acquire()
}

// ReleaseSemaphore returns a semaphore to the pool.
func (m *SyncManager) ReleaseSemaphore(semaphore Semaphore) error {
	return m.semaphores.Release(semaphore)
}

// CreateTimelineSemaphore creates a timeline semaphore starting at
// initialValue. Timeline semaphores are not pooled- the caller destroys them
// directly when done.
func (m *SyncManager) CreateTimelineSemaphore(initialValue uint64) (*TimelineSemaphore, common.VkResult, error) {
	m.logger.Debug("SyncManager::CreateTimelineSemaphore")

	handle, res, err := m.device.CreateTimelineSemaphore(initialValue)
	if err != nil {
		return nil, res, errors.Wrapf(ErrResourceCreation, "failed to create timeline semaphore: %s", res.String())
	}

	return newTimelineSemaphore(m.logger, handle, initialValue), res, nil
}

// BuildStatsString writes both pools' counts as a JSON object.
func (m *SyncManager) BuildStatsString(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	fenceStats := m.fences.Stats()
	fenceObj := obj.Name("Fences").Object()
	fenceStats.printJSON(&fenceObj)
	fenceObj.End()

	semaphoreStats := m.semaphores.Stats()
	semaphoreObj := obj.Name("Semaphores").Object()
	semaphoreStats.printJSON(&semaphoreObj)
	semaphoreObj.End()
}

// Destroy destroys both pools. It is invalid to use the manager afterward.
func (m *SyncManager) Destroy() error {
	m.logger.Debug("SyncManager::Destroy")

	err := m.fences.Destroy()
	if err != nil {
		return err
	}
	return m.semaphores.Destroy()
}
