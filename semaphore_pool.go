package vcm

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/vcm/internal/utils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// SemaphorePool is the binary-semaphore counterpart of FencePool. Semaphores
// have no host-visible state to reset, so recycling is a plain free-list. The
// caller is responsible for only releasing semaphores whose last submitted
// wait has completed.
type SemaphorePool struct {
	logger *slog.Logger
	device Device

	mutex     utils.OptionalMutex
	available []Semaphore
	inUse     []Semaphore
	created   int
	destroyed bool
}

func newSemaphorePool(logger *slog.Logger, device Device, useMutex bool) *SemaphorePool {
	return &SemaphorePool{
		logger: logger,
		device: device,
		mutex:  utils.OptionalMutex{UseMutex: useMutex},
	}
}

// Acquire returns a semaphore from the available list, creating a new one if
// the list is empty.
func (p *SemaphorePool) Acquire() (Semaphore, common.VkResult, error) {
	p.logger.Debug("SemaphorePool::Acquire")

	p.mutex.Lock()
	if p.destroyed {
		p.mutex.Unlock()
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrDestroyed, "SemaphorePool::Acquire")
	}

	if count := len(p.available); count > 0 {
		semaphore := p.available[count-1]
		p.available = p.available[:count-1]
		p.inUse = append(p.inUse, semaphore)
		p.mutex.Unlock()
		return semaphore, core1_0.VKSuccess, nil
	}
	p.mutex.Unlock()

	semaphore, res, err := p.device.CreateSemaphore()
	if err != nil {
		return nil, res, errors.Wrapf(ErrResourceCreation, "vkCreateSemaphore returned %s", res.String())
	}

	p.mutex.Lock()
	if p.destroyed {
		// Destroy raced the unlocked native create and already tore down the
		// lists, so this semaphore must not be tracked or leaked.
		p.mutex.Unlock()
		semaphore.Destroy()
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrDestroyed, "SemaphorePool::Acquire")
	}
	p.created++
	p.inUse = append(p.inUse, semaphore)
	p.mutex.Unlock()

	return semaphore, res, nil
}

// Release moves a semaphore from the in-use list back to the available list.
// Untracked semaphores are logged and left alone.
func (p *SemaphorePool) Release(semaphore Semaphore) error {
	p.logger.Debug("SemaphorePool::Release")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.destroyed {
		return errors.Wrap(ErrDestroyed, "SemaphorePool::Release")
	}

	for i, inUse := range p.inUse {
		if inUse == semaphore {
			p.inUse[i] = p.inUse[len(p.inUse)-1]
			p.inUse = p.inUse[:len(p.inUse)-1]
			p.available = append(p.available, semaphore)
			return nil
		}
	}

	p.logger.Error("SemaphorePool::Release called with a semaphore this pool is not tracking as in-use")
	return errors.Wrap(ErrNotFound, "SemaphorePool::Release")
}

// Stats returns a snapshot of the pool's bookkeeping counts.
func (p *SemaphorePool) Stats() PoolStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return PoolStats{
		Available: len(p.available),
		InUse:     len(p.inUse),
		Created:   p.created,
	}
}

// BuildStatsString writes the pool's counts as a JSON object.
func (p *SemaphorePool) BuildStatsString(writer *jwriter.Writer) {
	stats := p.Stats()
	obj := writer.Object()
	stats.printJSON(&obj)
	obj.End()
}

// Destroy destroys every semaphore in both lists exactly once and renders the
// pool unusable.
func (p *SemaphorePool) Destroy() error {
	p.logger.Debug("SemaphorePool::Destroy")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.destroyed {
		return errors.Wrap(ErrDestroyed, "SemaphorePool::Destroy")
	}

	if len(p.inUse) > 0 {
		p.logger.Warn("destroying a semaphore pool that still has semaphores in-use",
			slog.Int("inUse", len(p.inUse)))
	}

	for _, semaphore := range p.available {
		semaphore.Destroy()
	}
	for _, semaphore := range p.inUse {
		semaphore.Destroy()
	}
	p.available = nil
	p.inUse = nil
	p.destroyed = true

	return nil
}
