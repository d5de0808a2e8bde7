package vcm

import (
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/vcm/internal/utils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// FencePool is a recyclable store of fences. Every fence the pool has ever
// created is in exactly one of two lists: available (ready to hand out) or
// in-use. The pool is safe for concurrent use- a submitting goroutine and a
// polling goroutine commonly share one.
type FencePool struct {
	logger *slog.Logger
	device Device

	mutex     utils.OptionalMutex
	available []Fence
	inUse     []Fence
	created   int
	destroyed bool
}

func newFencePool(logger *slog.Logger, device Device, useMutex bool) *FencePool {
	return &FencePool{
		logger: logger,
		device: device,
		mutex:  utils.OptionalMutex{UseMutex: useMutex},
	}
}

// Acquire returns a fence from the available list, or creates a new one if
// the list is empty. Recycled fences are reset to the unsignaled state before
// they are handed out; the signaled argument only affects newly-created
// fences. The returned fence is tracked as in-use until Release.
func (p *FencePool) Acquire(signaled bool) (Fence, common.VkResult, error) {
	p.logger.Debug("FencePool::Acquire")

	p.mutex.Lock()
	if p.destroyed {
		p.mutex.Unlock()
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrDestroyed, "FencePool::Acquire")
	}

	var fence Fence
	if count := len(p.available); count > 0 {
		fence = p.available[count-1]
		p.available = p.available[:count-1]
	}
	p.mutex.Unlock()

	// Native calls happen outside the list mutex.
	createdNew := false
	if fence != nil {
		res, err := fence.Reset()
		if err != nil {
			p.mutex.Lock()
			if p.destroyed {
				p.mutex.Unlock()
				fence.Destroy()
			} else {
				p.available = append(p.available, fence)
				p.mutex.Unlock()
			}
			return nil, res, errors.Wrap(err, "failed to reset a recycled fence")
		}
	} else {
		var res common.VkResult
		var err error
		fence, res, err = p.device.CreateFence(signaled)
		if err != nil {
			return nil, res, errors.Wrapf(ErrResourceCreation, "vkCreateFence returned %s", res.String())
		}
		createdNew = true
	}

	p.mutex.Lock()
	if p.destroyed {
		// Destroy raced the unlocked native call and already tore down the
		// lists, so this fence must not be tracked or leaked.
		p.mutex.Unlock()
		fence.Destroy()
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrDestroyed, "FencePool::Acquire")
	}
	if createdNew {
		p.created++
	}
	p.inUse = append(p.inUse, fence)
	p.mutex.Unlock()

	return fence, core1_0.VKSuccess, nil
}

// Release moves a fence from the in-use list back to the available list. If
// the fence is not tracked as in-use this is a caller bug: the pool logs it
// and leaves its state untouched rather than risk handing the same fence out
// twice.
func (p *FencePool) Release(fence Fence) error {
	p.logger.Debug("FencePool::Release")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.destroyed {
		return errors.Wrap(ErrDestroyed, "FencePool::Release")
	}

	for i, inUse := range p.inUse {
		if inUse == fence {
			p.inUse[i] = p.inUse[len(p.inUse)-1]
			p.inUse = p.inUse[:len(p.inUse)-1]
			p.available = append(p.available, fence)
			return nil
		}
	}

	p.logger.Error("FencePool::Release called with a fence this pool is not tracking as in-use")
	return errors.Wrap(ErrNotFound, "FencePool::Release")
}

// WaitAndRelease blocks until the fence signals or the timeout elapses, then
// releases it back to the pool. On timeout the fence remains in-use and the
// returned error matches ErrTimeout, so the caller can retry the wait without
// treating it as fatal. The native wait happens outside the pool mutex.
func (p *FencePool) WaitAndRelease(fence Fence, timeout time.Duration) (common.VkResult, error) {
	p.logger.Debug("FencePool::WaitAndRelease")

	res, err := fence.Wait(timeout)
	if err != nil {
		return res, errors.Wrap(err, "failed to wait for fence")
	}
	if res == core1_0.VKTimeout {
		return res, errors.Wrapf(ErrTimeout, "fence did not signal within %s", timeout)
	}

	return res, p.Release(fence)
}

// Stats returns a snapshot of the pool's bookkeeping counts.
func (p *FencePool) Stats() PoolStats {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return PoolStats{
		Available: len(p.available),
		InUse:     len(p.inUse),
		Created:   p.created,
	}
}

// BuildStatsString writes the pool's counts as a JSON object.
func (p *FencePool) BuildStatsString(writer *jwriter.Writer) {
	stats := p.Stats()
	obj := writer.Object()
	stats.printJSON(&obj)
	obj.End()
}

// Destroy destroys every fence in both lists exactly once and renders the
// pool unusable. Fences still in-use are destroyed as well- callers must make
// sure no submission still references them.
func (p *FencePool) Destroy() error {
	p.logger.Debug("FencePool::Destroy")

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.destroyed {
		return errors.Wrap(ErrDestroyed, "FencePool::Destroy")
	}

	if len(p.inUse) > 0 {
		p.logger.Warn("destroying a fence pool that still has fences in-use",
			slog.Int("inUse", len(p.inUse)))
	}

	for _, fence := range p.available {
		fence.Destroy()
	}
	for _, fence := range p.inUse {
		fence.Destroy()
	}
	p.available = nil
	p.inUse = nil
	p.destroyed = true

	return nil
}
