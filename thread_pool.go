package vcm

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// ThreadPool owns one native command pool plus two collections: allocated
// (every buffer ever created, for bulk reset) and free (ready to hand out).
// A ThreadPool belongs to a single goroutine and performs no locking of its
// own- that is the core scaling property of the command manager. The
// QueueCommandManager that created it guarantees each goroutine gets its own
// instance.
type ThreadPool struct {
	logger *slog.Logger
	pool   CommandPool

	allocated []*ManagedCommandBuffer
	free      []*ManagedCommandBuffer
}

func newThreadPool(logger *slog.Logger, pool CommandPool) *ThreadPool {
	return &ThreadPool{
		logger: logger,
		pool:   pool,
	}
}

// Acquire pops a buffer from the free list, resetting it for reuse, or
// allocates a new one from the native pool if the list is empty. Reuse keeps
// native allocation off the hot path.
func (p *ThreadPool) Acquire() (*ManagedCommandBuffer, common.VkResult, error) {
	if count := len(p.free); count > 0 {
		buffer := p.free[count-1]
		p.free = p.free[:count-1]

		if buffer.state != CommandBufferInitial {
			res, err := buffer.Reset()
			if err != nil {
				// The wrapper stays allocated but is not handed out.
				p.free = append(p.free, buffer)
				return nil, res, err
			}
		}
		return buffer, core1_0.VKSuccess, nil
	}

	handle, res, err := p.pool.AllocateCommandBuffer()
	if err != nil {
		return nil, res, errors.Wrapf(ErrResourceCreation, "vkAllocateCommandBuffers returned %s", res.String())
	}

	buffer := &ManagedCommandBuffer{
		logger: p.logger,
		handle: handle,
		owner:  p,
		state:  CommandBufferInitial,
	}
	p.allocated = append(p.allocated, buffer)
	return buffer, res, nil
}

// Release returns a buffer to the free list. The caller must not use the
// buffer afterward. Releasing a pending buffer is a state violation- it is
// still referenced by an unresolved submission. Releasing a buffer that is
// already in the free list is rejected as untracked.
func (p *ThreadPool) Release(buffer *ManagedCommandBuffer) error {
	if buffer.owner != p {
		p.logger.Error("ThreadPool::Release called with a command buffer from another pool")
		return errors.Wrap(ErrNotFound, "ThreadPool::Release")
	}
	if buffer.state == CommandBufferPending {
		return errors.Wrap(ErrInvalidState, "cannot release a command buffer that is pending on the GPU")
	}
	for _, pooled := range p.free {
		if pooled == buffer {
			// A duplicate free-list entry would hand the buffer out twice.
			p.logger.Error("ThreadPool::Release called with a command buffer that was already released")
			return errors.Wrap(ErrNotFound, "ThreadPool::Release")
		}
	}

	p.free = append(p.free, buffer)
	return nil
}

// ResetAll resets the entire native pool in one call and repopulates the free
// list with every buffer ever allocated. Any buffer a caller forgot to
// release is invalidated by this- it is a bulk end-of-frame recovery
// operation, not a substitute for per-buffer release.
func (p *ThreadPool) ResetAll() (common.VkResult, error) {
	res, err := p.pool.Reset(0)
	if err != nil {
		return res, errors.Wrap(err, "vkResetCommandPool failed")
	}

	p.free = p.free[:0]
	for _, buffer := range p.allocated {
		buffer.state = CommandBufferInitial
		p.free = append(p.free, buffer)
	}
	return res, nil
}

// Stats returns a snapshot of the pool's bookkeeping counts.
func (p *ThreadPool) Stats() PoolStats {
	return PoolStats{
		Available: len(p.free),
		InUse:     len(p.allocated) - len(p.free),
		Created:   len(p.allocated),
	}
}

func (p *ThreadPool) printJSON(json *jwriter.ObjectState) {
	stats := p.Stats()
	stats.printJSON(json)
}

// destroy tears down the native pool, which frees every buffer allocated from
// it in one call.
func (p *ThreadPool) destroy() {
	p.pool.Destroy()
	p.allocated = nil
	p.free = nil
}
