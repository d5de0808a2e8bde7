package vcm

import (
	"io"
	"log/slog"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// A fence whose signaled state is flipped by hand from the test.
type fakeFence struct {
	signaled  bool
	resets    int
	waits     int
	destroyed bool

	resetErr error
	waitErr  error
}

func (f *fakeFence) Wait(timeout time.Duration) (common.VkResult, error) {
	f.waits++
	if f.waitErr != nil {
		return core1_0.VKErrorUnknown, f.waitErr
	}
	if f.signaled {
		return core1_0.VKSuccess, nil
	}
	return core1_0.VKTimeout, nil
}

func (f *fakeFence) Status() (common.VkResult, error) {
	if f.signaled {
		return core1_0.VKSuccess, nil
	}
	return core1_0.VKNotReady, nil
}

func (f *fakeFence) Reset() (common.VkResult, error) {
	if f.resetErr != nil {
		return core1_0.VKErrorUnknown, f.resetErr
	}
	f.signaled = false
	f.resets++
	return core1_0.VKSuccess, nil
}

func (f *fakeFence) Destroy() { f.destroyed = true }

type fakeSemaphore struct {
	destroyed bool
}

func (s *fakeSemaphore) Destroy() { s.destroyed = true }

// A timeline semaphore whose counter lives in host memory.
type fakeTimeline struct {
	value     uint64
	signalErr error
	destroyed bool
}

func (t *fakeTimeline) Signal(value uint64) (common.VkResult, error) {
	if t.signalErr != nil {
		return core1_0.VKErrorUnknown, t.signalErr
	}
	t.value = value
	return core1_0.VKSuccess, nil
}

func (t *fakeTimeline) WaitValue(value uint64, timeout time.Duration) (common.VkResult, error) {
	if t.value >= value {
		return core1_0.VKSuccess, nil
	}
	return core1_0.VKTimeout, nil
}

func (t *fakeTimeline) CounterValue() (uint64, common.VkResult, error) {
	return t.value, core1_0.VKSuccess, nil
}

func (t *fakeTimeline) Destroy() { t.destroyed = true }

// A command buffer that counts calls instead of recording anything.
type fakeCommandBuffer struct {
	begins int
	ends   int
	resets int

	bufferCopies      int
	imageCopies       int
	bufferImageCopies int
	imageBufferCopies int

	lastBufferRegions []core1_0.BufferCopy

	beginErr  error
	endErr    error
	resetErr  error
	recordErr error
}

func (b *fakeCommandBuffer) Begin(flags core1_0.CommandBufferUsageFlags) (common.VkResult, error) {
	if b.beginErr != nil {
		return core1_0.VKErrorUnknown, b.beginErr
	}
	b.begins++
	return core1_0.VKSuccess, nil
}

func (b *fakeCommandBuffer) End() (common.VkResult, error) {
	if b.endErr != nil {
		return core1_0.VKErrorUnknown, b.endErr
	}
	b.ends++
	return core1_0.VKSuccess, nil
}

func (b *fakeCommandBuffer) Reset(flags core1_0.CommandBufferResetFlags) (common.VkResult, error) {
	if b.resetErr != nil {
		return core1_0.VKErrorUnknown, b.resetErr
	}
	b.resets++
	return core1_0.VKSuccess, nil
}

func (b *fakeCommandBuffer) CmdCopyBuffer(src Buffer, dst Buffer, regions []core1_0.BufferCopy) error {
	if b.recordErr != nil {
		return b.recordErr
	}
	b.bufferCopies++
	b.lastBufferRegions = regions
	return nil
}

func (b *fakeCommandBuffer) CmdCopyImage(src Image, srcLayout core1_0.ImageLayout, dst Image, dstLayout core1_0.ImageLayout, regions []core1_0.ImageCopy) error {
	if b.recordErr != nil {
		return b.recordErr
	}
	b.imageCopies++
	return nil
}

func (b *fakeCommandBuffer) CmdCopyBufferToImage(src Buffer, dst Image, dstLayout core1_0.ImageLayout, regions []core1_0.BufferImageCopy) error {
	if b.recordErr != nil {
		return b.recordErr
	}
	b.bufferImageCopies++
	return nil
}

func (b *fakeCommandBuffer) CmdCopyImageToBuffer(src Image, srcLayout core1_0.ImageLayout, dst Buffer, regions []core1_0.BufferImageCopy) error {
	if b.recordErr != nil {
		return b.recordErr
	}
	b.imageBufferCopies++
	return nil
}

type fakeCommandPool struct {
	family    int
	allocated []*fakeCommandBuffer
	resets    int
	destroyed bool

	allocErr error
	resetErr error
}

func (p *fakeCommandPool) AllocateCommandBuffer() (CommandBuffer, common.VkResult, error) {
	if p.allocErr != nil {
		return nil, core1_0.VKErrorUnknown, p.allocErr
	}
	buffer := &fakeCommandBuffer{}
	p.allocated = append(p.allocated, buffer)
	return buffer, core1_0.VKSuccess, nil
}

func (p *fakeCommandPool) Reset(flags core1_0.CommandPoolResetFlags) (common.VkResult, error) {
	if p.resetErr != nil {
		return core1_0.VKErrorUnknown, p.resetErr
	}
	p.resets++
	return core1_0.VKSuccess, nil
}

func (p *fakeCommandPool) Destroy() { p.destroyed = true }

type fakeDevice struct {
	fences     []*fakeFence
	semaphores []*fakeSemaphore
	timelines  []*fakeTimeline
	pools      []*fakeCommandPool

	fenceErr     error
	semaphoreErr error
	timelineErr  error
	poolErr      error
}

func (d *fakeDevice) CreateFence(signaled bool) (Fence, common.VkResult, error) {
	if d.fenceErr != nil {
		return nil, core1_0.VKErrorUnknown, d.fenceErr
	}
	fence := &fakeFence{signaled: signaled}
	d.fences = append(d.fences, fence)
	return fence, core1_0.VKSuccess, nil
}

func (d *fakeDevice) CreateSemaphore() (Semaphore, common.VkResult, error) {
	if d.semaphoreErr != nil {
		return nil, core1_0.VKErrorUnknown, d.semaphoreErr
	}
	semaphore := &fakeSemaphore{}
	d.semaphores = append(d.semaphores, semaphore)
	return semaphore, core1_0.VKSuccess, nil
}

func (d *fakeDevice) CreateTimelineSemaphore(initialValue uint64) (TimelineSemaphoreHandle, common.VkResult, error) {
	if d.timelineErr != nil {
		return nil, core1_0.VKErrorUnknown, d.timelineErr
	}
	timeline := &fakeTimeline{value: initialValue}
	d.timelines = append(d.timelines, timeline)
	return timeline, core1_0.VKSuccess, nil
}

func (d *fakeDevice) CreateCommandPool(queueFamilyIndex int) (CommandPool, common.VkResult, error) {
	if d.poolErr != nil {
		return nil, core1_0.VKErrorUnknown, d.poolErr
	}
	pool := &fakeCommandPool{family: queueFamilyIndex}
	d.pools = append(d.pools, pool)
	return pool, core1_0.VKSuccess, nil
}

type fakeQueue struct {
	family int

	submittedFences  []Fence
	submittedBuffers [][]CommandBuffer
	waitIdles        int

	submitErr   error
	waitIdleErr error
}

func (q *fakeQueue) Submit(fence Fence, commandBuffers []CommandBuffer) (common.VkResult, error) {
	if q.submitErr != nil {
		return core1_0.VKErrorUnknown, q.submitErr
	}
	q.submittedFences = append(q.submittedFences, fence)
	q.submittedBuffers = append(q.submittedBuffers, commandBuffers)
	return core1_0.VKSuccess, nil
}

func (q *fakeQueue) WaitIdle() (common.VkResult, error) {
	if q.waitIdleErr != nil {
		return core1_0.VKErrorUnknown, q.waitIdleErr
	}
	q.waitIdles++
	return core1_0.VKSuccess, nil
}

func (q *fakeQueue) FamilyIndex() int { return q.family }

// signalAll marks every fence handed to Submit as signaled, simulating the
// GPU finishing all submitted work.
func (q *fakeQueue) signalAll() {
	for _, fence := range q.submittedFences {
		if fake, ok := fence.(*fakeFence); ok {
			fake.signaled = true
		}
	}
}

// A host-memory staging allocation the upload helpers can map and fill.
type fakeAllocation struct {
	data []byte

	mapped          bool
	unmapped        bool
	flushes         int
	freed           bool
	bufferDestroyed bool
	destroys        int

	mapErr   error
	flushErr error
}

func (a *fakeAllocation) Memory() core1_0.DeviceMemory { return nil }
func (a *fakeAllocation) FindOffset() int              { return 0 }

func (a *fakeAllocation) Map() (unsafe.Pointer, common.VkResult, error) {
	if a.mapErr != nil {
		return nil, core1_0.VKErrorUnknown, a.mapErr
	}
	a.mapped = true
	return unsafe.Pointer(&a.data[0]), core1_0.VKSuccess, nil
}

func (a *fakeAllocation) Unmap() error {
	a.unmapped = true
	return nil
}

func (a *fakeAllocation) Flush(offset, size int) (common.VkResult, error) {
	if a.flushErr != nil {
		return core1_0.VKErrorUnknown, a.flushErr
	}
	a.flushes++
	return core1_0.VKSuccess, nil
}

// DestroyBuffer destroys the buffer and frees the allocation in one call,
// like *vam.Allocation does. A second call is a double-free and fails loudly.
func (a *fakeAllocation) DestroyBuffer(buffer Buffer) error {
	if a.freed {
		return errors.New("the staging allocation was already freed")
	}
	a.bufferDestroyed = true
	a.freed = true
	a.destroys++
	return nil
}

type fakeStagingAllocator struct {
	allocations []*fakeAllocation
	createErr   error
}

func (s *fakeStagingAllocator) CreateStagingBuffer(size int) (Buffer, Allocation, common.VkResult, error) {
	if s.createErr != nil {
		return nil, nil, core1_0.VKErrorUnknown, s.createErr
	}
	allocation := &fakeAllocation{data: make([]byte, size)}
	s.allocations = append(s.allocations, allocation)
	return nil, allocation, core1_0.VKSuccess, nil
}
