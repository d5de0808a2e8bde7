// Package vulkan wires the collaborator interfaces of vcm to real
// vkngwrapper handles. It is the only code in this module that talks to
// Vulkan; everything in the parent package is exercised through interfaces.
package vulkan

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/vcm"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
	"github.com/vkngwrapper/core/v2/core1_2"
	"github.com/vkngwrapper/core/v2/driver"
)

// WrapDevice adapts a vkngwrapper Device to the vcm.Device interface.
// Timeline semaphore creation requires core 1.2; on older devices it fails
// with VKErrorFeatureNotPresent.
func WrapDevice(device core1_0.Device, allocationCallbacks *driver.AllocationCallbacks) vcm.Device {
	return &wrappedDevice{
		device:    device,
		device12:  core1_2.PromoteDevice(device),
		callbacks: allocationCallbacks,
	}
}

// WrapQueue adapts a vkngwrapper Queue to the vcm.Queue interface. The queue
// family index is not recoverable from the handle, so the caller provides it.
func WrapQueue(queue core1_0.Queue, queueFamilyIndex int) vcm.Queue {
	return &wrappedQueue{
		queue:       queue,
		familyIndex: queueFamilyIndex,
	}
}

type wrappedDevice struct {
	device    core1_0.Device
	device12  core1_2.Device
	callbacks *driver.AllocationCallbacks
}

func (d *wrappedDevice) CreateFence(signaled bool) (vcm.Fence, common.VkResult, error) {
	var flags core1_0.FenceCreateFlags
	if signaled {
		flags |= core1_0.FenceCreateSignaled
	}

	fence, res, err := d.device.CreateFence(d.callbacks, core1_0.FenceCreateInfo{
		Flags: flags,
	})
	if err != nil {
		return nil, res, err
	}
	return &wrappedFence{device: d.device, fence: fence, callbacks: d.callbacks}, res, nil
}

func (d *wrappedDevice) CreateSemaphore() (vcm.Semaphore, common.VkResult, error) {
	semaphore, res, err := d.device.CreateSemaphore(d.callbacks, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return nil, res, err
	}
	return &wrappedSemaphore{semaphore: semaphore, callbacks: d.callbacks}, res, nil
}

func (d *wrappedDevice) CreateTimelineSemaphore(initialValue uint64) (vcm.TimelineSemaphoreHandle, common.VkResult, error) {
	if d.device12 == nil {
		return nil, core1_0.VKErrorFeatureNotPresent, errors.New("timeline semaphores require a Vulkan 1.2 device")
	}

	semaphore, res, err := d.device.CreateSemaphore(d.callbacks, core1_0.SemaphoreCreateInfo{
		NextOptions: common.NextOptions{
			Next: core1_2.SemaphoreTypeCreateInfo{
				SemaphoreType: core1_2.SemaphoreTypeTimeline,
				InitialValue:  initialValue,
			},
		},
	})
	if err != nil {
		return nil, res, err
	}

	return &wrappedTimelineSemaphore{
		device12:  d.device12,
		semaphore: semaphore,
		callbacks: d.callbacks,
	}, res, nil
}

func (d *wrappedDevice) CreateCommandPool(queueFamilyIndex int) (vcm.CommandPool, common.VkResult, error) {
	pool, res, err := d.device.CreateCommandPool(d.callbacks, core1_0.CommandPoolCreateInfo{
		// Pooled buffers are reset individually on reuse.
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: queueFamilyIndex,
	})
	if err != nil {
		return nil, res, err
	}
	return &wrappedCommandPool{
		device:    d.device,
		pool:      pool,
		callbacks: d.callbacks,
	}, res, nil
}

type wrappedFence struct {
	device    core1_0.Device
	fence     core1_0.Fence
	callbacks *driver.AllocationCallbacks
}

func (f *wrappedFence) Wait(timeout time.Duration) (common.VkResult, error) {
	return f.device.WaitForFences(true, timeout, []core1_0.Fence{f.fence})
}

func (f *wrappedFence) Status() (common.VkResult, error) {
	return f.fence.Status()
}

func (f *wrappedFence) Reset() (common.VkResult, error) {
	return f.device.ResetFences([]core1_0.Fence{f.fence})
}

func (f *wrappedFence) Destroy() {
	f.fence.Destroy(f.callbacks)
}

type wrappedSemaphore struct {
	semaphore core1_0.Semaphore
	callbacks *driver.AllocationCallbacks
}

func (s *wrappedSemaphore) Destroy() {
	s.semaphore.Destroy(s.callbacks)
}

type wrappedTimelineSemaphore struct {
	device12  core1_2.Device
	semaphore core1_0.Semaphore
	callbacks *driver.AllocationCallbacks
}

func (s *wrappedTimelineSemaphore) Signal(value uint64) (common.VkResult, error) {
	return s.device12.SignalSemaphore(core1_2.SemaphoreSignalInfo{
		Semaphore: s.semaphore,
		Value:     value,
	})
}

func (s *wrappedTimelineSemaphore) WaitValue(value uint64, timeout time.Duration) (common.VkResult, error) {
	return s.device12.WaitSemaphores(timeout, core1_2.SemaphoreWaitInfo{
		Semaphores: []core1_0.Semaphore{s.semaphore},
		Values:     []uint64{value},
	})
}

func (s *wrappedTimelineSemaphore) CounterValue() (uint64, common.VkResult, error) {
	return core1_2.PromoteSemaphore(s.semaphore).CounterValue()
}

func (s *wrappedTimelineSemaphore) Destroy() {
	s.semaphore.Destroy(s.callbacks)
}

type wrappedCommandPool struct {
	device    core1_0.Device
	pool      core1_0.CommandPool
	callbacks *driver.AllocationCallbacks
}

func (p *wrappedCommandPool) AllocateCommandBuffer() (vcm.CommandBuffer, common.VkResult, error) {
	buffers, res, err := p.device.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p.pool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	})
	if err != nil {
		return nil, res, err
	}
	return &wrappedCommandBuffer{buffer: buffers[0]}, res, nil
}

func (p *wrappedCommandPool) Reset(flags core1_0.CommandPoolResetFlags) (common.VkResult, error) {
	return p.pool.Reset(flags)
}

func (p *wrappedCommandPool) Destroy() {
	p.pool.Destroy(p.callbacks)
}

type wrappedCommandBuffer struct {
	buffer core1_0.CommandBuffer
}

func (b *wrappedCommandBuffer) Begin(flags core1_0.CommandBufferUsageFlags) (common.VkResult, error) {
	return b.buffer.Begin(core1_0.CommandBufferBeginInfo{
		Flags: flags,
	})
}

func (b *wrappedCommandBuffer) End() (common.VkResult, error) {
	return b.buffer.End()
}

func (b *wrappedCommandBuffer) Reset(flags core1_0.CommandBufferResetFlags) (common.VkResult, error) {
	return b.buffer.Reset(flags)
}

func (b *wrappedCommandBuffer) CmdCopyBuffer(src vcm.Buffer, dst vcm.Buffer, regions []core1_0.BufferCopy) error {
	return b.buffer.CmdCopyBuffer(src, dst, regions)
}

func (b *wrappedCommandBuffer) CmdCopyImage(src vcm.Image, srcLayout core1_0.ImageLayout, dst vcm.Image, dstLayout core1_0.ImageLayout, regions []core1_0.ImageCopy) error {
	return b.buffer.CmdCopyImage(src, srcLayout, dst, dstLayout, regions)
}

func (b *wrappedCommandBuffer) CmdCopyBufferToImage(src vcm.Buffer, dst vcm.Image, dstLayout core1_0.ImageLayout, regions []core1_0.BufferImageCopy) error {
	return b.buffer.CmdCopyBufferToImage(src, dst, dstLayout, regions)
}

func (b *wrappedCommandBuffer) CmdCopyImageToBuffer(src vcm.Image, srcLayout core1_0.ImageLayout, dst vcm.Buffer, regions []core1_0.BufferImageCopy) error {
	return b.buffer.CmdCopyImageToBuffer(src, srcLayout, dst, regions)
}

type wrappedQueue struct {
	queue       core1_0.Queue
	familyIndex int
}

func (q *wrappedQueue) Submit(fence vcm.Fence, commandBuffers []vcm.CommandBuffer) (common.VkResult, error) {
	var nativeFence core1_0.Fence
	if fence != nil {
		wrapped, ok := fence.(*wrappedFence)
		if !ok {
			return core1_0.VKErrorUnknown, errors.New("the fence was not created by this package")
		}
		nativeFence = wrapped.fence
	}

	nativeBuffers := make([]core1_0.CommandBuffer, 0, len(commandBuffers))
	for _, commandBuffer := range commandBuffers {
		wrapped, ok := commandBuffer.(*wrappedCommandBuffer)
		if !ok {
			return core1_0.VKErrorUnknown, errors.New("a command buffer was not created by this package")
		}
		nativeBuffers = append(nativeBuffers, wrapped.buffer)
	}

	return q.queue.Submit(nativeFence, []core1_0.SubmitInfo{
		{
			CommandBuffers: nativeBuffers,
		},
	})
}

func (q *wrappedQueue) WaitIdle() (common.VkResult, error) {
	return q.queue.WaitIdle()
}

func (q *wrappedQueue) FamilyIndex() int {
	return q.familyIndex
}
