package vcm

import (
	"time"
	"unsafe"

	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// This package deliberately reaches Vulkan only through the narrow interfaces
// below. The production implementations live in the vcm/vulkan subpackage and
// are thin wrappers around vkngwrapper handles; tests substitute fakes.

// Buffer and Image are opaque copy sources/destinations. This package never
// calls into them, it only records them into copy commands.
type (
	Buffer = core1_0.Buffer
	Image  = core1_0.Image
)

// DescriptorSet and DescriptorSetLayout are opaque handles cached by
// DescriptorCache. The cache only stores and compares them- any comparable
// handle type works, typically core1_0.DescriptorSet and
// core1_0.DescriptorSetLayout. Ownership stays with the caller at all times.
type (
	DescriptorSet       = any
	DescriptorSetLayout = any
)

// Fence is a host-observable synchronization object, recycled by FencePool.
type Fence interface {
	// Wait blocks until the fence signals or the timeout elapses. A timeout is
	// reported as core1_0.VKTimeout with a nil error.
	Wait(timeout time.Duration) (common.VkResult, error)
	// Status reports core1_0.VKSuccess when signaled and core1_0.VKNotReady
	// when not, without blocking.
	Status() (common.VkResult, error)
	Reset() (common.VkResult, error)
	Destroy()
}

// Semaphore is a GPU-side synchronization object, recycled by SemaphorePool.
type Semaphore interface {
	Destroy()
}

// TimelineSemaphoreHandle is the device-side face of a timeline semaphore.
type TimelineSemaphoreHandle interface {
	Signal(value uint64) (common.VkResult, error)
	WaitValue(value uint64, timeout time.Duration) (common.VkResult, error)
	// CounterValue queries the authoritative GPU-visible counter.
	CounterValue() (uint64, common.VkResult, error)
	Destroy()
}

// CommandBuffer is a recorded sequence of GPU commands. ManagedCommandBuffer
// layers the begin/end/reset lifecycle on top of it; the copy commands are the
// only recording operations the transfer pipeline needs.
type CommandBuffer interface {
	Begin(flags core1_0.CommandBufferUsageFlags) (common.VkResult, error)
	End() (common.VkResult, error)
	Reset(flags core1_0.CommandBufferResetFlags) (common.VkResult, error)

	CmdCopyBuffer(src Buffer, dst Buffer, regions []core1_0.BufferCopy) error
	CmdCopyImage(src Image, srcLayout core1_0.ImageLayout, dst Image, dstLayout core1_0.ImageLayout, regions []core1_0.ImageCopy) error
	CmdCopyBufferToImage(src Buffer, dst Image, dstLayout core1_0.ImageLayout, regions []core1_0.BufferImageCopy) error
	CmdCopyImageToBuffer(src Image, srcLayout core1_0.ImageLayout, dst Buffer, regions []core1_0.BufferImageCopy) error
}

// CommandPool is a native command buffer allocation context. One is created
// per recording thread, so implementations do not need to be thread-safe.
type CommandPool interface {
	AllocateCommandBuffer() (CommandBuffer, common.VkResult, error)
	// Reset returns every buffer allocated from this pool to the initial
	// state in a single native call.
	Reset(flags core1_0.CommandPoolResetFlags) (common.VkResult, error)
	Destroy()
}

// Device creates the native objects this package pools.
type Device interface {
	CreateFence(signaled bool) (Fence, common.VkResult, error)
	CreateSemaphore() (Semaphore, common.VkResult, error)
	CreateTimelineSemaphore(initialValue uint64) (TimelineSemaphoreHandle, common.VkResult, error)
	CreateCommandPool(queueFamilyIndex int) (CommandPool, common.VkResult, error)
}

// Queue is a submission target. Submit and WaitIdle map directly onto
// vkQueueSubmit and vkQueueWaitIdle.
type Queue interface {
	Submit(fence Fence, commandBuffers []CommandBuffer) (common.VkResult, error)
	WaitIdle() (common.VkResult, error)
	FamilyIndex() int
}

// Allocation is an opaque handle from the memory allocator. The method set
// matches *vam.Allocation, which satisfies this interface as-is. DestroyBuffer
// destroys the buffer AND frees the allocation, like vmaDestroyBuffer; there
// is no separate free step.
type Allocation interface {
	Memory() core1_0.DeviceMemory
	FindOffset() int
	Map() (unsafe.Pointer, common.VkResult, error)
	Unmap() error
	Flush(offset, size int) (common.VkResult, error)
	DestroyBuffer(buffer Buffer) error
}

// StagingAllocator produces host-visible staging buffers for the upload
// helpers. The returned Allocation must be mappable and already bound to the
// returned Buffer.
type StagingAllocator interface {
	CreateStagingBuffer(size int) (Buffer, Allocation, common.VkResult, error)
}
