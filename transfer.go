package vcm

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/arsenal/vcm/internal/utils"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// BatchState tracks a TransferBatch through its lifecycle. Completed is
// terminal- a finished batch is discarded, not rebuilt.
type BatchState int32

const (
	// BatchEmpty means no operations have been added yet.
	BatchEmpty BatchState = iota
	// BatchBuilding means operations have been appended and more may follow.
	BatchBuilding
	// BatchSubmitted means the batch is on the queue with a fence attached.
	// It is immutable from here on.
	BatchSubmitted
	// BatchCompleted means the fence was observed as signaled and all
	// resources have been reclaimed.
	BatchCompleted
)

func (s BatchState) String() string {
	switch s {
	case BatchEmpty:
		return "Empty"
	case BatchBuilding:
		return "Building"
	case BatchSubmitted:
		return "Submitted"
	case BatchCompleted:
		return "Completed"
	}
	return "Unknown"
}

type transferOpType int32

const (
	opBufferToBuffer transferOpType = iota
	opBufferToImage
	opImageToBuffer
	opImageToImage
)

// transferOp is one typed copy in a batch, with its own region list.
type transferOp struct {
	opType transferOpType

	srcBuffer Buffer
	dstBuffer Buffer
	srcImage  Image
	dstImage  Image
	srcLayout core1_0.ImageLayout
	dstLayout core1_0.ImageLayout

	bufferRegions      []core1_0.BufferCopy
	bufferImageRegions []core1_0.BufferImageCopy
	imageRegions       []core1_0.ImageCopy
}

// stagingResource is a staging buffer attached to a batch by the upload
// helpers, reclaimed when the batch retires.
type stagingResource struct {
	buffer     Buffer
	allocation Allocation
}

// TransferBatch is an ordered sequence of copy operations. Operations execute
// on the GPU in append order; the batch inserts no barriers of its own, so
// any producer/consumer ordering must be encoded by the caller through
// operation order and external synchronization.
//
// A batch is built and submitted from one goroutine. After submission it is
// owned by the TransferManager until it retires.
type TransferBatch struct {
	manager *TransferManager
	state   BatchState

	ops     []transferOp
	staging []stagingResource

	commandBuffer *ManagedCommandBuffer
	fence         Fence
}

// State returns the batch's lifecycle state.
func (b *TransferBatch) State() BatchState { return b.state }

// OperationCount returns the number of copy operations appended so far.
func (b *TransferBatch) OperationCount() int { return len(b.ops) }

// checkMutable rejects appends once the batch has been handed to the queue.
func (b *TransferBatch) checkMutable() error {
	switch b.state {
	case BatchEmpty, BatchBuilding:
		return nil
	}
	return errors.Wrapf(ErrInvalidState, "cannot append to a batch in the %s state", b.state)
}

// AddBufferCopy appends a buffer-to-buffer copy.
func (b *TransferBatch) AddBufferCopy(src Buffer, dst Buffer, regions ...core1_0.BufferCopy) error {
	if err := b.checkMutable(); err != nil {
		return err
	}
	b.ops = append(b.ops, transferOp{
		opType:        opBufferToBuffer,
		srcBuffer:     src,
		dstBuffer:     dst,
		bufferRegions: regions,
	})
	b.state = BatchBuilding
	return nil
}

// AddBufferToImageCopy appends a buffer-to-image copy. dstLayout is the
// layout the destination image will be in at execution time.
func (b *TransferBatch) AddBufferToImageCopy(src Buffer, dst Image, dstLayout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) error {
	if err := b.checkMutable(); err != nil {
		return err
	}
	b.ops = append(b.ops, transferOp{
		opType:             opBufferToImage,
		srcBuffer:          src,
		dstImage:           dst,
		dstLayout:          dstLayout,
		bufferImageRegions: regions,
	})
	b.state = BatchBuilding
	return nil
}

// AddImageToBufferCopy appends an image-to-buffer copy.
func (b *TransferBatch) AddImageToBufferCopy(src Image, srcLayout core1_0.ImageLayout, dst Buffer, regions ...core1_0.BufferImageCopy) error {
	if err := b.checkMutable(); err != nil {
		return err
	}
	b.ops = append(b.ops, transferOp{
		opType:             opImageToBuffer,
		srcImage:           src,
		srcLayout:          srcLayout,
		dstBuffer:          dst,
		bufferImageRegions: regions,
	})
	b.state = BatchBuilding
	return nil
}

// AddImageCopy appends an image-to-image copy.
func (b *TransferBatch) AddImageCopy(src Image, srcLayout core1_0.ImageLayout, dst Image, dstLayout core1_0.ImageLayout, regions ...core1_0.ImageCopy) error {
	if err := b.checkMutable(); err != nil {
		return err
	}
	b.ops = append(b.ops, transferOp{
		opType:       opImageToImage,
		srcImage:     src,
		srcLayout:    srcLayout,
		dstImage:     dst,
		dstLayout:    dstLayout,
		imageRegions: regions,
	})
	b.state = BatchBuilding
	return nil
}

// attachStaging ties a staging resource's lifetime to the batch.
func (b *TransferBatch) attachStaging(buffer Buffer, allocation Allocation) error {
	if err := b.checkMutable(); err != nil {
		return err
	}
	b.staging = append(b.staging, stagingResource{buffer: buffer, allocation: allocation})
	return nil
}

func (b *TransferBatch) record(cb CommandBuffer) error {
	for i := range b.ops {
		op := &b.ops[i]
		var err error
		switch op.opType {
		case opBufferToBuffer:
			err = cb.CmdCopyBuffer(op.srcBuffer, op.dstBuffer, op.bufferRegions)
		case opBufferToImage:
			err = cb.CmdCopyBufferToImage(op.srcBuffer, op.dstImage, op.dstLayout, op.bufferImageRegions)
		case opImageToBuffer:
			err = cb.CmdCopyImageToBuffer(op.srcImage, op.srcLayout, op.dstBuffer, op.bufferImageRegions)
		case opImageToImage:
			err = cb.CmdCopyImage(op.srcImage, op.srcLayout, op.dstImage, op.dstLayout, op.imageRegions)
		}
		if err != nil {
			return errors.Wrapf(err, "failed to record copy operation %d", i)
		}
	}
	return nil
}

// TransferManagerCreateOptions contains optional settings when creating a
// TransferManager. It is valid to leave all the fields blank.
type TransferManagerCreateOptions struct {
	// Flags indicates specific behaviors to activate or deactivate
	Flags CreateFlags

	// Staging supplies host-visible staging buffers to UploadBuffer and
	// UploadImage. It may be left nil if the upload helpers are not used.
	Staging StagingAllocator
}

// TransferManager submits batched copy work to a transfer queue and reclaims
// the command buffer and fence of each batch once the GPU signals completion.
// It composes a command buffer pool and the SyncManager's fence pool.
//
// All methods are safe for concurrent use: submission and polling commonly
// happen on different goroutines, so the manager serializes itself with one
// mutex rather than using per-goroutine command pools.
type TransferManager struct {
	logger *slog.Logger
	device Device
	queue  Queue
	sync   *SyncManager

	staging StagingAllocator

	mutex       utils.OptionalMutex
	commandPool *ThreadPool
	pending     []*TransferBatch
	completed   []*TransferBatch
	submitted   int
	destroyed   bool
}

// NewTransferManager creates a TransferManager that submits to queue and
// recycles fences through sync.
func NewTransferManager(logger *slog.Logger, device Device, queue Queue, sync *SyncManager, options TransferManagerCreateOptions) (*TransferManager, common.VkResult, error) {
	useMutex := options.Flags&CreateExternallySynchronized == 0

	native, res, err := device.CreateCommandPool(queue.FamilyIndex())
	if err != nil {
		return nil, res, errors.Wrapf(ErrResourceCreation, "vkCreateCommandPool returned %s", res.String())
	}

	return &TransferManager{
		logger:  logger,
		device:  device,
		queue:   queue,
		sync:    sync,
		staging: options.Staging,

		mutex:       utils.OptionalMutex{UseMutex: useMutex},
		commandPool: newThreadPool(logger, native),
	}, res, nil
}

// CreateBatch returns an empty, mutable batch bound to this manager.
func (m *TransferManager) CreateBatch() *TransferBatch {
	return &TransferBatch{
		manager: m,
		state:   BatchEmpty,
	}
}

// SubmitBatch records the batch's operations into a pooled command buffer, in
// append order, and submits it with a pooled fence attached. Empty batches
// are a no-op. On a native submit failure both resources are returned to
// their pools, the batch drops back to Building, and the error matches
// ErrSubmissionFailed- the caller may retry the submit.
func (m *TransferManager) SubmitBatch(batch *TransferBatch) (common.VkResult, error) {
	m.logger.Debug("TransferManager::SubmitBatch")

	if batch == nil || batch.state == BatchEmpty {
		return core1_0.VKSuccess, nil
	}
	if batch.manager != m {
		return core1_0.VKErrorUnknown, errors.Wrap(ErrNotFound, "batch belongs to a different transfer manager")
	}
	if batch.state != BatchBuilding {
		return core1_0.VKErrorUnknown, errors.Wrapf(ErrInvalidState,
			"cannot submit a batch in the %s state", batch.state)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.destroyed {
		return core1_0.VKErrorUnknown, errors.Wrap(ErrDestroyed, "TransferManager::SubmitBatch")
	}

	commandBuffer, res, err := m.commandPool.Acquire()
	if err != nil {
		return res, err
	}

	res, err = commandBuffer.Record(core1_0.CommandBufferUsageOneTimeSubmit, batch.record)
	if err != nil {
		m.recoverCommandBuffer(commandBuffer)
		return res, err
	}

	fence, res, err := m.sync.AcquireFence(false)
	if err != nil {
		m.recoverCommandBuffer(commandBuffer)
		return res, err
	}

	res, err = m.queue.Submit(fence, []CommandBuffer{commandBuffer.Handle()})
	if err != nil {
		// Recover both resources rather than leaving them stranded in-use.
		releaseErr := m.sync.ReleaseFence(fence)
		if releaseErr != nil {
			m.logger.Error("failed to recover the fence of a failed submission",
				slog.String("error", releaseErr.Error()))
		}
		m.recoverCommandBuffer(commandBuffer)
		return res, errors.Wrapf(ErrSubmissionFailed, "vkQueueSubmit returned %s", res.String())
	}

	err = commandBuffer.markPending()
	if err != nil {
		// Unreachable: Record left the buffer executable.
		return core1_0.VKErrorUnknown, err
	}

	batch.commandBuffer = commandBuffer
	batch.fence = fence
	batch.state = BatchSubmitted
	m.pending = append(m.pending, batch)
	m.submitted++

	return res, nil
}

// recoverCommandBuffer returns a buffer that never reached the queue to the
// pool. Caller must hold the manager mutex.
func (m *TransferManager) recoverCommandBuffer(commandBuffer *ManagedCommandBuffer) {
	if commandBuffer.State() == CommandBufferRecording {
		commandBuffer.state = CommandBufferInvalid
	}
	err := m.commandPool.Release(commandBuffer)
	if err != nil {
		m.logger.Error("failed to recover the command buffer of a failed submission",
			slog.String("error", err.Error()))
	}
}

// Poll checks each pending batch's fence without blocking. Batches whose
// fence has signaled retire: the fence and command buffer go back to their
// pools, staging resources are freed, and the batch moves to the completed
// list. Unsignaled batches are left untouched and re-checked on the next
// call, so Poll is safe to call every frame.
func (m *TransferManager) Poll() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.destroyed {
		return errors.Wrap(ErrDestroyed, "TransferManager::Poll")
	}

	var firstErr error
	remaining := m.pending[:0]
	for _, batch := range m.pending {
		res, err := batch.fence.Status()
		if err != nil {
			if firstErr == nil {
				firstErr = errors.Wrap(err, "failed to query fence status")
			}
			remaining = append(remaining, batch)
			continue
		}

		if res == core1_0.VKNotReady {
			remaining = append(remaining, batch)
			continue
		}

		err = m.retireBatch(batch)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.pending = remaining

	return firstErr
}

// WaitIdle blocks until the transfer queue goes idle, then retires every
// pending batch in one sweep. Use it when an upload must be complete before
// its destination is consumed.
func (m *TransferManager) WaitIdle() (common.VkResult, error) {
	m.logger.Debug("TransferManager::WaitIdle")

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.destroyed {
		return core1_0.VKErrorUnknown, errors.Wrap(ErrDestroyed, "TransferManager::WaitIdle")
	}

	res, err := m.queue.WaitIdle()
	if err != nil {
		return res, errors.Wrap(err, "vkQueueWaitIdle failed")
	}

	var firstErr error
	for _, batch := range m.pending {
		err = m.retireBatch(batch)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.pending = m.pending[:0]

	return res, firstErr
}

// retireBatch releases a completed batch's resources and moves it to the
// completed list. Caller must hold the manager mutex and must have observed
// (or forced) fence completion.
func (m *TransferManager) retireBatch(batch *TransferBatch) error {
	var firstErr error

	err := m.sync.ReleaseFence(batch.fence)
	if err != nil {
		firstErr = err
	}
	batch.fence = nil

	batch.commandBuffer.markCompleted()
	err = m.commandPool.Release(batch.commandBuffer)
	if err != nil && firstErr == nil {
		firstErr = err
	}
	batch.commandBuffer = nil

	for _, staging := range batch.staging {
		// DestroyBuffer also frees the allocation, vmaDestroyBuffer-style.
		err = staging.allocation.DestroyBuffer(staging.buffer)
		if err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "failed to destroy staging buffer")
		}
	}
	batch.staging = nil

	batch.state = BatchCompleted
	m.completed = append(m.completed, batch)
	return firstErr
}

// PendingCount returns the number of batches whose fence has not yet been
// observed as signaled.
func (m *TransferManager) PendingCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.pending)
}

// CompletedBatches drains and returns the completed list. The returned
// batches are terminal and exist only for caller inspection.
func (m *TransferManager) CompletedBatches() []*TransferBatch {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	completed := m.completed
	m.completed = nil
	return completed
}

// Stats returns a snapshot of the manager's batch counts.
func (m *TransferManager) Stats() TransferStats {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return TransferStats{
		PendingBatches:   len(m.pending),
		CompletedBatches: len(m.completed),
		SubmittedTotal:   m.submitted,
	}
}

// BuildStatsString writes batch counts and the command pool's counts as a
// JSON object.
func (m *TransferManager) BuildStatsString(writer *jwriter.Writer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	obj := writer.Object()
	defer obj.End()

	stats := TransferStats{
		PendingBatches:   len(m.pending),
		CompletedBatches: len(m.completed),
		SubmittedTotal:   m.submitted,
	}
	stats.printJSON(&obj)

	poolObj := obj.Name("CommandPool").Object()
	m.commandPool.printJSON(&poolObj)
	poolObj.End()
}

// Destroy waits for the queue to go idle, retires everything, and tears down
// the manager's command pool. The SyncManager is not destroyed- it is shared.
func (m *TransferManager) Destroy() error {
	m.logger.Debug("TransferManager::Destroy")

	_, err := m.WaitIdle()
	if err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.destroyed {
		return errors.Wrap(ErrDestroyed, "TransferManager::Destroy")
	}

	m.commandPool.destroy()
	m.completed = nil
	m.destroyed = true
	return nil
}
