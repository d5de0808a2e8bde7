package vcm

import (
	"log/slog"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// UploadBuffer writes data into a fresh staging buffer and submits a
// one-operation batch copying it into dst at dstOffset. It does not wait for
// completion- the caller must Poll or WaitIdle before consuming dst. The
// staging buffer is reclaimed automatically when the batch retires.
func (m *TransferManager) UploadBuffer(data []byte, dst Buffer, dstOffset int) (*TransferBatch, common.VkResult, error) {
	m.logger.Debug("TransferManager::UploadBuffer")

	if len(data) == 0 {
		return nil, core1_0.VKSuccess, nil
	}

	batch := m.CreateBatch()
	stagingBuffer, res, err := m.prepareStaging(batch, data)
	if err != nil {
		return nil, res, err
	}

	err = batch.AddBufferCopy(stagingBuffer, dst, core1_0.BufferCopy{
		SrcOffset: 0,
		DstOffset: dstOffset,
		Size:      len(data),
	})
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	res, err = m.SubmitBatch(batch)
	if err != nil {
		return nil, res, err
	}
	return batch, res, nil
}

// UploadImage writes data into a fresh staging buffer and submits a
// one-operation batch copying it into dst, which must be in dstLayout on the
// transfer queue at execution time. The regions describe how the staging
// bytes map onto the image; their BufferOffset fields are relative to the
// start of data. Like UploadBuffer, this returns before the copy completes.
func (m *TransferManager) UploadImage(data []byte, dst Image, dstLayout core1_0.ImageLayout, regions ...core1_0.BufferImageCopy) (*TransferBatch, common.VkResult, error) {
	m.logger.Debug("TransferManager::UploadImage")

	if len(data) == 0 {
		return nil, core1_0.VKSuccess, nil
	}
	if len(regions) == 0 {
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrInvalidState,
			"UploadImage requires at least one copy region")
	}

	batch := m.CreateBatch()
	stagingBuffer, res, err := m.prepareStaging(batch, data)
	if err != nil {
		return nil, res, err
	}

	err = batch.AddBufferToImageCopy(stagingBuffer, dst, dstLayout, regions...)
	if err != nil {
		return nil, core1_0.VKErrorUnknown, err
	}

	res, err = m.SubmitBatch(batch)
	if err != nil {
		return nil, res, err
	}
	return batch, res, nil
}

// prepareStaging allocates a staging buffer, copies data into it through a
// mapping, and attaches it to the batch for reclamation at retirement.
func (m *TransferManager) prepareStaging(batch *TransferBatch, data []byte) (Buffer, common.VkResult, error) {
	if m.staging == nil {
		return nil, core1_0.VKErrorUnknown, errors.Wrap(ErrFeatureNotPresent,
			"this transfer manager was created without a staging allocator")
	}

	stagingBuffer, allocation, res, err := m.staging.CreateStagingBuffer(len(data))
	if err != nil {
		return nil, res, errors.Wrapf(ErrResourceCreation, "failed to create a %d-byte staging buffer: %s", len(data), res.String())
	}

	ptr, res, err := allocation.Map()
	if err != nil {
		m.destroyStaging(stagingBuffer, allocation)
		return nil, res, errors.Wrap(err, "failed to map staging memory")
	}

	hostBytes := unsafe.Slice((*byte)(ptr), len(data))
	copy(hostBytes, data)

	// Flush is a no-op on coherent memory, and required on everything else.
	res, err = allocation.Flush(0, len(data))
	if err != nil {
		_ = allocation.Unmap()
		m.destroyStaging(stagingBuffer, allocation)
		return nil, res, errors.Wrap(err, "failed to flush staging memory")
	}

	err = allocation.Unmap()
	if err != nil {
		m.destroyStaging(stagingBuffer, allocation)
		return nil, core1_0.VKErrorUnknown, errors.Wrap(err, "failed to unmap staging memory")
	}

	err = batch.attachStaging(stagingBuffer, allocation)
	if err != nil {
		m.destroyStaging(stagingBuffer, allocation)
		return nil, core1_0.VKErrorUnknown, err
	}

	return stagingBuffer, core1_0.VKSuccess, nil
}

// destroyStaging reclaims a staging buffer and its allocation in one call.
// DestroyBuffer frees the allocation itself, vmaDestroyBuffer-style.
func (m *TransferManager) destroyStaging(buffer Buffer, allocation Allocation) {
	err := allocation.DestroyBuffer(buffer)
	if err != nil {
		m.logger.Error("failed to destroy staging buffer", slog.String("error", err.Error()))
	}
}
