package vulkan

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/arsenal/vam"
	"github.com/vkngwrapper/arsenal/vcm"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// StagingAllocator creates transfer-source buffers in host-visible memory
// through a vam.Allocator. Buffers it hands out are mapped for sequential
// writes and are expected to be destroyed through their Allocation once the
// transfer that reads them has completed.
type StagingAllocator struct {
	logger    *slog.Logger
	allocator *vam.Allocator
}

// NewStagingAllocator creates a StagingAllocator backed by the provided
// vam.Allocator.
func NewStagingAllocator(logger *slog.Logger, allocator *vam.Allocator) (*StagingAllocator, error) {
	if allocator == nil {
		return nil, errors.New("attempted to create a StagingAllocator with a nil allocator")
	}

	return &StagingAllocator{
		logger:    logger,
		allocator: allocator,
	}, nil
}

// CreateStagingBuffer creates a host-visible buffer of the requested size
// with transfer-source usage and memory bound and ready to map.
func (a *StagingAllocator) CreateStagingBuffer(size int) (vcm.Buffer, vcm.Allocation, common.VkResult, error) {
	a.logger.Debug("StagingAllocator::CreateStagingBuffer")

	if size < 1 {
		return nil, nil, core1_0.VKErrorUnknown, errors.Newf("attempted to create a staging buffer of invalid size %d", size)
	}

	allocation := &vam.Allocation{}
	buffer, res, err := a.allocator.CreateBuffer(
		core1_0.BufferCreateInfo{
			Size:        size,
			Usage:       core1_0.BufferUsageTransferSrc,
			SharingMode: core1_0.SharingModeExclusive,
		},
		vam.AllocationCreateInfo{
			Usage: vam.MemoryUsageAuto,
			Flags: vam.AllocationCreateHostAccessSequentialWrite,
		},
		allocation,
	)
	if err != nil {
		return nil, nil, res, err
	}

	return buffer, allocation, res, nil
}
