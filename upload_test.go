package vcm

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

func TestUploadBuffer(t *testing.T) {
	manager, _, queue := newTestTransferManager(t)
	staging := manager.staging.(*fakeStagingAllocator)
	data := []byte("vertex data for the test mesh")

	batch, res, err := manager.UploadBuffer(data, nil, 256)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Equal(t, BatchSubmitted, batch.State())

	// The bytes landed in the mapped staging memory, flushed and unmapped.
	require.Len(t, staging.allocations, 1)
	allocation := staging.allocations[0]
	require.Equal(t, data, allocation.data)
	require.True(t, allocation.mapped)
	require.True(t, allocation.unmapped)
	require.Equal(t, 1, allocation.flushes)

	// The copy targets dstOffset with the full payload.
	recorded := queue.submittedBuffers[0][0].(*fakeCommandBuffer)
	require.Equal(t, []core1_0.BufferCopy{{SrcOffset: 0, DstOffset: 256, Size: len(data)}},
		recorded.lastBufferRegions)

	// Retirement reclaims the staging buffer. DestroyBuffer frees the
	// allocation itself, so it must happen exactly once.
	queue.signalAll()
	require.NoError(t, manager.Poll())
	require.True(t, allocation.bufferDestroyed)
	require.True(t, allocation.freed)
	require.Equal(t, 1, allocation.destroys)
}

func TestUploadBufferEmptyData(t *testing.T) {
	manager, _, queue := newTestTransferManager(t)

	batch, res, err := manager.UploadBuffer(nil, nil, 0)
	require.NoError(t, err)
	require.Equal(t, core1_0.VKSuccess, res)
	require.Nil(t, batch)
	require.Empty(t, queue.submittedFences)
}

func TestUploadImage(t *testing.T) {
	manager, _, queue := newTestTransferManager(t)

	data := make([]byte, 64*64*4)
	batch, _, err := manager.UploadImage(data, nil, core1_0.ImageLayoutTransferDstOptimal,
		core1_0.BufferImageCopy{
			ImageExtent: core1_0.Extent3D{Width: 64, Height: 64, Depth: 1},
		})
	require.NoError(t, err)
	require.Equal(t, BatchSubmitted, batch.State())

	recorded := queue.submittedBuffers[0][0].(*fakeCommandBuffer)
	require.Equal(t, 1, recorded.bufferImageCopies)
}

func TestUploadImageRequiresRegions(t *testing.T) {
	manager, _, _ := newTestTransferManager(t)

	_, _, err := manager.UploadImage([]byte{1, 2, 3}, nil, core1_0.ImageLayoutTransferDstOptimal)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestUploadWithoutStagingAllocator(t *testing.T) {
	device := &fakeDevice{}
	sync := NewSyncManager(testLogger(), device, SyncManagerCreateOptions{})
	manager, _, err := NewTransferManager(testLogger(), device, &fakeQueue{}, sync, TransferManagerCreateOptions{})
	require.NoError(t, err)

	_, _, err = manager.UploadBuffer([]byte{1, 2, 3}, nil, 0)
	require.ErrorIs(t, err, ErrFeatureNotPresent)
}

func TestUploadStagingCreateFailure(t *testing.T) {
	manager, _, queue := newTestTransferManager(t)
	manager.staging.(*fakeStagingAllocator).createErr = errors.New("no host memory")

	_, _, err := manager.UploadBuffer([]byte{1, 2, 3}, nil, 0)
	require.ErrorIs(t, err, ErrResourceCreation)
	require.Empty(t, queue.submittedFences)
}

func TestUploadMapFailureReclaimsStaging(t *testing.T) {
	manager, _, queue := newTestTransferManager(t)
	failing := &mapFailStagingAllocator{}
	manager.staging = failing

	_, _, err := manager.UploadBuffer([]byte{1, 2, 3}, nil, 0)
	require.Error(t, err)
	require.Empty(t, queue.submittedFences)
	require.True(t, failing.allocation.bufferDestroyed)
	require.True(t, failing.allocation.freed)
	require.Equal(t, 1, failing.allocation.destroys)
}

// A staging allocator whose allocations refuse to map.
type mapFailStagingAllocator struct {
	allocation *fakeAllocation
}

func (s *mapFailStagingAllocator) CreateStagingBuffer(size int) (Buffer, Allocation, common.VkResult, error) {
	s.allocation = &fakeAllocation{
		data:   make([]byte, size),
		mapErr: errors.New("map failed"),
	}
	return nil, s.allocation, core1_0.VKSuccess, nil
}
