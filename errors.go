package vcm

import (
	"github.com/cockroachdb/errors"
)

// Errors returned from this package wrap one of the sentinels below, so
// consumers can classify failures with errors.Is without string matching.
var (
	// ErrInvalidState indicates that a resource was used in a lifecycle phase
	// that forbids the requested operation- for instance, resetting a command
	// buffer that is still pending on the GPU. These are caller bugs and are
	// never retried internally.
	ErrInvalidState = errors.New("resource is in a state that does not permit this operation")

	// ErrResourceCreation indicates that Vulkan failed to create or allocate a
	// native object, usually due to host or device memory exhaustion. The
	// caller may retry after freeing other resources.
	ErrResourceCreation = errors.New("failed to create a native vulkan object")

	// ErrSubmissionFailed indicates that a queue submit call failed. The batch
	// that triggered it cannot be salvaged, but the command buffer and fence
	// that were acquired for it have been returned to their pools.
	ErrSubmissionFailed = errors.New("queue submission failed")

	// ErrTimeout indicates that a bounded wait elapsed before the awaited
	// object signaled. It is distinct from failure and safe to retry.
	ErrTimeout = errors.New("wait timed out")

	// ErrNotFound indicates that a release was requested for a handle the pool
	// is not currently tracking as in-use. The pool's state is left untouched.
	ErrNotFound = errors.New("handle is not tracked by this pool")

	// ErrDestroyed indicates a method call on a pool or manager after Destroy.
	ErrDestroyed = errors.New("object has already been destroyed")

	// ErrFeatureNotPresent indicates that a queue role was requested that has
	// no backing queue on this device.
	ErrFeatureNotPresent = errors.New("no queue is registered for the requested role")
)
