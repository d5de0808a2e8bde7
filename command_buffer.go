package vcm

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// CommandBufferState tracks where a managed command buffer is in its
// lifecycle. The state machine mirrors the Vulkan spec's command buffer
// lifecycle and is enforced on the host so that misuse fails with
// ErrInvalidState instead of corrupting the native object.
type CommandBufferState int32

const (
	// CommandBufferInitial means the buffer holds no commands and may begin
	// recording.
	CommandBufferInitial CommandBufferState = iota
	// CommandBufferRecording means Begin has been called and commands may be
	// recorded.
	CommandBufferRecording
	// CommandBufferExecutable means End has been called and the buffer may be
	// submitted or re-begun.
	CommandBufferExecutable
	// CommandBufferPending means the buffer is referenced by a submission
	// whose fence has not been observed as signaled. It must not be reset or
	// re-recorded.
	CommandBufferPending
	// CommandBufferInvalid means recording was aborted. The buffer must be
	// reset before reuse.
	CommandBufferInvalid
)

func (s CommandBufferState) String() string {
	switch s {
	case CommandBufferInitial:
		return "Initial"
	case CommandBufferRecording:
		return "Recording"
	case CommandBufferExecutable:
		return "Executable"
	case CommandBufferPending:
		return "Pending"
	case CommandBufferInvalid:
		return "Invalid"
	}
	return "Unknown"
}

// ManagedCommandBuffer wraps a native command buffer with an explicit state
// machine. It is owned by the ThreadPool that allocated it and, like the
// pool, is intended for use by a single goroutine- the state field is not
// synchronized.
type ManagedCommandBuffer struct {
	logger *slog.Logger
	handle CommandBuffer
	owner  *ThreadPool
	state  CommandBufferState
}

// Handle returns the native command buffer for recording. Callers should
// only record through it between Begin and End (or inside Record).
func (b *ManagedCommandBuffer) Handle() CommandBuffer { return b.handle }

// State returns the buffer's current lifecycle state.
func (b *ManagedCommandBuffer) State() CommandBufferState { return b.state }

// Begin starts recording. Legal from Initial, or from Executable- in the
// latter case the buffer is implicitly reset first.
func (b *ManagedCommandBuffer) Begin(flags core1_0.CommandBufferUsageFlags) (common.VkResult, error) {
	switch b.state {
	case CommandBufferExecutable:
		res, err := b.handle.Reset(0)
		if err != nil {
			b.state = CommandBufferInvalid
			return res, errors.Wrap(err, "failed to reset an executable command buffer for re-recording")
		}
	case CommandBufferInitial:
	default:
		return core1_0.VKErrorUnknown, errors.Wrapf(ErrInvalidState,
			"Begin is not legal from the %s state", b.state)
	}

	res, err := b.handle.Begin(flags)
	if err != nil {
		b.state = CommandBufferInvalid
		return res, errors.Wrap(err, "vkBeginCommandBuffer failed")
	}

	b.state = CommandBufferRecording
	return res, nil
}

// End finishes recording, leaving the buffer executable.
func (b *ManagedCommandBuffer) End() (common.VkResult, error) {
	if b.state != CommandBufferRecording {
		return core1_0.VKErrorUnknown, errors.Wrapf(ErrInvalidState,
			"End is not legal from the %s state", b.state)
	}

	res, err := b.handle.End()
	if err != nil {
		b.state = CommandBufferInvalid
		return res, errors.Wrap(err, "vkEndCommandBuffer failed")
	}

	b.state = CommandBufferExecutable
	return res, nil
}

// Reset returns the buffer to the Initial state. Illegal while Pending- a
// buffer still referenced by an unresolved submission must first transition
// out via a poll that observes fence completion.
func (b *ManagedCommandBuffer) Reset() (common.VkResult, error) {
	if b.state == CommandBufferPending {
		return core1_0.VKErrorUnknown, errors.Wrap(ErrInvalidState,
			"cannot reset a command buffer that is pending on the GPU")
	}

	res, err := b.handle.Reset(0)
	if err != nil {
		b.state = CommandBufferInvalid
		return res, errors.Wrap(err, "vkResetCommandBuffer failed")
	}

	b.state = CommandBufferInitial
	return res, nil
}

// Record begins the buffer, invokes record with the native handle, and
// guarantees cleanup on every exit path: End on success, invalidation if the
// callback returns an error. The callback must not call Begin, End, or Reset
// itself.
func (b *ManagedCommandBuffer) Record(flags core1_0.CommandBufferUsageFlags, record func(cb CommandBuffer) error) (common.VkResult, error) {
	res, err := b.Begin(flags)
	if err != nil {
		return res, err
	}

	err = record(b.handle)
	if err != nil {
		b.state = CommandBufferInvalid
		return core1_0.VKErrorUnknown, errors.Wrap(err, "recording callback failed")
	}

	return b.End()
}

// markPending flags the buffer as referenced by an in-flight submission.
func (b *ManagedCommandBuffer) markPending() error {
	if b.state != CommandBufferExecutable {
		return errors.Wrapf(ErrInvalidState, "cannot submit a command buffer in the %s state", b.state)
	}
	b.state = CommandBufferPending
	return nil
}

// markCompleted flags the buffer's submission as resolved. Once completed the
// buffer is executable again and may be reset or released.
func (b *ManagedCommandBuffer) markCompleted() {
	if b.state != CommandBufferPending {
		b.logger.Error("command buffer completed a submission but was not pending",
			slog.String("state", b.state.String()))
		return
	}
	b.state = CommandBufferExecutable
}
