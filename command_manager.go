package vcm

import (
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/core/v2/common"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// QueueRole is the logical class of work a queue is used for.
type QueueRole int32

const (
	QueueRoleGraphics QueueRole = iota
	QueueRoleCompute
	QueueRoleTransfer
)

func (r QueueRole) String() string {
	switch r {
	case QueueRoleGraphics:
		return "Graphics"
	case QueueRoleCompute:
		return "Compute"
	case QueueRoleTransfer:
		return "Transfer"
	}
	return "Unknown"
}

// CommandManagerCreateOptions contains the queues a CommandManager will
// manage, keyed by role. Roles with no backing queue may simply be left out-
// requesting them later fails with ErrFeatureNotPresent.
type CommandManagerCreateOptions struct {
	GraphicsQueue Queue
	ComputeQueue  Queue
	TransferQueue Queue
}

// CommandManager maps a logical queue role to a QueueCommandManager. It is
// the top-level entry point for command buffer recycling: rendering code asks
// for a buffer by role and gets one from its own goroutine's pool.
type CommandManager struct {
	logger   *slog.Logger
	device   Device
	managers map[QueueRole]*QueueCommandManager
}

// NewCommandManager creates a CommandManager with one QueueCommandManager per
// provided queue.
func NewCommandManager(logger *slog.Logger, device Device, options CommandManagerCreateOptions) *CommandManager {
	manager := &CommandManager{
		logger:   logger,
		device:   device,
		managers: map[QueueRole]*QueueCommandManager{},
	}

	if options.GraphicsQueue != nil {
		manager.managers[QueueRoleGraphics] = NewQueueCommandManager(logger, device, options.GraphicsQueue)
	}
	if options.ComputeQueue != nil {
		manager.managers[QueueRoleCompute] = NewQueueCommandManager(logger, device, options.ComputeQueue)
	}
	if options.TransferQueue != nil {
		manager.managers[QueueRoleTransfer] = NewQueueCommandManager(logger, device, options.TransferQueue)
	}

	return manager
}

// RoleManager returns the QueueCommandManager for a role, or
// ErrFeatureNotPresent if the role has no backing queue.
func (m *CommandManager) RoleManager(role QueueRole) (*QueueCommandManager, error) {
	queueManager, ok := m.managers[role]
	if !ok {
		return nil, errors.Wrapf(ErrFeatureNotPresent, "role %s", role)
	}
	return queueManager, nil
}

// AllocateGraphics returns a command buffer from the calling goroutine's
// graphics pool.
func (m *CommandManager) AllocateGraphics() (*ManagedCommandBuffer, common.VkResult, error) {
	return m.allocate(QueueRoleGraphics)
}

// AllocateCompute returns a command buffer from the calling goroutine's
// compute pool.
func (m *CommandManager) AllocateCompute() (*ManagedCommandBuffer, common.VkResult, error) {
	return m.allocate(QueueRoleCompute)
}

// AllocateTransfer returns a command buffer from the calling goroutine's
// transfer pool.
func (m *CommandManager) AllocateTransfer() (*ManagedCommandBuffer, common.VkResult, error) {
	return m.allocate(QueueRoleTransfer)
}

func (m *CommandManager) allocate(role QueueRole) (*ManagedCommandBuffer, common.VkResult, error) {
	queueManager, err := m.RoleManager(role)
	if err != nil {
		return nil, core1_0.VKErrorFeatureNotPresent, err
	}
	return queueManager.Acquire()
}

// Release returns a buffer to the thread pool that owns it. Must be called
// from the goroutine that acquired the buffer.
func (m *CommandManager) Release(buffer *ManagedCommandBuffer) error {
	if buffer == nil || buffer.owner == nil {
		return errors.Wrap(ErrNotFound, "CommandManager::Release")
	}
	return buffer.owner.Release(buffer)
}

// ResetAll bulk-resets every pool of every role. See
// QueueCommandManager.ResetAll for the invalidation caveats.
func (m *CommandManager) ResetAll() error {
	m.logger.Debug("CommandManager::ResetAll")

	for _, queueManager := range m.managers {
		err := queueManager.ResetAll()
		if err != nil {
			return err
		}
	}
	return nil
}

// BuildStatsString writes pool counts for every role as a JSON object.
func (m *CommandManager) BuildStatsString(writer *jwriter.Writer) {
	obj := writer.Object()
	defer obj.End()

	for role, queueManager := range m.managers {
		queueManager.BuildStatsString(obj.Name(role.String()))
	}
}

// Destroy tears down every QueueCommandManager.
func (m *CommandManager) Destroy() error {
	m.logger.Debug("CommandManager::Destroy")

	for _, queueManager := range m.managers {
		err := queueManager.Destroy()
		if err != nil {
			return err
		}
	}
	m.managers = map[QueueRole]*QueueCommandManager{}
	return nil
}
