package vcm

import (
	"github.com/vkngwrapper/core/v2/common"
)

// CreateFlags indicate specific behaviors to activate or deactivate in the
// pools and managers created by this package
type CreateFlags int32

var createFlagsMapping = common.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized ensures that the object created with this
	// flag will not be synchronized internally. The consumer must guarantee it
	// is used from only one goroutine at a time or is synchronized by some
	// other mechanism, but performance may improve because internal mutexes
	// are not used.
	//
	// Per-thread command pools ignore this flag- their hot path is unlocked by
	// construction and their map of thread pools is always guarded.
	CreateExternallySynchronized CreateFlags = 1 << iota
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
}
